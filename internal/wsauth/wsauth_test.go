package wsauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyAdminSecret(t *testing.T) {
	m, err := NewManager("jwt-secret", "correct-horse", time.Hour)
	require.NoError(t, err)

	assert.NoError(t, m.VerifyAdminSecret("correct-horse"))
	assert.ErrorIs(t, m.VerifyAdminSecret("wrong"), ErrInvalidSecret)
}

func TestMintAndVerifyToken(t *testing.T) {
	m, err := NewManager("jwt-secret", "admin-secret", time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := m.MintToken()
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	assert.NoError(t, m.VerifyToken(token))
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	m, err := NewManager("jwt-secret", "admin-secret", -time.Hour)
	require.NoError(t, err)

	token, _, err := m.MintToken()
	require.NoError(t, err)

	assert.ErrorIs(t, m.VerifyToken(token), ErrInvalidToken)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	m, err := NewManager("jwt-secret", "admin-secret", time.Hour)
	require.NoError(t, err)

	assert.ErrorIs(t, m.VerifyToken("not-a-jwt"), ErrInvalidToken)
}

func TestNewManagerRejectsOversizedSecret(t *testing.T) {
	long := make([]byte, MaxSecretLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := NewManager("jwt-secret", string(long), time.Hour)
	assert.ErrorIs(t, err, ErrSecretTooLong)
}
