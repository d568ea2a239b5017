package orders

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard).Level(zerolog.Disabled)
}

type memStore struct {
	mu      sync.Mutex
	claimed map[string]time.Time
	healthy bool
}

func newMemStore() *memStore {
	return &memStore{claimed: make(map[string]time.Time), healthy: true}
}

func (s *memStore) Claim(ctx context.Context, clientOrderID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry, ok := s.claimed[clientOrderID]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	s.claimed[clientOrderID] = time.Now().Add(ttl)
	return true, nil
}

func (s *memStore) IsHealthy() bool { return s.healthy }

func TestGenerateIsDeterministic(t *testing.T) {
	a := Generate("BTC/EUR", SideBuy, 42)
	b := Generate("BTC/EUR", SideBuy, 42)
	assert.Equal(t, a, b)

	c := Generate("BTC/EUR", SideSell, 42)
	assert.NotEqual(t, a, c)

	d := Generate("ETH/EUR", SideBuy, 42)
	assert.NotEqual(t, a, d)
}

func TestGenerateRespectsMaxLength(t *testing.T) {
	id := Generate("BTC/EUR", SideBuy, 1)
	assert.LessOrEqual(t, len(id), MaxClientOrderIDLength)
}

func TestClaimForSubmissionRejectsDuplicate(t *testing.T) {
	store := newMemStore()
	g := NewGenerator(store, testLogger())

	id := Generate("BTC/EUR", SideBuy, 7)
	require.NoError(t, g.ClaimForSubmission(context.Background(), id))

	err := g.ClaimForSubmission(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateSubmission)
}

func TestClaimForSubmissionNilStoreAlwaysSucceeds(t *testing.T) {
	g := NewGenerator(nil, testLogger())
	id := Generate("BTC/EUR", SideBuy, 7)
	require.NoError(t, g.ClaimForSubmission(context.Background(), id))
	require.NoError(t, g.ClaimForSubmission(context.Background(), id))
}

func TestClaimForSubmissionDegradesWhenStoreUnhealthy(t *testing.T) {
	store := newMemStore()
	store.healthy = false
	g := NewGenerator(store, testLogger())

	id := Generate("BTC/EUR", SideBuy, 7)
	require.NoError(t, g.ClaimForSubmission(context.Background(), id))
	require.NoError(t, g.ClaimForSubmission(context.Background(), id))
}

func TestValidateClientOrderID(t *testing.T) {
	require.NoError(t, ValidateClientOrderID(Generate("BTC/EUR", SideBuy, 1)))
	assert.ErrorIs(t, ValidateClientOrderID(""), ErrInvalidClientOrderID)
}

func TestGenerateFallbackIsUnique(t *testing.T) {
	a := GenerateFallback()
	b := GenerateFallback()
	assert.NotEqual(t, a, b)
}
