package lock

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestNewRedisLockKeyIsStableForSameInputs(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	a := NewRedisLock(client, "prod", "bot-token-abc", time.Minute)
	b := NewRedisLock(client, "prod", "bot-token-abc", time.Minute)

	assert.Equal(t, a.key, b.key)
	assert.NotEqual(t, a.holderID, b.holderID, "each instance mints its own holder token")
}

func TestNewRedisLockKeyDiffersByEnvTagAndToken(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	prod := NewRedisLock(client, "prod", "bot-token-abc", time.Minute)
	staging := NewRedisLock(client, "staging", "bot-token-abc", time.Minute)
	otherToken := NewRedisLock(client, "prod", "bot-token-xyz", time.Minute)

	assert.NotEqual(t, prod.key, staging.key)
	assert.NotEqual(t, prod.key, otherToken.key)
}
