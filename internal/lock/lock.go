// Package lock implements a Redis-backed distributed advisory lock used to
// elect a single Telegram getUpdates poller across however many bot
// instances share a deployment (internal/notify.Locker). Unlike the
// order-submission claim in internal/cache (a one-shot SETNX), this lock is
// held for the process lifetime and must be renewed periodically, so it
// carries a holder token and a Lua-scripted renew/release to avoid one
// instance accidentally releasing a lock another instance now holds after
// a TTL expiry and re-acquisition race.
package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Renew/Release when this holder no longer owns
// the lock (another instance acquired it after this holder's TTL lapsed).
var ErrNotHeld = errors.New("lock: not held by this instance")

// renewScript extends the TTL only if the key still holds our token;
// otherwise the lock was lost to another holder and must not be touched.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a single advisory lock instance, scoped to one (envTag,
// bot-token) pair so distinct deployments or distinct bot tokens never
// contend for the same key.
type RedisLock struct {
	client   *redis.Client
	key      string
	holderID string
	ttl      time.Duration
}

// NewRedisLock builds the lock key from envTag and a hash of token (never
// the raw token itself, to keep it out of Redis key listings/logs).
func NewRedisLock(client *redis.Client, envTag, token string, ttl time.Duration) *RedisLock {
	sum := sha256.Sum256([]byte(token))
	tokenHash := hex.EncodeToString(sum[:])[:16]
	return &RedisLock{
		client:   client,
		key:      fmt.Sprintf("autotrade:lock:telegram-poller:%s:%s", envTag, tokenHash),
		holderID: uuid.NewString(),
		ttl:      ttl,
	}
}

// Acquire attempts to take the lock, returning false (no error) if another
// instance already holds it.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.holderID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock: acquire failed: %w", err)
	}
	return ok, nil
}

// Renew extends the TTL if this instance still holds the lock.
func (l *RedisLock) Renew(ctx context.Context) error {
	res, err := renewScript.Run(ctx, l.client, []string{l.key}, l.holderID, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("lock: renew failed: %w", err)
	}
	if res == 0 {
		return ErrNotHeld
	}
	return nil
}

// Release drops the lock if this instance still holds it. Safe to call even
// if the lock was already lost.
func (l *RedisLock) Release(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.holderID).Int64(); err != nil {
		return fmt.Errorf("lock: release failed: %w", err)
	}
	return nil
}
