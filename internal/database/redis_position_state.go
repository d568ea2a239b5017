// Package database provides Redis-based position exit-state persistence.
// This lets the engine resume every open position's exit state machine
// (spec.md §4.7) exactly where it left off across a process restart, with
// an in-memory fallback cache when Redis is temporarily unavailable so
// trading continues uninterrupted.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key prefixes for position state
const (
	// PositionKeyPrefix is the prefix for individual position state keys.
	// Format: autotrade:position:{exchange}:{pair}
	PositionKeyPrefix = "autotrade:position"

	// PositionListKey is the key for the set of all tracked position keys.
	PositionListKey = "autotrade:positions:list"

	// PositionStateTTL is the TTL for position state keys (7 days). Positions
	// typically close within hours/days; state is kept longer for safety.
	PositionStateTTL = 7 * 24 * time.Hour
)

// PersistedPositionState mirrors risk.Position for durable storage across
// restarts — the exit state machine's current state, stop, and high-water
// mark, keyed by pair+exchange.
type PersistedPositionState struct {
	LotID                 string    `json:"lot_id"`
	Pair                  string    `json:"pair"`
	Exchange              string    `json:"exchange"`
	EntryPrice            float64   `json:"entry_price"`
	State                 string    `json:"state"` // risk.ExitState
	StopPrice             float64   `json:"stop_price"`
	TakeProfitPrice       float64   `json:"take_profit_price"`
	TrailingHighWaterMark float64   `json:"trailing_high_water_mark"`
	SavedAt               time.Time `json:"saved_at"`
}

// RedisPositionStateRepository provides Redis-based storage for position
// exit state with an in-memory fallback cache when Redis is unavailable.
type RedisPositionStateRepository struct {
	client         *redis.Client
	inMemoryCache  map[string]*PersistedPositionState // key = "{exchange}:{pair}"
	cacheMu        sync.RWMutex
	redisAvailable atomic.Bool
}

// NewRedisPositionStateRepository creates a new RedisPositionStateRepository.
// If client is nil, the repository operates in memory-only mode.
func NewRedisPositionStateRepository(client *redis.Client) *RedisPositionStateRepository {
	repo := &RedisPositionStateRepository{
		client:        client,
		inMemoryCache: make(map[string]*PersistedPositionState),
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("[REDIS-POSITION] Redis unavailable at startup: %v, using in-memory cache", err)
			repo.redisAvailable.Store(false)
		} else {
			log.Printf("[REDIS-POSITION] Redis connected successfully")
			repo.redisAvailable.Store(true)
		}
	} else {
		log.Printf("[REDIS-POSITION] no Redis client provided, using in-memory cache only")
		repo.redisAvailable.Store(false)
	}

	return repo
}

// GetClient returns the underlying Redis client, or nil in memory-only mode.
func (r *RedisPositionStateRepository) GetClient() *redis.Client {
	return r.client
}

func (r *RedisPositionStateRepository) positionKey(exchange, pair string) string {
	return fmt.Sprintf("%s:%s:%s", PositionKeyPrefix, exchange, pair)
}

func (r *RedisPositionStateRepository) cacheKey(exchange, pair string) string {
	return fmt.Sprintf("%s:%s", exchange, pair)
}

// SavePositionState saves exit state to Redis with fallback to the
// in-memory cache. Called after every exit-state transition (spec.md §4.7).
func (r *RedisPositionStateRepository) SavePositionState(ctx context.Context, exchange, pair string, state *PersistedPositionState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil position state")
	}

	state.SavedAt = time.Now()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal position state: %w", err)
	}

	r.updateCache(exchange, pair, state)

	if r.client != nil && r.redisAvailable.Load() {
		key := r.positionKey(exchange, pair)

		pipe := r.client.TxPipeline()
		pipe.Set(ctx, key, data, PositionStateTTL)
		pipe.SAdd(ctx, PositionListKey, key)
		pipe.Expire(ctx, PositionListKey, PositionStateTTL)

		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("[REDIS-POSITION] failed to save to Redis: %v, using in-memory cache", err)
			r.redisAvailable.Store(false)
			return nil
		}

		log.Printf("[REDIS-POSITION] saved position state: %s/%s (state=%s)", exchange, pair, state.State)
	} else {
		log.Printf("[REDIS-POSITION] Redis unavailable, saved to in-memory cache: %s/%s", exchange, pair)
	}

	return nil
}

// LoadPositionState loads exit state from Redis with fallback to the
// in-memory cache. Returns nil if no state exists (not an error).
func (r *RedisPositionStateRepository) LoadPositionState(ctx context.Context, exchange, pair string) (*PersistedPositionState, error) {
	if r.client != nil && r.redisAvailable.Load() {
		key := r.positionKey(exchange, pair)
		data, err := r.client.Get(ctx, key).Result()
		if err != nil {
			if err == redis.Nil {
				return r.getFromCache(exchange, pair), nil
			}
			log.Printf("[REDIS-POSITION] Redis read error: %v, using in-memory cache", err)
			r.redisAvailable.Store(false)
			return r.getFromCache(exchange, pair), nil
		}

		r.redisAvailable.Store(true)

		var state PersistedPositionState
		if err := json.Unmarshal([]byte(data), &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal position state: %w", err)
		}

		r.updateCache(exchange, pair, &state)
		return &state, nil
	}

	return r.getFromCache(exchange, pair), nil
}

// LoadAllPositions loads every tracked position's exit state. Used at
// startup to repopulate risk.Manager before the engine worker resumes ticks.
func (r *RedisPositionStateRepository) LoadAllPositions(ctx context.Context) (map[string]*PersistedPositionState, error) {
	positions := make(map[string]*PersistedPositionState)

	if r.client != nil && r.redisAvailable.Load() {
		keys, err := r.client.SMembers(ctx, PositionListKey).Result()
		if err != nil {
			if err == redis.Nil {
				return r.getAllFromCache(), nil
			}
			log.Printf("[REDIS-POSITION] Redis read error: %v, using in-memory cache", err)
			r.redisAvailable.Store(false)
			return r.getAllFromCache(), nil
		}

		r.redisAvailable.Store(true)

		for _, key := range keys {
			data, err := r.client.Get(ctx, key).Result()
			if err != nil {
				if err != redis.Nil {
					log.Printf("[REDIS-POSITION] failed to load position %s: %v", key, err)
				}
				continue
			}
			var state PersistedPositionState
			if err := json.Unmarshal([]byte(data), &state); err != nil {
				log.Printf("[REDIS-POSITION] failed to unmarshal position %s: %v", key, err)
				continue
			}
			positions[r.cacheKey(state.Exchange, state.Pair)] = &state
		}

		if len(positions) > 0 {
			log.Printf("[REDIS-POSITION] loaded %d positions from Redis", len(positions))
		}

		return positions, nil
	}

	return r.getAllFromCache(), nil
}

// DeletePosition removes position state from Redis and the in-memory cache.
// Called when a position reaches CLOSED.
func (r *RedisPositionStateRepository) DeletePosition(ctx context.Context, exchange, pair string) error {
	r.removeFromCache(exchange, pair)

	if r.client != nil && r.redisAvailable.Load() {
		key := r.positionKey(exchange, pair)

		pipe := r.client.TxPipeline()
		pipe.Del(ctx, key)
		pipe.SRem(ctx, PositionListKey, key)

		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("[REDIS-POSITION] failed to delete from Redis: %v", err)
			r.redisAvailable.Store(false)
			return nil
		}

		log.Printf("[REDIS-POSITION] deleted position: %s/%s", exchange, pair)
	}

	return nil
}

// IsRedisAvailable returns whether Redis is currently available.
func (r *RedisPositionStateRepository) IsRedisAvailable() bool {
	return r.redisAvailable.Load()
}

// CheckRedisConnection performs a health check and updates availability status.
func (r *RedisPositionStateRepository) CheckRedisConnection(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("no Redis client configured")
	}

	if err := r.client.Ping(ctx).Err(); err != nil {
		r.redisAvailable.Store(false)
		return fmt.Errorf("redis ping failed: %w", err)
	}

	wasUnavailable := !r.redisAvailable.Load()
	r.redisAvailable.Store(true)
	if wasUnavailable {
		log.Printf("[REDIS-POSITION] Redis connection recovered")
	}

	return nil
}

// PositionStateStats reports repository health for diagnostics.
type PositionStateStats struct {
	RedisAvailable    bool `json:"redis_available"`
	InMemoryCacheSize int  `json:"in_memory_cache_size"`
}

func (r *RedisPositionStateRepository) GetStats() PositionStateStats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	return PositionStateStats{
		RedisAvailable:    r.redisAvailable.Load(),
		InMemoryCacheSize: len(r.inMemoryCache),
	}
}

// --- In-memory cache operations ---

func (r *RedisPositionStateRepository) updateCache(exchange, pair string, state *PersistedPositionState) {
	if state == nil {
		return
	}
	key := r.cacheKey(exchange, pair)

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	stateCopy := *state
	r.inMemoryCache[key] = &stateCopy
}

func (r *RedisPositionStateRepository) getFromCache(exchange, pair string) *PersistedPositionState {
	key := r.cacheKey(exchange, pair)

	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if state, exists := r.inMemoryCache[key]; exists {
		stateCopy := *state
		return &stateCopy
	}
	return nil
}

func (r *RedisPositionStateRepository) getAllFromCache() map[string]*PersistedPositionState {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	positions := make(map[string]*PersistedPositionState, len(r.inMemoryCache))
	for key, state := range r.inMemoryCache {
		stateCopy := *state
		positions[key] = &stateCopy
	}
	return positions
}

func (r *RedisPositionStateRepository) removeFromCache(exchange, pair string) {
	key := r.cacheKey(exchange, pair)

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	delete(r.inMemoryCache, key)
}

// ClearCache clears all entries from the in-memory cache. Used by tests.
func (r *RedisPositionStateRepository) ClearCache() {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	r.inMemoryCache = make(map[string]*PersistedPositionState)
}
