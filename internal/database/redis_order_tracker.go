// Package database provides Redis-based order tracking with timeout.
// Every in-flight order is tracked here and cancelled if it has not filled
// within the configured timeout, per spec.md §4.6 order-watcher behavior.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key prefixes for order tracking
const (
	// PendingOrderKeyPrefix is the prefix for pending order tracking
	// Format: autotrade:pending_order:{exchange}:{pair}:{orderID}
	PendingOrderKeyPrefix = "autotrade:pending_order"

	// PendingOrderListKey is the key for the set of all pending order keys
	PendingOrderListKey = "autotrade:pending_orders:list"

	// DefaultOrderTimeoutSec is the default timeout for orders (3 minutes)
	DefaultOrderTimeoutSec = 180
)

// PendingOrderInfo stores information about a pending order being watched
// by one order-watcher goroutine until it fills, is cancelled, or times out.
type PendingOrderInfo struct {
	OrderID       string    `json:"order_id"`
	ClientOrderID string    `json:"client_order_id"`
	Exchange      string    `json:"exchange"`
	Pair          string    `json:"pair"`
	Side          string    `json:"side"` // BUY or SELL
	Price         float64   `json:"price"`
	Quantity      float64   `json:"quantity"`
	PlacedAt      time.Time `json:"placed_at"`
	TimeoutSec    int       `json:"timeout_sec"`
	TimeoutAt     time.Time `json:"timeout_at"`
}

// OrderCancelFunc is a callback that cancels an order on the exchange.
type OrderCancelFunc func(ctx context.Context, exchange, pair, orderID string) error

// RedisOrderTracker tracks in-flight orders in Redis with timeout, so a
// restart of the engine picks up exactly where it left off (no orphaned
// orders left unmonitored across a process restart).
type RedisOrderTracker struct {
	client        *redis.Client
	mu            sync.RWMutex
	cancelFunc    OrderCancelFunc
	timeoutSec    int
	stopChan      chan struct{}
	monitorWG     sync.WaitGroup
	isRunning     bool
	checkInterval time.Duration
}

// NewRedisOrderTracker creates a new RedisOrderTracker
func NewRedisOrderTracker(client *redis.Client, timeoutSec int) *RedisOrderTracker {
	if timeoutSec <= 0 {
		timeoutSec = DefaultOrderTimeoutSec
	}

	return &RedisOrderTracker{
		client:        client,
		timeoutSec:    timeoutSec,
		stopChan:      make(chan struct{}),
		checkInterval: 10 * time.Second,
	}
}

// SetCancelFunc sets the callback function used to cancel an order on its
// exchange once it has timed out.
func (t *RedisOrderTracker) SetCancelFunc(fn OrderCancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelFunc = fn
}

// SetTimeoutSec updates the timeout duration
func (t *RedisOrderTracker) SetTimeoutSec(timeoutSec int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timeoutSec > 0 {
		t.timeoutSec = timeoutSec
	}
}

func orderKey(exchange, pair, orderID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", PendingOrderKeyPrefix, exchange, pair, orderID)
}

// TrackOrder adds an order to the tracking system, spawning the order-watcher
// goroutine's durable record.
func (t *RedisOrderTracker) TrackOrder(ctx context.Context, info PendingOrderInfo) error {
	if t.client == nil {
		return fmt.Errorf("redis client not available")
	}

	t.mu.RLock()
	timeoutSec := t.timeoutSec
	t.mu.RUnlock()

	if info.TimeoutSec <= 0 {
		info.TimeoutSec = timeoutSec
	}
	info.PlacedAt = time.Now()
	info.TimeoutAt = info.PlacedAt.Add(time.Duration(info.TimeoutSec) * time.Second)

	key := orderKey(info.Exchange, info.Pair, info.OrderID)

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal order info: %w", err)
	}

	// TTL includes a 60s cleanup buffer past the timeout.
	ttl := time.Duration(info.TimeoutSec+60) * time.Second
	if err := t.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store order in Redis: %w", err)
	}

	if err := t.client.SAdd(ctx, PendingOrderListKey, key).Err(); err != nil {
		log.Printf("[ORDER-TRACKER] warning: failed to add order to list: %v", err)
	}

	log.Printf("[ORDER-TRACKER] tracking order %s for %s/%s, timeout in %ds at %s",
		info.OrderID, info.Exchange, info.Pair, info.TimeoutSec, info.TimeoutAt.Format("15:04:05"))

	return nil
}

// RemoveOrder removes an order from tracking (filled or cancelled).
func (t *RedisOrderTracker) RemoveOrder(ctx context.Context, exchange, pair, orderID string) error {
	if t.client == nil {
		return nil
	}

	key := orderKey(exchange, pair, orderID)

	if err := t.client.Del(ctx, key).Err(); err != nil {
		log.Printf("[ORDER-TRACKER] warning: failed to remove order %s from Redis: %v", orderID, err)
	}
	if err := t.client.SRem(ctx, PendingOrderListKey, key).Err(); err != nil {
		log.Printf("[ORDER-TRACKER] warning: failed to remove order from list: %v", err)
	}

	log.Printf("[ORDER-TRACKER] removed order %s for %s from tracking", orderID, pair)
	return nil
}

// GetPendingOrders returns all pending (in-flight) orders across every pair.
func (t *RedisOrderTracker) GetPendingOrders(ctx context.Context) ([]PendingOrderInfo, error) {
	if t.client == nil {
		return nil, fmt.Errorf("redis client not available")
	}

	keys, err := t.client.SMembers(ctx, PendingOrderListKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get pending order keys: %w", err)
	}

	var orders []PendingOrderInfo
	for _, key := range keys {
		data, err := t.client.Get(ctx, key).Result()
		if err == redis.Nil {
			t.client.SRem(ctx, PendingOrderListKey, key)
			continue
		} else if err != nil {
			log.Printf("[ORDER-TRACKER] warning: failed to get order data for %s: %v", key, err)
			continue
		}

		var info PendingOrderInfo
		if err := json.Unmarshal([]byte(data), &info); err != nil {
			log.Printf("[ORDER-TRACKER] warning: failed to unmarshal order data: %v", err)
			continue
		}
		orders = append(orders, info)
	}

	return orders, nil
}

// StartMonitor starts the background monitor that cancels timed-out orders.
func (t *RedisOrderTracker) StartMonitor() {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return
	}
	t.isRunning = true
	t.stopChan = make(chan struct{})
	t.mu.Unlock()

	t.monitorWG.Add(1)
	go t.monitorLoop()

	log.Printf("[ORDER-TRACKER] started order timeout monitor (check every %v)", t.checkInterval)
}

// StopMonitor stops the background monitor.
func (t *RedisOrderTracker) StopMonitor() {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return
	}
	t.isRunning = false
	close(t.stopChan)
	t.mu.Unlock()

	t.monitorWG.Wait()
	log.Printf("[ORDER-TRACKER] stopped order timeout monitor")
}

func (t *RedisOrderTracker) monitorLoop() {
	defer t.monitorWG.Done()

	ticker := time.NewTicker(t.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopChan:
			return
		case <-ticker.C:
			t.checkAndCancelTimedOutOrders()
		}
	}
}

func (t *RedisOrderTracker) checkAndCancelTimedOutOrders() {
	ctx := context.Background()

	orders, err := t.GetPendingOrders(ctx)
	if err != nil {
		log.Printf("[ORDER-TRACKER] error getting pending orders: %v", err)
		return
	}
	if len(orders) == 0 {
		return
	}

	now := time.Now()
	t.mu.RLock()
	cancelFunc := t.cancelFunc
	t.mu.RUnlock()

	for _, order := range orders {
		if !now.After(order.TimeoutAt) {
			continue
		}

		age := now.Sub(order.PlacedAt)
		log.Printf("[ORDER-TRACKER] order %s for %s timed out after %v", order.OrderID, order.Pair, age.Round(time.Second))

		if cancelFunc != nil {
			if err := cancelFunc(ctx, order.Exchange, order.Pair, order.OrderID); err != nil {
				log.Printf("[ORDER-TRACKER] failed to cancel order %s for %s: %v", order.OrderID, order.Pair, err)
			} else {
				log.Printf("[ORDER-TRACKER] cancelled timed-out order %s for %s", order.OrderID, order.Pair)
			}
		} else {
			log.Printf("[ORDER-TRACKER] warning: no cancel function set, cannot cancel order %s", order.OrderID)
		}

		t.RemoveOrder(ctx, order.Exchange, order.Pair, order.OrderID)
	}
}

// GetOrderStatus returns the status of a specific order, or nil if it is no
// longer tracked (already filled, cancelled, or expired from Redis).
func (t *RedisOrderTracker) GetOrderStatus(ctx context.Context, exchange, pair, orderID string) (*PendingOrderInfo, error) {
	if t.client == nil {
		return nil, fmt.Errorf("redis client not available")
	}

	key := orderKey(exchange, pair, orderID)

	data, err := t.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get order status: %w", err)
	}

	var info PendingOrderInfo
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order info: %w", err)
	}

	return &info, nil
}

// GetStats returns statistics about pending orders, grouped by pair.
func (t *RedisOrderTracker) GetStats(ctx context.Context) map[string]interface{} {
	orders, err := t.GetPendingOrders(ctx)
	if err != nil {
		return map[string]interface{}{
			"error":         err.Error(),
			"pending_count": 0,
		}
	}

	t.mu.RLock()
	timeoutSec := t.timeoutSec
	isRunning := t.isRunning
	t.mu.RUnlock()

	byPair := make(map[string]int)
	for _, o := range orders {
		byPair[o.Pair]++
	}

	return map[string]interface{}{
		"pending_count":   len(orders),
		"timeout_sec":     timeoutSec,
		"monitor_running": isRunning,
		"by_pair":         byPair,
		"check_interval":  t.checkInterval.String(),
	}
}
