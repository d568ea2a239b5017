package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kraken-autotrade/config"
)

func TestNewCacheServiceRejectsDisabledConfig(t *testing.T) {
	_, err := NewCacheService(config.RedisConfig{Enabled: false})
	assert.Error(t, err)
}

func TestHealthTripsAfterMaxFailures(t *testing.T) {
	cs := &CacheService{healthy: true, maxFailures: 3}

	cs.recordFailure()
	assert.True(t, cs.IsHealthy())
	cs.recordFailure()
	assert.True(t, cs.IsHealthy())
	cs.recordFailure()
	assert.False(t, cs.IsHealthy(), "should mark unhealthy once failureCount reaches maxFailures")
}

func TestSuccessResetsFailureCountAndHealth(t *testing.T) {
	cs := &CacheService{healthy: false, maxFailures: 3, failureCount: 2}

	cs.recordSuccess()
	assert.True(t, cs.IsHealthy())
	assert.Equal(t, 0, cs.failureCount)
}
