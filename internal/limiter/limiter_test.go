package limiter

import (
	"testing"
	"time"

	"github.com/chatwire/gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:         true,
		MaxOpsPerSecond: 1,
		BurstSize:       2,
		BanThreshold:    3,
		ProgressiveBan:  true,
		BanDuration:     time.Minute,
		MaxBanDuration:  4 * time.Minute,
	}
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: false})
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("10.0.0.1"))
	}
}

func TestEmptyKeyBypassesLimiting(t *testing.T) {
	rl := NewRateLimiter(testConfig())
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow(""))
	}
}

func TestBurstThenThrottle(t *testing.T) {
	rl := NewRateLimiter(testConfig())

	// Burst capacity admits the first operations
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))

	// Burst exhausted, refill is 1/s
	assert.False(t, rl.Allow("10.0.0.1"))
}

func TestViolationsEscalateToBan(t *testing.T) {
	rl := NewRateLimiter(testConfig())
	key := "10.0.0.1"

	// Exhaust the burst
	rl.Allow(key)
	rl.Allow(key)

	// Accumulate violations up to the ban threshold
	for i := 0; i < 3; i++ {
		assert.False(t, rl.Allow(key))
	}

	banned, remaining := rl.Banned(key)
	require.True(t, banned)
	assert.Greater(t, remaining, time.Duration(0))

	// Other keys are unaffected
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestProgressiveBanEscalation(t *testing.T) {
	rl := NewRateLimiter(testConfig())
	key := "10.0.0.1"

	rl.Allow(key)
	rl.Allow(key)
	for i := 0; i < 3; i++ {
		rl.Allow(key)
	}

	rl.mu.Lock()
	c := rl.counts[key]
	firstBan := c.banExpiry
	require.False(t, firstBan.IsZero())
	// Next ban would last twice as long, capped at the ceiling
	assert.Equal(t, 2*time.Minute, c.banDuration)
	rl.mu.Unlock()
}

func TestResetClearsState(t *testing.T) {
	rl := NewRateLimiter(testConfig())
	key := "10.0.0.1"

	rl.Allow(key)
	rl.Allow(key)
	for i := 0; i < 3; i++ {
		rl.Allow(key)
	}
	banned, _ := rl.Banned(key)
	require.True(t, banned)

	rl.Reset(key)
	banned, _ = rl.Banned(key)
	assert.False(t, banned)
	assert.True(t, rl.Allow(key))
}

func TestCleanupDropsIdleKeys(t *testing.T) {
	rl := NewRateLimiter(testConfig())

	rl.Allow("10.0.0.1")
	require.Equal(t, 1, rl.Size())

	// Nothing is idle yet
	rl.Cleanup(time.Hour)
	assert.Equal(t, 1, rl.Size())

	rl.Cleanup(0)
	assert.Equal(t, 0, rl.Size())
}
