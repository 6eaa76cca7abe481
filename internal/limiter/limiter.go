package limiter

import (
	"sync"
	"time"

	"github.com/chatwire/gateway/internal/config"
	"github.com/chatwire/gateway/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// counter tracks limiting state for one key.
type counter struct {
	limiter     *rate.Limiter
	violations  int
	banCount    int
	banExpiry   time.Time
	banDuration time.Duration
	lastSeen    time.Time
}

// RateLimiter throttles operations per key (typically a client IP) with
// progressive bans: each ban a key earns lasts longer than the one
// before, up to the configured ceiling.
type RateLimiter struct {
	mu     sync.Mutex
	counts map[string]*counter
	cfg    config.RateLimitConfig
}

// NewRateLimiter creates a keyed rate limiter from config.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		counts: make(map[string]*counter),
		cfg:    cfg,
	}
}

// Allow checks whether an operation for the key should proceed. Keys in
// an active ban are rejected outright; repeated violations escalate
// into a ban.
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.cfg.Enabled || key == "" {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, exists := rl.counts[key]
	if !exists {
		c = &counter{
			limiter:     rate.NewLimiter(rate.Limit(rl.cfg.MaxOpsPerSecond), rl.cfg.BurstSize),
			banDuration: rl.cfg.BanDuration,
		}
		rl.counts[key] = c
	}
	c.lastSeen = time.Now()

	if !c.banExpiry.IsZero() {
		if time.Now().Before(c.banExpiry) {
			return false
		}
		// Ban expired; keep the escalated duration for the next one
		c.banExpiry = time.Time{}
		c.violations = 0
	}

	if c.limiter.Allow() {
		return true
	}

	c.violations++
	if rl.cfg.BanThreshold > 0 && c.violations >= rl.cfg.BanThreshold {
		c.banExpiry = time.Now().Add(c.banDuration)
		c.banCount++

		logger.Warn("Rate limit exceeded, key banned",
			zap.String("key", key),
			zap.Int("ban_count", c.banCount),
			zap.Duration("ban_duration", c.banDuration))

		if rl.cfg.ProgressiveBan {
			c.banDuration *= 2
			if rl.cfg.MaxBanDuration > 0 && c.banDuration > rl.cfg.MaxBanDuration {
				c.banDuration = rl.cfg.MaxBanDuration
			}
		}
	} else {
		logger.Debug("Rate limit exceeded",
			zap.String("key", key),
			zap.Int("violations", c.violations))
	}

	return false
}

// Banned reports whether the key is in an active ban and how long it
// has left.
func (rl *RateLimiter) Banned(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, exists := rl.counts[key]
	if !exists || c.banExpiry.IsZero() {
		return false, 0
	}
	remaining := time.Until(c.banExpiry)
	if remaining <= 0 {
		return false, 0
	}
	return true, remaining
}

// Reset clears the state for a key.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.counts, key)
}

// Cleanup removes counters idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, c := range rl.counts {
		if now.Sub(c.lastSeen) > maxIdle && now.After(c.banExpiry) {
			delete(rl.counts, key)
		}
	}
}

// Size returns the number of tracked keys.
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.counts)
}
