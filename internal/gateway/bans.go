package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/chatwire/gateway/internal/logger"
	"go.uber.org/zap"
)

const banSweepInterval = 10 * time.Minute

// banList tracks rate-limit strikes and temporary bans per client IP.
// Each Server owns one; its sweeper stops with the server's context.
type banList struct {
	mu      sync.Mutex
	bans    map[string]time.Time
	strikes map[string]int
}

func newBanList() *banList {
	return &banList{
		bans:    make(map[string]time.Time),
		strikes: make(map[string]int),
	}
}

// Banned reports whether the IP is currently banned and for how much
// longer.
func (b *banList) Banned(ip string) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	expiry, ok := b.bans[ip]
	if !ok {
		return 0, false
	}
	if time.Now().After(expiry) {
		delete(b.bans, ip)
		return 0, false
	}
	return time.Until(expiry), true
}

// Strike records one rate-limit violation. When the strike count
// reaches threshold the IP is banned for duration and the count
// resets; the return value reports whether a ban was applied.
func (b *banList) Strike(ip string, threshold int, duration time.Duration) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.strikes[ip]++
	count := b.strikes[ip]
	if count < threshold {
		return count, false
	}

	b.bans[ip] = time.Now().Add(duration)
	delete(b.strikes, ip)
	return count, true
}

// Forgive clears accumulated strikes, called when a client connects
// cleanly.
func (b *banList) Forgive(ip string) {
	b.mu.Lock()
	delete(b.strikes, ip)
	b.mu.Unlock()
}

// removeExpired drops lapsed bans and returns how many were lifted.
func (b *banList) removeExpired(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	var lifted int
	for ip, expiry := range b.bans {
		if now.After(expiry) {
			delete(b.bans, ip)
			lifted++
		}
	}
	return lifted
}

// sweep periodically lifts expired bans until ctx is cancelled.
func (b *banList) sweep(ctx context.Context) {
	ticker := time.NewTicker(banSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if lifted := b.removeExpired(time.Now()); lifted > 0 {
				logger.Debug("Ban list cleanup completed",
					zap.Int("unbanned_count", lifted))
			}
		}
	}
}
