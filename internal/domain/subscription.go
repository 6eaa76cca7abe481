package domain

import "strings"

// Subscription is one client's registered interest in a channel family.
// A subscription's ConnectionID must reference a currently-live
// connection; the registry purges subscriptions in the same step as the
// owning connection's teardown.
type Subscription struct {
	ID           string
	ConnectionID string

	// ClientID is the client-chosen label echoed back on delivered
	// frames. Unique per connection, not globally.
	ClientID string

	// Pattern is either an exact channel ("presence.u1") or a
	// wildcard-suffixed family ("presence.*").
	Pattern string

	Predicate FilterPredicate
	Mapper    ResultMapper
}

// MatchChannel reports whether pattern matches the exact channel name.
// Matching is exact-or-wildcard-suffix only, never regex, to keep the
// per-event matching cost bounded.
func MatchChannel(pattern, channel string) bool {
	if pattern == channel {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return len(channel) > len(prefix)+1 &&
			strings.HasPrefix(channel, prefix) &&
			channel[len(prefix)] == '.'
	}
	return false
}
