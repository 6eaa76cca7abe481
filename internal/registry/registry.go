package registry

import (
	"sync"

	"github.com/chatwire/gateway/internal/constants"
	"github.com/chatwire/gateway/internal/domain"
	apperrors "github.com/chatwire/gateway/internal/errors"
	"github.com/chatwire/gateway/internal/logger"
	"github.com/chatwire/gateway/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry is the in-memory subscription table. It indexes
// subscriptions by id, by owning connection, and by pattern so that
// teardown and per-event matching are both cheap. A subscription can
// never outlive its connection: RemoveConnection purges both in one
// critical section.
type Registry struct {
	mu     sync.RWMutex
	logger *zap.Logger

	conns     map[string]domain.WebSocketConnection
	subs      map[string]*domain.Subscription
	byConn    map[string]map[string]struct{}
	byPattern map[string]map[string]struct{}

	maxPerConn int
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		logger:     logger.New("registry"),
		conns:      make(map[string]domain.WebSocketConnection),
		subs:       make(map[string]*domain.Subscription),
		byConn:     make(map[string]map[string]struct{}),
		byPattern:  make(map[string]map[string]struct{}),
		maxPerConn: constants.MaxSubscriptions,
	}
}

// AddConnection makes the connection eligible for subscriptions.
func (r *Registry) AddConnection(conn domain.WebSocketConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn.ID()] = conn
}

// RemoveConnection drops the connection and every subscription it
// owns. Safe to call multiple times and for unknown ids.
func (r *Registry) RemoveConnection(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connectionID]; !ok {
		if _, hasSubs := r.byConn[connectionID]; !hasSubs {
			return
		}
	}
	delete(r.conns, connectionID)

	removed := 0
	for subID := range r.byConn[connectionID] {
		r.removeSubLocked(subID)
		removed++
	}
	delete(r.byConn, connectionID)

	if removed > 0 {
		r.logger.Debug("connection subscriptions purged",
			zap.String("connection_id", connectionID),
			zap.Int("count", removed))
	}
}

// Connection returns the live connection for an id.
func (r *Registry) Connection(connectionID string) (domain.WebSocketConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connectionID]
	return conn, ok
}

// Subscribe registers interest in a channel pattern for a live
// connection and returns the subscription id.
func (r *Registry) Subscribe(connectionID, clientID, pattern string, predicate domain.FilterPredicate, mapper domain.ResultMapper) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connectionID]; !ok {
		return "", apperrors.ConnectionNotFoundError(connectionID)
	}
	if len(r.byConn[connectionID]) >= r.maxPerConn {
		return "", apperrors.SubscriptionError("", "subscription limit reached")
	}

	sub := &domain.Subscription{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		ClientID:     clientID,
		Pattern:      pattern,
		Predicate:    predicate,
		Mapper:       mapper,
	}

	r.subs[sub.ID] = sub

	if r.byConn[connectionID] == nil {
		r.byConn[connectionID] = make(map[string]struct{})
	}
	r.byConn[connectionID][sub.ID] = struct{}{}

	if r.byPattern[pattern] == nil {
		r.byPattern[pattern] = make(map[string]struct{})
	}
	r.byPattern[pattern][sub.ID] = struct{}{}

	metrics.IncrementActiveSubscriptions()
	return sub.ID, nil
}

// Unsubscribe removes one subscription. Unknown ids are a no-op, so
// client retries and races with teardown are harmless.
func (r *Registry) Unsubscribe(subscriptionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[subscriptionID]
	if !ok {
		return
	}

	r.removeSubLocked(subscriptionID)
	if owned := r.byConn[sub.ConnectionID]; owned != nil {
		delete(owned, subscriptionID)
		if len(owned) == 0 {
			delete(r.byConn, sub.ConnectionID)
		}
	}
}

// Matching returns every live subscription whose pattern matches the
// exact channel name.
func (r *Registry) Matching(channel string) []domain.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Subscription
	for pattern, subIDs := range r.byPattern {
		if !domain.MatchChannel(pattern, channel) {
			continue
		}
		for subID := range subIDs {
			if sub, ok := r.subs[subID]; ok {
				out = append(out, *sub)
			}
		}
	}
	return out
}

// ConnectionCount returns the number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// SubscriptionCount returns the number of live subscriptions.
func (r *Registry) SubscriptionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.subs)
}

// SubscriptionsForConnection returns the ids owned by a connection.
func (r *Registry) SubscriptionsForConnection(connectionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.byConn[connectionID]))
	for id := range r.byConn[connectionID] {
		ids = append(ids, id)
	}
	return ids
}

// removeSubLocked removes a subscription from the id and pattern
// indexes. Caller holds the write lock and owns the byConn cleanup.
func (r *Registry) removeSubLocked(subscriptionID string) {
	sub, ok := r.subs[subscriptionID]
	if !ok {
		return
	}
	delete(r.subs, subscriptionID)

	if set := r.byPattern[sub.Pattern]; set != nil {
		delete(set, subscriptionID)
		if len(set) == 0 {
			delete(r.byPattern, sub.Pattern)
		}
	}

	metrics.DecrementActiveSubscriptions()
}
