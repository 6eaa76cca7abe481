package domain

import (
	"context"
	"time"
)

// SubscriptionRegistry tracks live connections and their subscriptions.
// All methods are safe for concurrent use: subscribe/unsubscribe arrive
// from connection read loops while Matching runs on the router loop.
type SubscriptionRegistry interface {
	AddConnection(conn WebSocketConnection)

	// RemoveConnection cascades: every subscription owned by the
	// connection is removed in the same step. Idempotent.
	RemoveConnection(connectionID string)

	Connection(connectionID string) (WebSocketConnection, bool)

	// Subscribe fails with ConnectionNotFound when the connection is
	// not currently live.
	Subscribe(connectionID, clientID, pattern string, predicate FilterPredicate, mapper ResultMapper) (string, error)

	// Unsubscribe is idempotent; unknown ids are a no-op.
	Unsubscribe(subscriptionID string)

	// Matching returns, in unspecified order, every live subscription
	// whose pattern matches the exact channel.
	Matching(channel string) []Subscription

	ConnectionCount() int
	SubscriptionCount() int
}

// EventPublisher pushes an event onto the shared broker. Fire-and-forget:
// no delivery acknowledgment exists, and "no subscribers" is
// indistinguishable from "all subscribers missed it".
type EventPublisher interface {
	Publish(ctx context.Context, evt *Event) error
}

// TokenValidator is the external credential-validation capability.
// Token issuance and revocation live elsewhere; the gateway only asks
// whether a presented credential resolves to a principal.
type TokenValidator interface {
	Validate(ctx context.Context, credential string) (Principal, error)
}

// AuthorizationPolicy answers membership questions for filter
// predicates. The default policy allows everything, matching the
// upstream services' pending authorization checks; a real policy
// collaborator can be injected without touching the filter engine.
type AuthorizationPolicy interface {
	CanAccessConversation(p Principal, conversationID string) bool
	CanSeeUser(p Principal, userID string) bool
}

// GatewayInterface defines the core capabilities the transport layer
// needs from the assembled node.
type GatewayInterface interface {
	Registry() SubscriptionRegistry
	Publisher() EventPublisher

	RegisterConn(conn WebSocketConnection)
	UnregisterConn(conn WebSocketConnection)

	GetConnectionCount() int
	GetStartTime() time.Time
}
