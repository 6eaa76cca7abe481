package domain

// WebSocketConnection represents a client WebSocket connection.
// This abstraction is used by both the gateway and application packages.
type WebSocketConnection interface {
	// ID returns the process-local opaque connection id.
	ID() string

	// Principal returns the identity resolved at handshake time.
	Principal() Principal

	// Enqueue offers a serialized frame to the connection's bounded
	// outbound queue without blocking. It returns false when the queue
	// is full or the connection is closed; the caller owns the drop
	// policy.
	Enqueue(msg []byte) bool

	// Close tears the connection down. Idempotent.
	Close()

	// Remote address for logging/identification
	RemoteAddr() string
}

// ConnectionManager defines the interface for managing WebSocket connections
type ConnectionManager interface {
	RegisterConn(conn WebSocketConnection)
	UnregisterConn(conn WebSocketConnection)
}
