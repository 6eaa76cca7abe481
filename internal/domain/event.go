package domain

import (
	"encoding/json"
	"time"
)

// Event is a fact published by some other part of the system (message
// sent, typing changed, presence changed, friend-status changed).
// Events are immutable once published and are not persisted by the
// gateway; a missed event is simply lost.
type Event struct {
	// Channel is the exact topic string the publisher used,
	// e.g. "messageReceived.conv-42" or "presence.u1".
	Channel string `json:"channel"`

	// Payload is opaque structured data owned by the publisher.
	Payload json.RawMessage `json:"payload"`

	// Origin is the user id of the originating principal, when known.
	// Used by the exclude-self filter so users are not notified of
	// their own actions.
	Origin string `json:"origin,omitempty"`

	ReceivedAt time.Time `json:"-"`
}

// FilterPredicate decides whether an event should be delivered to the
// subscription it is attached to. Predicates must be side-effect-free
// and treat malformed payloads as non-matching.
type FilterPredicate func(evt *Event, requester Principal) bool

// ResultMapper projects a raw event into the payload actually written
// to the client.
type ResultMapper func(evt *Event) ([]byte, error)
