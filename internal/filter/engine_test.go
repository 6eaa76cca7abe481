package filter

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/chatwire/gateway/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestAllowNilPredicate(t *testing.T) {
	e := NewEngine()
	sub := &domain.Subscription{ID: "s1"}
	evt := &domain.Event{Channel: "presence.u1"}

	assert.True(t, e.Allow(sub, evt, domain.Principal{}))
}

func TestAllowFailsClosedOnPanic(t *testing.T) {
	e := NewEngine()
	sub := &domain.Subscription{
		ID: "s1",
		Predicate: func(evt *domain.Event, requester domain.Principal) bool {
			panic("boom")
		},
	}
	evt := &domain.Event{Channel: "presence.u1"}

	assert.False(t, e.Allow(sub, evt, domain.Principal{UserID: "u1"}))
}

func TestMapNilMapperPassesPayloadThrough(t *testing.T) {
	e := NewEngine()
	sub := &domain.Subscription{ID: "s1"}
	evt := &domain.Event{Payload: json.RawMessage(`{"a":1}`)}

	out, ok := e.Map(sub, evt)
	assert.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(out))
}

func TestMapSuppressesOnErrorAndPanic(t *testing.T) {
	e := NewEngine()
	evt := &domain.Event{Channel: "presence.u1"}

	failing := &domain.Subscription{
		ID:     "s1",
		Mapper: func(evt *domain.Event) ([]byte, error) { return nil, errors.New("bad payload") },
	}
	_, ok := e.Map(failing, evt)
	assert.False(t, ok)

	panicking := &domain.Subscription{
		ID:     "s2",
		Mapper: func(evt *domain.Event) ([]byte, error) { panic("boom") },
	}
	_, ok = e.Map(panicking, evt)
	assert.False(t, ok)
}

func TestAuthenticatedPredicate(t *testing.T) {
	pred := Authenticated()
	evt := &domain.Event{}

	assert.False(t, pred(evt, domain.Principal{}))
	assert.True(t, pred(evt, domain.Principal{UserID: "u1"}))
	// Anonymous bypass principals still pass: they carry a synthetic id
	assert.True(t, pred(evt, domain.Principal{UserID: "anon-1", Anonymous: true}))
}

func TestExcludeSelfOrigin(t *testing.T) {
	pred := ExcludeSelfOrigin()
	me := domain.Principal{UserID: "u1"}

	assert.False(t, pred(&domain.Event{Origin: "u1"}, me))
	assert.True(t, pred(&domain.Event{Origin: "u2"}, me))
	// Unknown origin is delivered rather than guessed at
	assert.True(t, pred(&domain.Event{}, me))
}

func TestAllShortCircuits(t *testing.T) {
	calls := 0
	deny := func(evt *domain.Event, requester domain.Principal) bool { calls++; return false }
	never := func(evt *domain.Event, requester domain.Principal) bool { calls++; return true }

	pred := All(deny, never)
	assert.False(t, pred(&domain.Event{}, domain.Principal{}))
	assert.Equal(t, 1, calls)

	// Nil members are skipped
	assert.True(t, All(nil, nil)(&domain.Event{}, domain.Principal{}))
}

func TestAllowAllPolicy(t *testing.T) {
	p := AllowAllPolicy{}
	assert.True(t, p.CanAccessConversation(domain.Principal{}, "conv-1"))
	assert.True(t, p.CanSeeUser(domain.Principal{}, "u2"))
}
