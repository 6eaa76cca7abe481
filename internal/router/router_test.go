package router

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/chatwire/gateway/internal/domain"
	"github.com/chatwire/gateway/internal/filter"
	"github.com/chatwire/gateway/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id        string
	principal domain.Principal
	frames    [][]byte
	full      bool
}

func (c *fakeConn) ID() string                  { return c.id }
func (c *fakeConn) Principal() domain.Principal { return c.principal }
func (c *fakeConn) Close()                      {}
func (c *fakeConn) RemoteAddr() string          { return "127.0.0.1" }
func (c *fakeConn) Enqueue(msg []byte) bool {
	if c.full {
		return false
	}
	c.frames = append(c.frames, msg)
	return true
}

// drain pushes the events through a router and waits for the loop to
// finish so frame slices can be read without races.
func drain(t *testing.T, reg *registry.Registry, events ...*domain.Event) {
	t.Helper()

	ch := make(chan *domain.Event, len(events))
	for _, evt := range events {
		ch <- evt
	}
	close(ch)

	r := New(reg, filter.NewEngine(), ch)
	r.Start(context.Background())
	r.Wait()
}

func decodeFrame(t *testing.T, raw []byte) domain.ServerFrame {
	t.Helper()
	var frame domain.ServerFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func TestRouteDeliversToMatchingSubscription(t *testing.T) {
	reg := registry.New()
	conn := &fakeConn{id: "c1", principal: domain.Principal{UserID: "u1"}}
	reg.AddConnection(conn)

	_, err := reg.Subscribe("c1", "sub-a", "presence.u2", nil, nil)
	require.NoError(t, err)

	drain(t, reg, &domain.Event{
		Channel: "presence.u2",
		Payload: json.RawMessage(`{"status":"online"}`),
	})

	require.Len(t, conn.frames, 1)
	frame := decodeFrame(t, conn.frames[0])
	assert.Equal(t, "event", frame.Type)
	assert.Equal(t, "sub-a", frame.ID)
	assert.Equal(t, "presence.u2", frame.Channel)
	assert.JSONEq(t, `{"status":"online"}`, string(frame.Payload))
}

func TestRouteEchoesRegistryIDWithoutClientLabel(t *testing.T) {
	reg := registry.New()
	conn := &fakeConn{id: "c1", principal: domain.Principal{UserID: "u1"}}
	reg.AddConnection(conn)

	subID, err := reg.Subscribe("c1", "", "presence.u2", nil, nil)
	require.NoError(t, err)

	drain(t, reg, &domain.Event{Channel: "presence.u2", Payload: json.RawMessage(`{}`)})

	require.Len(t, conn.frames, 1)
	assert.Equal(t, subID, decodeFrame(t, conn.frames[0]).ID)
}

func TestRouteSkipsNonMatchingChannels(t *testing.T) {
	reg := registry.New()
	conn := &fakeConn{id: "c1", principal: domain.Principal{UserID: "u1"}}
	reg.AddConnection(conn)

	_, err := reg.Subscribe("c1", "sub-a", "presence.u2", nil, nil)
	require.NoError(t, err)

	drain(t, reg, &domain.Event{Channel: "activity.u2", Payload: json.RawMessage(`{}`)})

	assert.Empty(t, conn.frames)
}

func TestRouteFiltersPerSubscription(t *testing.T) {
	reg := registry.New()
	self := &fakeConn{id: "c1", principal: domain.Principal{UserID: "u1"}}
	other := &fakeConn{id: "c2", principal: domain.Principal{UserID: "u2"}}
	reg.AddConnection(self)
	reg.AddConnection(other)

	_, err := reg.Subscribe("c1", "a", "typingStatus.conv-1", filter.ExcludeSelfOrigin(), nil)
	require.NoError(t, err)
	_, err = reg.Subscribe("c2", "a", "typingStatus.conv-1", filter.ExcludeSelfOrigin(), nil)
	require.NoError(t, err)

	drain(t, reg, &domain.Event{
		Channel: "typingStatus.conv-1",
		Payload: json.RawMessage(`{"typing":true}`),
		Origin:  "u1",
	})

	// Originator is excluded, the other participant gets the event
	assert.Empty(t, self.frames)
	assert.Len(t, other.frames, 1)
}

func TestRouteIsolatesSlowConnections(t *testing.T) {
	reg := registry.New()
	slow := &fakeConn{id: "c1", principal: domain.Principal{UserID: "u1"}, full: true}
	healthy := &fakeConn{id: "c2", principal: domain.Principal{UserID: "u2"}}
	reg.AddConnection(slow)
	reg.AddConnection(healthy)

	_, err := reg.Subscribe("c1", "a", "presence.u3", nil, nil)
	require.NoError(t, err)
	_, err = reg.Subscribe("c2", "a", "presence.u3", nil, nil)
	require.NoError(t, err)

	drain(t, reg,
		&domain.Event{Channel: "presence.u3", Payload: json.RawMessage(`{"n":1}`)},
		&domain.Event{Channel: "presence.u3", Payload: json.RawMessage(`{"n":2}`)},
	)

	// The full queue drops, the healthy connection still gets everything
	assert.Empty(t, slow.frames)
	assert.Len(t, healthy.frames, 2)
}

func TestRouteAppliesMapper(t *testing.T) {
	reg := registry.New()
	conn := &fakeConn{id: "c1", principal: domain.Principal{UserID: "u1"}}
	reg.AddConnection(conn)

	mapper := func(evt *domain.Event) ([]byte, error) {
		return json.Marshal(map[string]interface{}{
			"wrapped": json.RawMessage(evt.Payload),
		})
	}
	_, err := reg.Subscribe("c1", "a", "presence.*", nil, mapper)
	require.NoError(t, err)

	drain(t, reg, &domain.Event{Channel: "presence.u2", Payload: json.RawMessage(`{"x":1}`)})

	require.Len(t, conn.frames, 1)
	frame := decodeFrame(t, conn.frames[0])
	assert.JSONEq(t, `{"wrapped":{"x":1}}`, string(frame.Payload))
}

func TestRouteSurvivesTornDownConnection(t *testing.T) {
	reg := registry.New()
	conn := &fakeConn{id: "c1", principal: domain.Principal{UserID: "u1"}}
	reg.AddConnection(conn)

	_, err := reg.Subscribe("c1", "a", "presence.u2", nil, nil)
	require.NoError(t, err)

	// Teardown happens before the event arrives
	reg.RemoveConnection("c1")

	drain(t, reg, &domain.Event{Channel: "presence.u2", Payload: json.RawMessage(`{}`)})

	assert.Empty(t, conn.frames)
}
