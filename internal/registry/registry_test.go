package registry

import (
	"fmt"
	"testing"

	"github.com/chatwire/gateway/internal/constants"
	"github.com/chatwire/gateway/internal/domain"
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

func newConn(id string) *fakeConn {
	return &fakeConn{id: id, principal: domain.Principal{UserID: "user-" + id}}
}

func TestSubscribeRequiresLiveConnection(t *testing.T) {
	r := New()

	_, err := r.Subscribe("ghost", "s1", "presence.u1", nil, nil)
	require.Error(t, err)
	assert.Equal(t, 0, r.SubscriptionCount())
}

func TestSubscribeAndMatch(t *testing.T) {
	r := New()
	conn := newConn("c1")
	r.AddConnection(conn)

	id, err := r.Subscribe("c1", "s1", "presence.u1", nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	subs := r.Matching("presence.u1")
	require.Len(t, subs, 1)
	assert.Equal(t, "c1", subs[0].ConnectionID)
	assert.Equal(t, "s1", subs[0].ClientID)

	assert.Empty(t, r.Matching("presence.u2"))
}

func TestWildcardMatching(t *testing.T) {
	r := New()
	r.AddConnection(newConn("c1"))

	_, err := r.Subscribe("c1", "s1", "presence.*", nil, nil)
	require.NoError(t, err)

	assert.Len(t, r.Matching("presence.u1"), 1)
	assert.Len(t, r.Matching("presence.u2"), 1)
	assert.Empty(t, r.Matching("activity.u1"))
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	r := New()
	r.AddConnection(newConn("c1"))

	id, err := r.Subscribe("c1", "s1", "typingStatus.conv-1", nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, r.SubscriptionCount())

	r.Unsubscribe(id)
	assert.Equal(t, 0, r.SubscriptionCount())

	// Second removal and unknown ids are no-ops
	r.Unsubscribe(id)
	r.Unsubscribe("never-existed")
	assert.Equal(t, 0, r.SubscriptionCount())
}

func TestRemoveConnectionCascades(t *testing.T) {
	r := New()
	r.AddConnection(newConn("c1"))
	r.AddConnection(newConn("c2"))

	_, err := r.Subscribe("c1", "a", "presence.u1", nil, nil)
	require.NoError(t, err)
	_, err = r.Subscribe("c1", "b", "activity.u1", nil, nil)
	require.NoError(t, err)
	keptID, err := r.Subscribe("c2", "a", "presence.u1", nil, nil)
	require.NoError(t, err)

	r.RemoveConnection("c1")

	assert.Equal(t, 1, r.ConnectionCount())
	assert.Equal(t, 1, r.SubscriptionCount())

	// The other connection's subscription survives
	subs := r.Matching("presence.u1")
	require.Len(t, subs, 1)
	assert.Equal(t, keptID, subs[0].ID)

	// Repeat removal is harmless
	r.RemoveConnection("c1")
	assert.Equal(t, 1, r.SubscriptionCount())
}

func TestSubscriptionLimit(t *testing.T) {
	r := New()
	r.AddConnection(newConn("c1"))

	for i := 0; i < constants.MaxSubscriptions; i++ {
		_, err := r.Subscribe("c1", "", fmt.Sprintf("presence.u%d", i), nil, nil)
		require.NoError(t, err)
	}

	_, err := r.Subscribe("c1", "", "presence.overflow", nil, nil)
	assert.Error(t, err)
	assert.Equal(t, constants.MaxSubscriptions, r.SubscriptionCount())
}

func TestConnectionLookup(t *testing.T) {
	r := New()
	conn := newConn("c1")
	r.AddConnection(conn)

	got, ok := r.Connection("c1")
	require.True(t, ok)
	assert.Equal(t, conn, got)

	_, ok = r.Connection("c2")
	assert.False(t, ok)
}
