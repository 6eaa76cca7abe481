package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chatwire/gateway/internal/constants"
	"github.com/chatwire/gateway/internal/domain"
	"github.com/chatwire/gateway/internal/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFamily(t *testing.T) {
	for _, family := range constants.ChannelFamilies {
		spec, err := ResolveFamily(family)
		require.NoError(t, err, family)
		assert.Equal(t, family, spec.Name)
	}

	_, err := ResolveFamily("nonsense")
	assert.Error(t, err)
}

func TestFamilyPatterns(t *testing.T) {
	me := domain.Principal{UserID: "u1"}

	msg, _ := ResolveFamily(constants.FamilyMessageReceived)
	assert.Equal(t, "messageReceived.conv-1", msg.Pattern("conv-1", me))

	// Friend status defaults to the subscriber's own feed
	fs, _ := ResolveFamily(constants.FamilyFriendStatus)
	assert.Equal(t, "friendStatus.u1", fs.Pattern("", me))
	assert.Equal(t, "friendStatus.u2", fs.Pattern("u2", me))

	// Contacts defaults to the aggregated feed; naming a target
	// narrows it to that contact's channel
	cp, _ := ResolveFamily(constants.FamilyContacts)
	assert.Equal(t, "contacts.*", cp.Pattern("", me))
	assert.Equal(t, "contacts.u2.presence", cp.Pattern("u2", me))
}

func TestBusPatternsCoverContactsChannel(t *testing.T) {
	// An event published on the exact contacts channel form must be
	// matched by one of the family patterns the bus subscribes to
	covered := false
	for _, family := range constants.ChannelFamilies {
		if domain.MatchChannel(family+".*", "contacts.u1.presence") {
			covered = true
		}
	}
	assert.True(t, covered)

	spec, err := ResolveFamily(constants.FamilyContacts)
	require.NoError(t, err)
	assert.True(t, domain.MatchChannel(spec.Pattern("", domain.Principal{UserID: "u1"}), "contacts.u1.presence"))
}

func TestClientPublishFlags(t *testing.T) {
	publishable := map[string]bool{
		constants.FamilyMessageReceived:    false,
		constants.FamilyTypingStatus:       true,
		constants.FamilyMessageStatus:      false,
		constants.FamilyParticipantChanged: false,
		constants.FamilyPresence:           true,
		constants.FamilyActivity:           true,
		constants.FamilyFriendStatus:       false,
		constants.FamilyContacts:           false,
	}
	for family, want := range publishable {
		spec, err := ResolveFamily(family)
		require.NoError(t, err)
		assert.Equal(t, want, spec.ClientPublish, family)
	}
}

func TestPublishChannelsFriendStatusPair(t *testing.T) {
	channels, err := PublishChannels(constants.FamilyFriendStatus, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"friendStatus.u1", "friendStatus.u2"}, channels)

	// Both sides of the relationship are required
	_, err = PublishChannels(constants.FamilyFriendStatus, "", "u2")
	assert.Error(t, err)
	_, err = PublishChannels(constants.FamilyFriendStatus, "u1", "")
	assert.Error(t, err)
}

func TestPublishChannelsSingleChannel(t *testing.T) {
	channels, err := PublishChannels(constants.FamilyTypingStatus, "u1", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"typingStatus.conv-1"}, channels)

	_, err = PublishChannels(constants.FamilyTypingStatus, "u1", "")
	assert.Error(t, err)

	_, err = PublishChannels("nonsense", "u1", "conv-1")
	assert.Error(t, err)
}

func TestPublishChannelsPresenceFeedsContacts(t *testing.T) {
	// A presence transition also lands on the user's contacts channel
	// so aggregated feeds observe it
	channels, err := PublishChannels(constants.FamilyPresence, "u1", "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"presence.u1", "contacts.u1.presence"}, channels)

	channels, err = PublishChannels(constants.FamilyContacts, "svc", "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"contacts.u2.presence"}, channels)
}

func TestContactsPredicate(t *testing.T) {
	spec, err := ResolveFamily(constants.FamilyContacts)
	require.NoError(t, err)

	pred := spec.Predicate(filter.AllowAllPolicy{}, "")
	me := domain.Principal{UserID: "u1"}

	// Another user's presence is visible
	assert.True(t, pred(&domain.Event{Channel: "contacts.u2.presence"}, me))

	// Own presence never comes back through the aggregated feed
	assert.False(t, pred(&domain.Event{Channel: "contacts.u1.presence"}, me))

	// Events the requester originated are excluded
	assert.False(t, pred(&domain.Event{Channel: "contacts.u2.presence", Origin: "u1"}, me))

	// Unauthenticated requesters get nothing
	assert.False(t, pred(&domain.Event{Channel: "contacts.u2.presence"}, domain.Principal{}))

	// Channels outside the contacts form carry no subject
	assert.False(t, pred(&domain.Event{Channel: "presence.u2"}, me))
}

func TestContactsMapperWrapsSubject(t *testing.T) {
	spec, err := ResolveFamily(constants.FamilyContacts)
	require.NoError(t, err)

	mapper := spec.Mapper("")
	require.NotNil(t, mapper)

	out, err := mapper(&domain.Event{
		Channel: "contacts.u2.presence",
		Payload: json.RawMessage(`{"status":"away"}`),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":"u2","payload":{"status":"away"}}`, string(out))
}

func TestContactsSubject(t *testing.T) {
	assert.Equal(t, "u2", contactsSubject("contacts.u2.presence"))
	assert.Equal(t, "", contactsSubject("contacts.u2"))
	assert.Equal(t, "", contactsSubject("presence.u2"))
	assert.Equal(t, "", contactsSubject("contacts..presence"))
}

func TestParticipantChangedIncludesActor(t *testing.T) {
	spec, err := ResolveFamily(constants.FamilyParticipantChanged)
	require.NoError(t, err)

	pred := spec.Predicate(filter.AllowAllPolicy{}, "conv-1")
	me := domain.Principal{UserID: "u1"}

	// Membership changes reach the actor too
	assert.True(t, pred(&domain.Event{Channel: "participantChanged.conv-1", Origin: "u1"}, me))
}

func TestValidateChannelName(t *testing.T) {
	assert.NoError(t, ValidateChannelName("conv-1"))
	assert.Error(t, ValidateChannelName(""))
	assert.Error(t, ValidateChannelName("has space"))
	assert.Error(t, ValidateChannelName("has\ttab"))
	assert.Error(t, ValidateChannelName(strings.Repeat("x", constants.MaxChannelLength+1)))
}

func newTestRequest(remoteAddr string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = remoteAddr
	return r
}

func TestExtractRealClientIP(t *testing.T) {
	tests := []struct {
		name       string
		realIP     string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{"x-real-ip wins", "203.0.113.7", "198.51.100.1", "10.0.0.1:1234", "203.0.113.7"},
		{"first forwarded entry", "", "198.51.100.1, 10.0.0.2", "10.0.0.1:1234", "198.51.100.1"},
		{"falls back to remote addr", "", "", "10.0.0.1:1234", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRequest(tt.remoteAddr)
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, extractRealClientIP(r))
		})
	}
}

func TestNormalizeIP(t *testing.T) {
	assert.Equal(t, "10.0.0.1", normalizeIP("10.0.0.1:8080"))
	assert.Equal(t, "10.0.0.1", normalizeIP("10.0.0.1"))
	// IPv4-mapped IPv6 collapses to IPv4
	assert.Equal(t, "10.0.0.1", normalizeIP("[::ffff:10.0.0.1]:8080"))
	assert.Equal(t, "2001:db8::1", normalizeIP("[2001:db8::1]:8080"))
}
