package constants

import "time"

// Channel families. Every broker channel starts with "<family>."; the
// family decides which filter and mapper a subscription gets. Most
// channels are "<family>.<target>"; the contacts family uses
// "contacts.<userId>.presence".
const (
	FamilyMessageReceived    = "messageReceived"
	FamilyTypingStatus       = "typingStatus"
	FamilyMessageStatus      = "messageStatus"
	FamilyParticipantChanged = "participantChanged"
	FamilyPresence           = "presence"
	FamilyActivity           = "activity"
	FamilyFriendStatus       = "friendStatus"
	FamilyContacts           = "contacts"
)

// ContactsChannelSuffix closes a contacts channel name:
// "contacts.<userId>.presence".
const ContactsChannelSuffix = ".presence"

// ChannelFamilies is the bounded list the broker subscription covers.
// The bus subscribes to "<family>.*" for each entry rather than a
// global wildcard, so unrelated broker traffic never reaches the
// router loop.
var ChannelFamilies = []string{
	FamilyMessageReceived,
	FamilyTypingStatus,
	FamilyMessageStatus,
	FamilyParticipantChanged,
	FamilyPresence,
	FamilyActivity,
	FamilyFriendStatus,
	FamilyContacts,
}

// Client wire protocol actions
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPublish     = "publish"
	ActionPing        = "ping"
)

// Server frame types
const (
	FrameEvent = "event"
	FrameAck   = "ack"
	FrameError = "error"
	FramePong  = "pong"
)

// Gateway limitations and settings
const (
	MaxMessageLength      = 16 * 1024 // max inbound client frame
	MaxSubscriptions      = 100       // per connection
	MaxSubIDLength        = 100
	MaxChannelLength      = 256
	MaxPayloadLength      = 8 * 1024 // client-originated publish payloads
	DefaultOutboundBuffer = 256
)

// Timeout constants
const (
	WriteTimeout       = 10 * time.Second
	PongTimeout        = 60 * time.Second
	PingInterval       = 54 * time.Second // under PongTimeout so pongs arrive in time
	CloseGracePeriod   = 5 * time.Second
	ShutdownTimeout    = 30 * time.Second
	HealthCheckTimeout = 5 * time.Second
	PublishTimeout     = 5 * time.Second
)

// Broker reconnect backoff
const (
	ReconnectBaseDelay = 500 * time.Millisecond
	ReconnectMaxDelay  = 30 * time.Second
)
