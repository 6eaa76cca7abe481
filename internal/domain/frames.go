package domain

import "encoding/json"

// ClientCommand is one inbound client frame.
type ClientCommand struct {
	Action  string          `json:"action"`
	ID      string          `json:"id,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerFrame is one outbound frame to a client.
type ServerFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
}

// EncodeEventFrame builds the delivery frame for a subscription.
func EncodeEventFrame(subscriptionID, channel string, payload []byte) ([]byte, error) {
	return json.Marshal(ServerFrame{
		Type:    "event",
		ID:      subscriptionID,
		Channel: channel,
		Payload: payload,
	})
}
