package realtime

import (
	"encoding/json"

	"github.com/aura-webinar/streamhub/internal/models"
)

// Frame types on the wire.
const (
	TypePing                   = "ping"
	TypePong                   = "pong"
	TypeSubscribeStreamStatus  = "subscribe-stream-status"
	TypeSubscribe              = "subscribe"
	TypeChatMessage            = "chat-message"
	TypeSubscribeNotifications = "subscribe-notifications"
	TypeStats                  = "stats"
	TypeNewMessage             = "new-message"
	TypeError                  = "error"

	TypeStreamStatusChange = "stream-status-change"
	TypeStreamUpdate       = "stream-update"
	TypeViewersUpdate      = "viewers-update"
	TypeViewerKicked       = "viewer-kicked"
	TypeNewNotification    = "new-notification"
)

// Error texts sent in-band.
const (
	errTextMalformed      = "Invalid message format"
	errTextUnknownType    = "Unknown message type"
	errTextStreamRequired = "streamId is required"
	errTextTextRequired   = "text is required"
	errTextUserRequired   = "userId is required"
	errTextCapacity       = "Stream capacity reached"
	errTextChatFailed     = "Failed to send message"
	errTextRateLimited    = "Too many messages"
)

// InboundMessage is any frame a client may send. Fields not used by Type are ignored.
type InboundMessage struct {
	Type     string `json:"type"`
	StreamID string `json:"streamId,omitempty"`
	UserID   string `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`
	Text     string `json:"text,omitempty"`
}

// TypedMessage carries only a type discriminator (ping, pong, status envelopes).
type TypedMessage struct {
	Type string `json:"type"`
}

// StatsMessage pushes a stream's stats snapshot.
type StatsMessage struct {
	Type  string             `json:"type"`
	Stats models.StreamStats `json:"stats"`
}

// NewMessageEvent announces a persisted chat message to a stream channel.
type NewMessageEvent struct {
	Type    string             `json:"type"`
	Message models.ChatMessage `json:"message"`
}

// ErrorMessage reports a protocol, capacity or collaborator error to one client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ViewerKickedMessage tells stream-status subscribers that a viewer was removed.
type ViewerKickedMessage struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// encode marshals v, passing raw JSON through untouched.
func encode(v any) ([]byte, error) {
	switch p := v.(type) {
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(v)
	}
}

func mustEncode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

var (
	pingFrame = mustEncode(TypedMessage{Type: TypePing})
	pongFrame = mustEncode(TypedMessage{Type: TypePong})
)
