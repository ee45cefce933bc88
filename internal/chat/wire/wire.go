// Package wire defines the JSON events exchanged on the chat websocket.
//
// The gateway and the session engine share these types so both sides agree
// on event names and payload shapes without a schema compiler.
package wire

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event names carried in the frame envelope.
const (
	// EventChatMessage carries a chat message in either direction: the
	// client sends {roomId, content}, the gateway broadcasts the full
	// message including sender identity.
	EventChatMessage = "chatMessage"
	// EventSetActiveRoom switches the room a connection is subscribed to.
	// A null roomId leaves the current room.
	EventSetActiveRoom = "setActiveRoom"
)

// Frame is the envelope for every websocket event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame wraps a payload into a frame for the given event.
func NewFrame(event string, payload any) (Frame, error) {
	event = strings.TrimSpace(event)
	if event == "" {
		return Frame{}, fmt.Errorf("event name is required")
	}
	if payload == nil {
		return Frame{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Frame{Event: event, Data: data}, nil
}

// Decode unmarshals the frame payload into target.
func (f Frame) Decode(target any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%s frame has no payload", f.Event)
	}
	if err := json.Unmarshal(f.Data, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", f.Event, err)
	}
	return nil
}

// SetActiveRoom is the client payload for EventSetActiveRoom. A nil RoomID
// clears the subscription.
type SetActiveRoom struct {
	RoomID *string `json:"roomId"`
}

// ChatSend is the client payload for EventChatMessage.
type ChatSend struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
}

// ChatMessage is the gateway payload for EventChatMessage. SenderName and
// AvatarURL are populated for group rooms where the receiving client cannot
// derive the sender identity from the room itself.
type ChatMessage struct {
	UserID     int64     `json:"userId"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	RoomID     string    `json:"roomId"`
	SenderName string    `json:"senderName,omitempty"`
	AvatarURL  string    `json:"avatarUrl,omitempty"`
}
