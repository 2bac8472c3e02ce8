// Package events defines the wire format pushed over live channels. Every
// event is a tagged envelope; payloads are concrete types so dispatch is
// checked at compile time instead of hanging off raw string tags.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/yourorg/messaging/internal/models"
)

type Type string

const (
	TypeNewMessage      Type = "message.new"
	TypeMessageEdit     Type = "message.edit"
	TypeMessageDelete   Type = "message.delete"
	TypeReactionUpdate  Type = "reaction.update"
	TypeTyping          Type = "typing"
	TypeTypingStop      Type = "typing.stop"
	TypeSettingsChanged Type = "conversation.settings"
	TypeUnreadSummary   Type = "unread.summary"
)

// Envelope is the standard wire format for push events.
type Envelope struct {
	Type           Type            `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

type NewMessage struct {
	Message models.Message `json:"message"`
}

type MessageEdit struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
	EditedAt  string `json:"edited_at"`
}

type MessageDelete struct {
	MessageID string `json:"message_id"`
}

type ReactionUpdate struct {
	MessageID string            `json:"message_id"`
	UserID    string            `json:"user_id"`
	Emoji     string            `json:"emoji"`
	Added     bool              `json:"added"`
	Reactions []models.Reaction `json:"reactions"`
}

type Typing struct {
	UserID string `json:"user_id"`
}

type SettingsChanged struct {
	DisappearingEnabled  bool  `json:"disappearing_enabled"`
	DisappearingDuration int64 `json:"disappearing_duration"`
}

type UnreadSummary struct {
	Counts map[string]int64 `json:"counts"` // conversation id -> unread
}

// New builds an envelope, marshaling the payload. Payload marshal failures
// cannot happen for the concrete types above, so the error is swallowed the
// same way the hub swallows marshal errors.
func New(t Type, conversationID string, payload any) Envelope {
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	return Envelope{Type: t, ConversationID: conversationID, Payload: raw}
}

// Decode unmarshals the payload into its concrete type. An unknown tag is an
// error; receivers log and drop it rather than crashing the read loop.
func (e Envelope) Decode() (any, error) {
	switch e.Type {
	case TypeNewMessage:
		return decodeAs[NewMessage](e.Payload)
	case TypeMessageEdit:
		return decodeAs[MessageEdit](e.Payload)
	case TypeMessageDelete:
		return decodeAs[MessageDelete](e.Payload)
	case TypeReactionUpdate:
		return decodeAs[ReactionUpdate](e.Payload)
	case TypeTyping, TypeTypingStop:
		return decodeAs[Typing](e.Payload)
	case TypeSettingsChanged:
		return decodeAs[SettingsChanged](e.Payload)
	case TypeUnreadSummary:
		return decodeAs[UnreadSummary](e.Payload)
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}

func decodeAs[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, fmt.Errorf("empty payload")
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}
