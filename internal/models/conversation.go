package models

import "time"

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

type Conversation struct {
	ID    string           `bson:"_id,omitempty" json:"id"`
	Type  ConversationType `bson:"type" json:"type"`
	Title string           `bson:"title,omitempty" json:"title,omitempty"`

	// DirectKey is the sorted "a:b" user pair for direct conversations.
	// A unique index on it makes direct-pair creation idempotent.
	DirectKey string `bson:"direct_key,omitempty" json:"-"`

	DisappearingEnabled  bool  `bson:"disappearing_enabled" json:"disappearing_enabled"`
	DisappearingDuration int64 `bson:"disappearing_duration,omitempty" json:"disappearing_duration,omitempty"` // seconds

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Participant is one (conversation, user) membership row. LastReadAt only
// ever advances; unread counts are derived from it.
type Participant struct {
	ConversationID string    `bson:"conversation_id" json:"conversation_id"`
	UserID         string    `bson:"user_id" json:"user_id"`
	JoinedAt       time.Time `bson:"joined_at" json:"joined_at"`
	LastReadAt     time.Time `bson:"last_read_at" json:"last_read_at"`
}

// ConversationSummary is a conversation joined with per-viewer state for
// list views.
type ConversationSummary struct {
	Conversation Conversation `json:"conversation"`
	UnreadCount  int64        `json:"unread_count"`
	LastMessage  *Message     `json:"last_message,omitempty"`
}
