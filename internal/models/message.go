package models

import "time"

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageMedia MessageType = "media"
)

type Message struct {
	ID             string      `bson:"_id,omitempty" json:"id"`
	ConversationID string      `bson:"conversation_id" json:"conversation_id"`
	SenderID       string      `bson:"sender_id" json:"sender_id"`
	Content        string      `bson:"content" json:"content"`
	Type           MessageType `bson:"type" json:"type"`
	ReplyTo        string      `bson:"reply_to,omitempty" json:"reply_to,omitempty"`

	Attachments []Attachment `bson:"attachments,omitempty" json:"attachments,omitempty"`

	ExpiresAt *time.Time `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	EditedAt  *time.Time `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	DeletedAt *time.Time `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Visible reports whether the message appears on read paths at the given
// instant. Soft-deleted and expired rows stay in storage but are filtered
// everywhere.
func (m *Message) Visible(now time.Time) bool {
	if m.DeletedAt != nil {
		return false
	}
	if m.ExpiresAt != nil && !m.ExpiresAt.After(now) {
		return false
	}
	return true
}

// Attachment metadata is opaque to this subsystem; it persists what the
// upload service hands it.
type Attachment struct {
	FileHash string `bson:"file_hash" json:"file_hash"`
	Name     string `bson:"name" json:"name"`
	Type     string `bson:"type" json:"type"`
	Size     int64  `bson:"size" json:"size"`
	URL      string `bson:"url" json:"url"`
}
