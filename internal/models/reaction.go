package models

import "time"

// Reaction is unique per (message, user, emoji); a user may hold several
// distinct-emoji reactions on one message.
type Reaction struct {
	MessageID string    `bson:"message_id" json:"message_id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Emoji     string    `bson:"emoji" json:"emoji"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
