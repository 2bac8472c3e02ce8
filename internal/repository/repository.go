// Package repository persists the four messaging relations: conversations,
// participants, messages and reactions. Attachments ride inside the message
// document. Read paths never return soft-deleted or expired messages; the
// rows themselves are retained.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/yourorg/messaging/internal/models"
)

var ErrNotFound = errors.New("not found")

type ConversationRepo interface {
	Insert(ctx context.Context, c *models.Conversation) error
	// FindDirect looks up a direct conversation by its sorted pair key.
	FindDirect(ctx context.Context, directKey string) (*models.Conversation, error)
	FindByID(ctx context.Context, id string) (*models.Conversation, error)
	SetDisappearing(ctx context.Context, id string, enabled bool, durationSeconds int64) error
	Touch(ctx context.Context, id string, at time.Time) error
}

type ParticipantRepo interface {
	Add(ctx context.Context, ps ...*models.Participant) error
	Remove(ctx context.Context, conversationID, userID string) error
	Get(ctx context.Context, conversationID, userID string) (*models.Participant, error)
	ListByConversation(ctx context.Context, conversationID string) ([]*models.Participant, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Participant, error)
	// AdvanceLastRead moves last_read_at forward, never backward.
	AdvanceLastRead(ctx context.Context, conversationID, userID string, at time.Time) error
}

type MessageRepo interface {
	Insert(ctx context.Context, m *models.Message) error
	// FindVisible returns the message only if it is neither soft-deleted nor
	// expired at now.
	FindVisible(ctx context.Context, id string, now time.Time) (*models.Message, error)
	// ListPage returns up to limit visible messages in chronological order,
	// paging backward from the newest by offset.
	ListPage(ctx context.Context, conversationID string, limit, offset int64, now time.Time) ([]*models.Message, error)
	SetContent(ctx context.Context, id, content string, editedAt time.Time) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	CountUnread(ctx context.Context, conversationID, viewerID string, after, now time.Time) (int64, error)
	LastVisible(ctx context.Context, conversationID string, now time.Time) (*models.Message, error)
}

type ReactionRepo interface {
	// Toggle removes the reaction if it exists, otherwise adds it. Returns
	// whether the reaction is present after the call.
	Toggle(ctx context.Context, r *models.Reaction) (added bool, err error)
	ListByMessage(ctx context.Context, messageID string) ([]*models.Reaction, error)
}

// Store bundles the four repos a service needs.
type Store struct {
	Conversations ConversationRepo
	Participants  ParticipantRepo
	Messages      MessageRepo
	Reactions     ReactionRepo
}
