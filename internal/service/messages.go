package service

import (
	"context"
	"strings"
	"time"

	"github.com/yourorg/messaging/internal/apperr"
	"github.com/yourorg/messaging/internal/models"
	"github.com/yourorg/messaging/internal/repository"
)

// DefaultPageSize caps history reads; "has more" is inferred purely from a
// full page.
const DefaultPageSize int64 = 50

type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Content        string
	Attachments    []models.Attachment
	ReplyTo        string
}

// SendMessage validates, stamps expiry from the conversation's disappearing
// settings at send time, persists and fans out.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*models.Message, error) {
	if err := s.checkGate(ctx, in.SenderID, "send_message"); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.Attachments) == 0 {
		return nil, apperr.Validation("message needs content or attachments")
	}
	conv, err := s.requireParticipant(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		return nil, err
	}
	if in.ReplyTo != "" {
		parent, err := s.store.Messages.FindVisible(ctx, in.ReplyTo, s.now())
		if err != nil {
			if err == repository.ErrNotFound {
				return nil, apperr.NotFound("message", in.ReplyTo)
			}
			return nil, err
		}
		if parent.ConversationID != in.ConversationID {
			return nil, apperr.Validation("reply_to message belongs to another conversation")
		}
	}

	msg := &models.Message{
		ID:             s.newID(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        content,
		Type:           models.MessageText,
		ReplyTo:        in.ReplyTo,
		Attachments:    in.Attachments,
	}
	if len(in.Attachments) > 0 {
		msg.Type = models.MessageMedia
	}
	// expiry is fixed at send time; later settings changes do not touch
	// already-sent messages
	if conv.DisappearingEnabled && conv.DisappearingDuration > 0 {
		exp := s.now().Add(time.Duration(conv.DisappearingDuration) * time.Second)
		msg.ExpiresAt = &exp
	}

	if err := s.store.Messages.Insert(ctx, msg); err != nil {
		return nil, err
	}
	_ = s.store.Conversations.Touch(ctx, in.ConversationID, msg.CreatedAt)
	s.notifier.MessageSent(ctx, conv, msg)
	return msg, nil
}

// GetMessages returns one page of visible history in chronological order.
// Offset pages backward from the newest message.
func (s *Service) GetMessages(ctx context.Context, conversationID, userID string, limit, offset int64) ([]*models.Message, error) {
	if _, err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > DefaultPageSize {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Messages.ListPage(ctx, conversationID, limit, offset, s.now())
}

// EditMessage replaces content; only the sender may edit.
func (s *Service) EditMessage(ctx context.Context, messageID, actorID, content string) (*models.Message, error) {
	if err := s.checkGate(ctx, actorID, "edit_message"); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("edited content cannot be empty")
	}
	msg, err := s.store.Messages.FindVisible(ctx, messageID, s.now())
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("message", messageID)
		}
		return nil, err
	}
	if msg.SenderID != actorID {
		return nil, apperr.Permission("only the sender may edit a message")
	}
	editedAt := s.now()
	if err := s.store.Messages.SetContent(ctx, messageID, content, editedAt); err != nil {
		return nil, err
	}
	msg.Content = content
	msg.EditedAt = &editedAt
	s.notifier.MessageEdited(ctx, msg.ConversationID, msg)
	return msg, nil
}

// DeleteMessage soft-deletes; the row is retained and filtered from reads.
func (s *Service) DeleteMessage(ctx context.Context, messageID, actorID string) error {
	if err := s.checkGate(ctx, actorID, "delete_message"); err != nil {
		return err
	}
	msg, err := s.store.Messages.FindVisible(ctx, messageID, s.now())
	if err != nil {
		if err == repository.ErrNotFound {
			return apperr.NotFound("message", messageID)
		}
		return err
	}
	if msg.SenderID != actorID {
		return apperr.Permission("only the sender may delete a message")
	}
	if err := s.store.Messages.SoftDelete(ctx, messageID, s.now()); err != nil {
		return err
	}
	s.notifier.MessageDeleted(ctx, msg.ConversationID, messageID, actorID)
	return nil
}
