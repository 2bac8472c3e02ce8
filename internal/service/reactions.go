package service

import (
	"context"

	"github.com/yourorg/messaging/internal/apperr"
	"github.com/yourorg/messaging/internal/models"
	"github.com/yourorg/messaging/internal/repository"
)

// ToggleReaction adds the reaction, or removes it if the identical
// (message, user, emoji) reaction already exists. Distinct emojis from the
// same user coexist.
func (s *Service) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (added bool, err error) {
	if err := s.checkGate(ctx, userID, "reaction"); err != nil {
		return false, err
	}
	if emoji == "" {
		return false, apperr.Validation("emoji is required")
	}
	msg, err := s.store.Messages.FindVisible(ctx, messageID, s.now())
	if err != nil {
		if err == repository.ErrNotFound {
			return false, apperr.NotFound("message", messageID)
		}
		return false, err
	}
	if _, err := s.requireParticipant(ctx, msg.ConversationID, userID); err != nil {
		return false, err
	}

	r := &models.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji}
	added, err = s.store.Reactions.Toggle(ctx, r)
	if err != nil {
		return false, err
	}
	all, err := s.store.Reactions.ListByMessage(ctx, messageID)
	if err != nil {
		s.log.Warnw("listing reactions after toggle", "message_id", messageID, "err", err)
		all = nil
	}
	s.notifier.ReactionToggled(ctx, msg.ConversationID, r, added, all)
	return added, nil
}

// GetReactions lists all reactions on a message.
func (s *Service) GetReactions(ctx context.Context, messageID, userID string) ([]*models.Reaction, error) {
	msg, err := s.store.Messages.FindVisible(ctx, messageID, s.now())
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("message", messageID)
		}
		return nil, err
	}
	if _, err := s.requireParticipant(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	return s.store.Reactions.ListByMessage(ctx, messageID)
}
