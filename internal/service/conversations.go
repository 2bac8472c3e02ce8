package service

import (
	"context"
	"sort"
	"strings"

	"github.com/yourorg/messaging/internal/apperr"
	"github.com/yourorg/messaging/internal/models"
	"github.com/yourorg/messaging/internal/repository"
)

// directKey builds the canonical sorted pair key for a direct conversation.
func directKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

type CreateConversationInput struct {
	CreatorID    string
	Participants []string // other user ids, excluding the creator
	Type         models.ConversationType
	Title        string
}

// CreateConversation creates a conversation, or for a direct pair returns
// the existing one idempotently.
func (s *Service) CreateConversation(ctx context.Context, in CreateConversationInput) (*models.Conversation, error) {
	if err := s.checkGate(ctx, in.CreatorID, "create_conversation"); err != nil {
		return nil, err
	}

	members := dedupe(append([]string{in.CreatorID}, in.Participants...))

	switch in.Type {
	case models.ConversationDirect:
		if len(members) != 2 {
			return nil, apperr.Validation("direct conversation requires exactly 2 participants, got %d", len(members))
		}
		if in.Title != "" {
			return nil, apperr.Validation("direct conversations cannot have a title")
		}
	case models.ConversationGroup:
		if len(members) < 2 {
			return nil, apperr.Validation("group conversation requires at least 2 participants, got %d", len(members))
		}
	default:
		return nil, apperr.Validation("unknown conversation type %q", in.Type)
	}

	conv := &models.Conversation{
		ID:    s.newID(),
		Type:  in.Type,
		Title: strings.TrimSpace(in.Title),
	}

	if in.Type == models.ConversationDirect {
		conv.DirectKey = directKey(members[0], members[1])
		if existing, err := s.store.Conversations.FindDirect(ctx, conv.DirectKey); err == nil {
			return existing, nil
		} else if err != repository.ErrNotFound {
			return nil, err
		}
	}

	if err := s.store.Conversations.Insert(ctx, conv); err != nil {
		// lost a direct-pair race to the unique index: the winner's row is
		// the answer
		if conv.DirectKey != "" {
			if existing, ferr := s.store.Conversations.FindDirect(ctx, conv.DirectKey); ferr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	now := s.now()
	ps := make([]*models.Participant, 0, len(members))
	for _, uid := range members {
		ps = append(ps, &models.Participant{
			ConversationID: conv.ID,
			UserID:         uid,
			JoinedAt:       now,
			LastReadAt:     now,
		})
	}
	if err := s.store.Participants.Add(ctx, ps...); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversations lists the caller's conversations with unread counts and
// last-message previews, most recently updated first.
func (s *Service) GetConversations(ctx context.Context, userID string) ([]*models.ConversationSummary, error) {
	memberships, err := s.store.Participants.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]*models.ConversationSummary, 0, len(memberships))
	for _, p := range memberships {
		conv, err := s.store.Conversations.FindByID(ctx, p.ConversationID)
		if err != nil {
			if err == repository.ErrNotFound {
				continue
			}
			return nil, err
		}
		unread, err := s.store.Messages.CountUnread(ctx, conv.ID, userID, p.LastReadAt, now)
		if err != nil {
			return nil, err
		}
		sum := &models.ConversationSummary{Conversation: *conv, UnreadCount: unread}
		if last, err := s.store.Messages.LastVisible(ctx, conv.ID, now); err == nil {
			sum.LastMessage = last
		}
		out = append(out, sum)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Conversation.UpdatedAt.After(out[j].Conversation.UpdatedAt)
	})
	return out, nil
}

// GetConversation returns a single conversation the caller belongs to.
func (s *Service) GetConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	return s.requireParticipant(ctx, conversationID, userID)
}

// AddParticipants adds users to a group conversation.
func (s *Service) AddParticipants(ctx context.Context, conversationID, actorID string, userIDs []string) error {
	if err := s.checkGate(ctx, actorID, "update_conversation"); err != nil {
		return err
	}
	conv, err := s.requireParticipant(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	if conv.Type != models.ConversationGroup {
		return apperr.Validation("cannot add participants to direct conversations")
	}
	now := s.now()
	var ps []*models.Participant
	for _, uid := range dedupe(userIDs) {
		if _, err := s.store.Participants.Get(ctx, conversationID, uid); err == nil {
			continue
		}
		ps = append(ps, &models.Participant{
			ConversationID: conversationID,
			UserID:         uid,
			JoinedAt:       now,
			LastReadAt:     now,
		})
	}
	if len(ps) == 0 {
		return nil
	}
	return s.store.Participants.Add(ctx, ps...)
}

// RemoveParticipant removes a user from a group conversation. Direct
// conversations are permanent once created.
func (s *Service) RemoveParticipant(ctx context.Context, conversationID, actorID, userID string) error {
	if err := s.checkGate(ctx, actorID, "update_conversation"); err != nil {
		return err
	}
	conv, err := s.requireParticipant(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	if conv.Type != models.ConversationGroup {
		return apperr.Validation("cannot remove participants from direct conversations")
	}
	if err := s.store.Participants.Remove(ctx, conversationID, userID); err != nil {
		if err == repository.ErrNotFound {
			return apperr.NotFound("participant", userID)
		}
		return err
	}
	return nil
}

// SetDisappearing updates the disappearing-message policy. Already-sent
// messages keep the expiry stamped at their send time.
func (s *Service) SetDisappearing(ctx context.Context, conversationID, actorID string, enabled bool, durationSeconds int64) error {
	if err := s.checkGate(ctx, actorID, "update_conversation"); err != nil {
		return err
	}
	if enabled && durationSeconds <= 0 {
		return apperr.Validation("disappearing duration must be positive")
	}
	if _, err := s.requireParticipant(ctx, conversationID, actorID); err != nil {
		return err
	}
	if err := s.store.Conversations.SetDisappearing(ctx, conversationID, enabled, durationSeconds); err != nil {
		if err == repository.ErrNotFound {
			return apperr.NotFound("conversation", conversationID)
		}
		return err
	}
	conv, err := s.store.Conversations.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	s.notifier.SettingsChanged(ctx, conv, actorID)
	return nil
}

// MarkRead advances the caller's read marker; it never moves backward.
func (s *Service) MarkRead(ctx context.Context, conversationID, userID string) error {
	if err := s.checkGate(ctx, userID, "mark_read"); err != nil {
		return err
	}
	if _, err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := s.store.Participants.AdvanceLastRead(ctx, conversationID, userID, s.now()); err != nil {
		return err
	}
	s.notifier.ReadMarked(ctx, conversationID, userID)
	return nil
}

// NotifyTyping relays a transient typing signal; nothing is persisted.
func (s *Service) NotifyTyping(ctx context.Context, conversationID, userID string, stop bool) error {
	if err := s.checkGate(ctx, userID, "typing"); err != nil {
		return err
	}
	if _, err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	s.notifier.Typing(ctx, conversationID, userID, stop)
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
