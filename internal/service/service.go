// Package service implements the conversation store operations. Every
// mutating call passes the rate gate first, then persists, then hands the
// change to the notifier for fan-out. Notifier failures never fail the
// mutation.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/messaging/internal/apperr"
	"github.com/yourorg/messaging/internal/models"
	"github.com/yourorg/messaging/internal/ratelimit"
	"github.com/yourorg/messaging/internal/repository"
)

// Notifier receives every delivery-triggering mutation. Implemented by the
// delivery fan-out; a no-op implementation serves tests.
type Notifier interface {
	MessageSent(ctx context.Context, conv *models.Conversation, msg *models.Message)
	MessageEdited(ctx context.Context, conversationID string, msg *models.Message)
	MessageDeleted(ctx context.Context, conversationID, messageID, actorID string)
	ReactionToggled(ctx context.Context, conversationID string, r *models.Reaction, added bool, all []*models.Reaction)
	SettingsChanged(ctx context.Context, conv *models.Conversation, actorID string)
	Typing(ctx context.Context, conversationID, userID string, stop bool)
	ReadMarked(ctx context.Context, conversationID, userID string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) MessageSent(context.Context, *models.Conversation, *models.Message) {}
func (NopNotifier) MessageEdited(context.Context, string, *models.Message)             {}
func (NopNotifier) MessageDeleted(context.Context, string, string, string)             {}
func (NopNotifier) ReactionToggled(context.Context, string, *models.Reaction, bool, []*models.Reaction) {
}
func (NopNotifier) SettingsChanged(context.Context, *models.Conversation, string) {}
func (NopNotifier) Typing(context.Context, string, string, bool)                  {}
func (NopNotifier) ReadMarked(context.Context, string, string)                    {}

type Service struct {
	store    *repository.Store
	gate     ratelimit.Gate
	notifier Notifier
	log      *zap.SugaredLogger

	now   func() time.Time
	newID func() string
}

func New(store *repository.Store, gate ratelimit.Gate, notifier Notifier, log *zap.SugaredLogger) *Service {
	return &Service{
		store:    store,
		gate:     gate,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		log:      log,
	}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// checkGate consults the rate gate and converts a rejection into a
// RateLimitedError.
func (s *Service) checkGate(ctx context.Context, userID, category string) error {
	res, err := s.gate.Check(ctx, userID, category)
	if err != nil {
		// a broken limiter must not take messaging down with it
		s.log.Warnw("rate gate unavailable, admitting", "category", category, "err", err)
		return nil
	}
	if !res.Allowed {
		return &apperr.RateLimitedError{Category: category, RetryAfter: res.RetryAfter}
	}
	return nil
}

// requireParticipant loads the conversation and verifies membership.
func (s *Service) requireParticipant(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	conv, err := s.store.Conversations.FindByID(ctx, conversationID)
	if err == repository.ErrNotFound {
		return nil, apperr.NotFound("conversation", conversationID)
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Participants.Get(ctx, conversationID, userID); err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.Permission("user %s is not a participant of conversation %s", userID, conversationID)
		}
		return nil, err
	}
	return conv, nil
}
