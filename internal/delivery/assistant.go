package delivery

import (
	"context"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/yourorg/messaging/internal/models"
)

// Assistant produces automated replies. The platform's bot service sits
// behind this interface.
type Assistant interface {
	UserID() string
	Reply(ctx context.Context, conv *models.Conversation, msg *models.Message) (string, error)
}

// SendFunc posts the assistant's reply through the normal send path.
type SendFunc func(ctx context.Context, conversationID, senderID, content string) error

type assistantRunner struct {
	assistant Assistant
	send      SendFunc
	breaker   *gobreaker.CircuitBreaker
	store     participantLookup
	log       *zap.SugaredLogger
	timeout   time.Duration
}

type participantLookup interface {
	Get(ctx context.Context, conversationID, userID string) (*models.Participant, error)
}

// EnableAssistant wires the automated assistant into the fan-out. A tripped
// breaker or failed reply only costs the reply itself.
func (f *Fanout) EnableAssistant(a Assistant, send SendFunc) {
	f.assistant = &assistantRunner{
		assistant: a,
		send:      send,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "assistant",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		store:   f.store.Participants,
		log:     f.log,
		timeout: 15 * time.Second,
	}
}

// maybeReply asynchronously invokes the assistant when it participates in
// the conversation: always in direct conversations, only when mentioned in
// groups. Any failure is logged and swallowed.
func (r *assistantRunner) maybeReply(conv *models.Conversation, msg *models.Message) {
	aid := r.assistant.UserID()
	if msg.SenderID == aid {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if _, err := r.store.Get(ctx, conv.ID, aid); err != nil {
			return
		}
		if conv.Type == models.ConversationGroup && !strings.Contains(msg.Content, "@"+aid) {
			return
		}

		reply, err := r.breaker.Execute(func() (any, error) {
			return r.assistant.Reply(ctx, conv, msg)
		})
		if err != nil {
			r.log.Warnw("assistant reply failed", "conversation_id", conv.ID, "err", err)
			return
		}
		content, _ := reply.(string)
		if content == "" {
			return
		}
		if err := r.send(ctx, conv.ID, aid, content); err != nil {
			r.log.Warnw("posting assistant reply failed", "conversation_id", conv.ID, "err", err)
		}
	}()
}
