// Package delivery fans conversation mutations out to the other
// participants' live channels. Delivery is best-effort: offline peers get
// nothing and reconcile from history on reconnect.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/yourorg/messaging/internal/apperr"
	"github.com/yourorg/messaging/internal/events"
	"github.com/yourorg/messaging/internal/hub"
	"github.com/yourorg/messaging/internal/models"
	"github.com/yourorg/messaging/internal/repository"
)

var errChannelSaturated = errors.New("push channel saturated")

// EventWriter mirrors delivery-triggering mutations onto the platform event
// stream. *kafka.Writer satisfies it.
type EventWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Fanout struct {
	store     *repository.Store
	pub       hub.Publisher
	writer    EventWriter // optional
	assistant *assistantRunner
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewFanout(store *repository.Store, pub hub.Publisher, writer EventWriter, log *zap.SugaredLogger) *Fanout {
	return &Fanout{
		store:  store,
		pub:    pub,
		writer: writer,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// MessageSent pushes the new message to every other participant, refreshes
// unread counters, mirrors to the event stream and may wake the assistant.
func (f *Fanout) MessageSent(ctx context.Context, conv *models.Conversation, msg *models.Message) {
	env := events.New(events.TypeNewMessage, conv.ID, events.NewMessage{Message: *msg})
	f.pushToOthers(ctx, conv.ID, msg.SenderID, env)
	f.pushUnreadSummaries(ctx, conv.ID, msg.SenderID)
	f.mirror(ctx, "message.sent", conv.ID, msg)
	if f.assistant != nil {
		f.assistant.maybeReply(conv, msg)
	}
}

func (f *Fanout) MessageEdited(ctx context.Context, conversationID string, msg *models.Message) {
	editedAt := ""
	if msg.EditedAt != nil {
		editedAt = msg.EditedAt.Format(time.RFC3339Nano)
	}
	env := events.New(events.TypeMessageEdit, conversationID, events.MessageEdit{
		MessageID: msg.ID,
		Content:   msg.Content,
		EditedAt:  editedAt,
	})
	f.pushToOthers(ctx, conversationID, msg.SenderID, env)
	f.mirror(ctx, "message.edited", conversationID, msg)
}

func (f *Fanout) MessageDeleted(ctx context.Context, conversationID, messageID, actorID string) {
	env := events.New(events.TypeMessageDelete, conversationID, events.MessageDelete{MessageID: messageID})
	f.pushToOthers(ctx, conversationID, actorID, env)
	f.pushUnreadSummaries(ctx, conversationID, actorID)
	f.mirror(ctx, "message.deleted", conversationID, map[string]string{"message_id": messageID})
}

func (f *Fanout) ReactionToggled(ctx context.Context, conversationID string, r *models.Reaction, added bool, all []*models.Reaction) {
	reactions := make([]models.Reaction, 0, len(all))
	for _, re := range all {
		reactions = append(reactions, *re)
	}
	env := events.New(events.TypeReactionUpdate, conversationID, events.ReactionUpdate{
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji,
		Added:     added,
		Reactions: reactions,
	})
	f.pushToOthers(ctx, conversationID, r.UserID, env)
	f.mirror(ctx, "reaction.toggled", conversationID, r)
}

func (f *Fanout) SettingsChanged(ctx context.Context, conv *models.Conversation, actorID string) {
	env := events.New(events.TypeSettingsChanged, conv.ID, events.SettingsChanged{
		DisappearingEnabled:  conv.DisappearingEnabled,
		DisappearingDuration: conv.DisappearingDuration,
	})
	// everyone's local conversation copy must converge, including the actor's
	// other devices
	f.pushToAll(ctx, conv.ID, env)
	f.mirror(ctx, "conversation.settings", conv.ID, conv)
}

func (f *Fanout) Typing(ctx context.Context, conversationID, userID string, stop bool) {
	t := events.TypeTyping
	if stop {
		t = events.TypeTypingStop
	}
	env := events.New(t, conversationID, events.Typing{UserID: userID})
	f.pushToOthers(ctx, conversationID, userID, env)
}

func (f *Fanout) ReadMarked(ctx context.Context, conversationID, userID string) {
	// the reader's own badge state changed; their channel gets the summary
	f.pushSummaryTo(ctx, conversationID, userID)
}

func (f *Fanout) participants(ctx context.Context, conversationID string) []*models.Participant {
	ps, err := f.store.Participants.ListByConversation(ctx, conversationID)
	if err != nil {
		f.log.Warnw("resolving participants for fan-out", "conversation_id", conversationID, "err", err)
		return nil
	}
	return ps
}

func (f *Fanout) pushToOthers(ctx context.Context, conversationID, actorID string, env events.Envelope) {
	for _, p := range f.participants(ctx, conversationID) {
		if p.UserID == actorID {
			continue
		}
		f.push(p.UserID, env)
	}
}

func (f *Fanout) pushToAll(ctx context.Context, conversationID string, env events.Envelope) {
	for _, p := range f.participants(ctx, conversationID) {
		f.push(p.UserID, env)
	}
}

// push delivers to one recipient. An offline recipient is normal; a drop for
// someone online is degraded delivery and gets logged as such.
func (f *Fanout) push(userID string, env events.Envelope) {
	if f.pub.Publish(userID, env) || !f.pub.Online(userID) {
		return
	}
	err := &apperr.DeliveryDegraded{UserID: userID, Cause: errChannelSaturated}
	f.log.Warnw("best-effort push dropped", "event", env.Type, "err", err)
}

// pushUnreadSummaries recomputes and pushes unread counters to every
// participant other than the actor.
func (f *Fanout) pushUnreadSummaries(ctx context.Context, conversationID, actorID string) {
	now := f.now()
	for _, p := range f.participants(ctx, conversationID) {
		if p.UserID == actorID || !f.pub.Online(p.UserID) {
			continue
		}
		count, err := f.store.Messages.CountUnread(ctx, conversationID, p.UserID, p.LastReadAt, now)
		if err != nil {
			f.log.Warnw("recomputing unread", "conversation_id", conversationID, "user_id", p.UserID, "err", err)
			continue
		}
		env := events.New(events.TypeUnreadSummary, conversationID, events.UnreadSummary{
			Counts: map[string]int64{conversationID: count},
		})
		f.pub.Publish(p.UserID, env)
	}
}

func (f *Fanout) pushSummaryTo(ctx context.Context, conversationID, userID string) {
	p, err := f.store.Participants.Get(ctx, conversationID, userID)
	if err != nil {
		return
	}
	count, err := f.store.Messages.CountUnread(ctx, conversationID, userID, p.LastReadAt, f.now())
	if err != nil {
		return
	}
	env := events.New(events.TypeUnreadSummary, conversationID, events.UnreadSummary{
		Counts: map[string]int64{conversationID: count},
	})
	f.pub.Publish(userID, env)
}

// mirror publishes the mutation to the platform event stream. Failures are
// delivery degradation, never the caller's problem.
func (f *Fanout) mirror(ctx context.Context, kind, conversationID string, payload any) {
	if f.writer == nil {
		return
	}
	value, err := json.Marshal(map[string]any{
		"kind":            kind,
		"conversation_id": conversationID,
		"payload":         payload,
		"at":              f.now(),
	})
	if err != nil {
		return
	}
	go func() {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := f.writer.WriteMessages(wctx, kafka.Message{
			Key:   []byte(conversationID),
			Value: value,
			Time:  f.now(),
		}); err != nil {
			f.log.Warnw("event stream publish failed", "kind", kind, "err", err)
		}
	}()
}
