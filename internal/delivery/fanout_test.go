package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/messaging/internal/events"
	"github.com/yourorg/messaging/internal/logger"
	"github.com/yourorg/messaging/internal/models"
	"github.com/yourorg/messaging/internal/ratelimit"
	"github.com/yourorg/messaging/internal/repository"
	"github.com/yourorg/messaging/internal/service"
)

// fakePublisher records published events per user.
type fakePublisher struct {
	mu     sync.Mutex
	online map[string]bool
	pushed map[string][]events.Envelope
}

func newFakePublisher(online ...string) *fakePublisher {
	p := &fakePublisher{online: make(map[string]bool), pushed: make(map[string][]events.Envelope)}
	for _, u := range online {
		p.online[u] = true
	}
	return p
}

func (p *fakePublisher) Publish(userID string, env events.Envelope) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[userID] {
		return false
	}
	p.pushed[userID] = append(p.pushed[userID], env)
	return true
}

func (p *fakePublisher) Online(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

func (p *fakePublisher) events(userID string) []events.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Envelope, len(p.pushed[userID]))
	copy(out, p.pushed[userID])
	return out
}

func (p *fakePublisher) byType(userID string, t events.Type) []events.Envelope {
	var out []events.Envelope
	for _, env := range p.events(userID) {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	fail bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("broker unreachable")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func setup(t *testing.T, pub *fakePublisher, writer EventWriter) (*service.Service, *repository.Store, *Fanout) {
	t.Helper()
	store := repository.NewMemoryStore()
	f := NewFanout(store, pub, writer, logger.Nop())
	svc := service.New(store, ratelimit.AllowAll{}, f, logger.Nop())
	return svc, store, f
}

func directConv(t *testing.T, svc *service.Service, a, b string) *models.Conversation {
	t.Helper()
	conv, err := svc.CreateConversation(context.Background(), service.CreateConversationInput{
		CreatorID:    a,
		Participants: []string{b},
		Type:         models.ConversationDirect,
	})
	require.NoError(t, err)
	return conv
}

func TestMessageFanOutToConnectedPeer(t *testing.T) {
	pub := newFakePublisher("u2")
	svc, _, _ := setup(t, pub, nil)
	conv := directConv(t, svc, "u1", "u2")

	_, err := svc.SendMessage(context.Background(), service.SendMessageInput{
		ConversationID: conv.ID, SenderID: "u1", Content: "hi",
	})
	require.NoError(t, err)

	// the peer gets the message event, the sender gets nothing
	msgs := pub.byType("u2", events.TypeNewMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, conv.ID, msgs[0].ConversationID)
	payload, err := msgs[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, "hi", payload.(events.NewMessage).Message.Content)
	assert.Empty(t, pub.events("u1"))

	// and an unread summary showing one unread
	sums := pub.byType("u2", events.TypeUnreadSummary)
	require.Len(t, sums, 1)
	sum, err := sums[0].Decode()
	require.NoError(t, err)
	assert.EqualValues(t, 1, sum.(events.UnreadSummary).Counts[conv.ID])
}

func TestFanOutSkipsOfflinePeers(t *testing.T) {
	pub := newFakePublisher() // nobody online
	svc, _, _ := setup(t, pub, nil)
	conv := directConv(t, svc, "u1", "u2")

	msg, err := svc.SendMessage(context.Background(), service.SendMessageInput{
		ConversationID: conv.ID, SenderID: "u1", Content: "into the void",
	})
	require.NoError(t, err)
	require.NotNil(t, msg)

	// nothing delivered, nothing failed; history remains the source of truth
	assert.Empty(t, pub.events("u2"))
	history, err := svc.GetMessages(context.Background(), conv.ID, "u2", 50, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestTypingRelay(t *testing.T) {
	pub := newFakePublisher("u1", "u2")
	svc, _, _ := setup(t, pub, nil)
	conv := directConv(t, svc, "u1", "u2")

	require.NoError(t, svc.NotifyTyping(context.Background(), conv.ID, "u1", false))
	require.NoError(t, svc.NotifyTyping(context.Background(), conv.ID, "u1", true))

	assert.Len(t, pub.byType("u2", events.TypeTyping), 1)
	assert.Len(t, pub.byType("u2", events.TypeTypingStop), 1)
	assert.Empty(t, pub.events("u1"))
}

func TestSettingsChangeReachesEveryone(t *testing.T) {
	pub := newFakePublisher("u1", "u2")
	svc, _, _ := setup(t, pub, nil)
	conv := directConv(t, svc, "u1", "u2")

	require.NoError(t, svc.SetDisappearing(context.Background(), conv.ID, "u1", true, 300))

	for _, uid := range []string{"u1", "u2"} {
		envs := pub.byType(uid, events.TypeSettingsChanged)
		require.Len(t, envs, 1, "user %s", uid)
		payload, err := envs[0].Decode()
		require.NoError(t, err)
		sc := payload.(events.SettingsChanged)
		assert.True(t, sc.DisappearingEnabled)
		assert.EqualValues(t, 300, sc.DisappearingDuration)
	}
}

func TestReactionFanOut(t *testing.T) {
	pub := newFakePublisher("u1", "u2")
	svc, _, _ := setup(t, pub, nil)
	conv := directConv(t, svc, "u1", "u2")

	msg, err := svc.SendMessage(context.Background(), service.SendMessageInput{
		ConversationID: conv.ID, SenderID: "u1", Content: "react",
	})
	require.NoError(t, err)

	_, err = svc.ToggleReaction(context.Background(), msg.ID, "u2", "👍")
	require.NoError(t, err)

	envs := pub.byType("u1", events.TypeReactionUpdate)
	require.Len(t, envs, 1)
	payload, err := envs[0].Decode()
	require.NoError(t, err)
	ru := payload.(events.ReactionUpdate)
	assert.True(t, ru.Added)
	assert.Equal(t, "👍", ru.Emoji)
	require.Len(t, ru.Reactions, 1)
}

func TestMarkReadPushesFreshSummary(t *testing.T) {
	pub := newFakePublisher("u1", "u2")
	svc, _, _ := setup(t, pub, nil)
	conv := directConv(t, svc, "u1", "u2")

	time.Sleep(time.Millisecond)
	_, err := svc.SendMessage(context.Background(), service.SendMessageInput{
		ConversationID: conv.ID, SenderID: "u1", Content: "hi",
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(context.Background(), conv.ID, "u2"))

	sums := pub.byType("u2", events.TypeUnreadSummary)
	require.NotEmpty(t, sums)
	last, err := sums[len(sums)-1].Decode()
	require.NoError(t, err)
	assert.EqualValues(t, 0, last.(events.UnreadSummary).Counts[conv.ID])
}

func TestEventStreamMirror(t *testing.T) {
	pub := newFakePublisher("u2")
	writer := &fakeWriter{}
	svc, _, _ := setup(t, pub, writer)
	conv := directConv(t, svc, "u1", "u2")

	_, err := svc.SendMessage(context.Background(), service.SendMessageInput{
		ConversationID: conv.ID, SenderID: "u1", Content: "hi",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return writer.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestEventStreamFailureDoesNotFailSend(t *testing.T) {
	pub := newFakePublisher("u2")
	writer := &fakeWriter{fail: true}
	svc, _, _ := setup(t, pub, writer)
	conv := directConv(t, svc, "u1", "u2")

	msg, err := svc.SendMessage(context.Background(), service.SendMessageInput{
		ConversationID: conv.ID, SenderID: "u1", Content: "hi",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
}

type fakeAssistant struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (a *fakeAssistant) UserID() string { return "assistant" }

func (a *fakeAssistant) Reply(_ context.Context, _ *models.Conversation, msg *models.Message) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.fail {
		return "", errors.New("model overloaded")
	}
	return "echo: " + msg.Content, nil
}

func (a *fakeAssistant) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func TestAssistantRepliesThroughSendPath(t *testing.T) {
	pub := newFakePublisher("u1")
	svc, _, f := setup(t, pub, nil)
	f.EnableAssistant(&fakeAssistant{}, func(ctx context.Context, conversationID, senderID, content string) error {
		_, err := svc.SendMessage(ctx, service.SendMessageInput{
			ConversationID: conversationID, SenderID: senderID, Content: content,
		})
		return err
	})

	conv := directConv(t, svc, "u1", "assistant")
	_, err := svc.SendMessage(context.Background(), service.SendMessageInput{
		ConversationID: conv.ID, SenderID: "u1", Content: "hello bot",
	})
	require.NoError(t, err)

	// the reply lands in history and is fanned out to the human
	require.Eventually(t, func() bool {
		history, err := svc.GetMessages(context.Background(), conv.ID, "u1", 50, 0)
		return err == nil && len(history) == 2
	}, 2*time.Second, 10*time.Millisecond)

	history, err := svc.GetMessages(context.Background(), conv.ID, "u1", 50, 0)
	require.NoError(t, err)
	assert.Equal(t, "echo: hello bot", history[1].Content)
	assert.Equal(t, "assistant", history[1].SenderID)

	require.Eventually(t, func() bool {
		return len(pub.byType("u1", events.TypeNewMessage)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestAssistantFailureIsSwallowed(t *testing.T) {
	pub := newFakePublisher("u1")
	svc, _, f := setup(t, pub, nil)
	bot := &fakeAssistant{fail: true}
	f.EnableAssistant(bot, func(context.Context, string, string, string) error { return nil })

	conv := directConv(t, svc, "u1", "assistant")
	msg, err := svc.SendMessage(context.Background(), service.SendMessageInput{
		ConversationID: conv.ID, SenderID: "u1", Content: "hello bot",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	require.Eventually(t, func() bool { return bot.callCount() == 1 }, time.Second, 10*time.Millisecond)

	// the original message is intact despite the failed reply
	history, err := svc.GetMessages(context.Background(), conv.ID, "u1", 50, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestAssistantInGroupOnlyRepliesWhenMentioned(t *testing.T) {
	pub := newFakePublisher("u1", "u2")
	svc, _, f := setup(t, pub, nil)
	bot := &fakeAssistant{}
	f.EnableAssistant(bot, func(ctx context.Context, conversationID, senderID, content string) error {
		_, err := svc.SendMessage(ctx, service.SendMessageInput{
			ConversationID: conversationID, SenderID: senderID, Content: content,
		})
		return err
	})

	group, err := svc.CreateConversation(context.Background(), service.CreateConversationInput{
		CreatorID:    "u1",
		Participants: []string{"u2", "assistant"},
		Type:         models.ConversationGroup,
		Title:        "ops",
	})
	require.NoError(t, err)

	_, err = svc.SendMessage(context.Background(), service.SendMessageInput{
		ConversationID: group.ID, SenderID: "u1", Content: "just chatting",
	})
	require.NoError(t, err)

	_, err = svc.SendMessage(context.Background(), service.SendMessageInput{
		ConversationID: group.ID, SenderID: "u1", Content: "@assistant summarize",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return bot.callCount() == 1 }, time.Second, 10*time.Millisecond)
	// give the unmentioned path a moment to (not) fire
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, bot.callCount())
}
