package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/messaging/internal/events"
	"github.com/yourorg/messaging/internal/logger"
	"github.com/yourorg/messaging/internal/models"
	"github.com/yourorg/messaging/internal/sched"
)

func modelsMessage(content string) models.Message {
	return models.Message{ID: "m-" + content, ConversationID: "c1", SenderID: "u2", Content: content}
}

type fakeStream struct {
	ch     chan events.Envelope
	closed chan struct{}
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan events.Envelope, 16), closed: make(chan struct{})}
}

func (s *fakeStream) Recv() (events.Envelope, error) {
	select {
	case env := <-s.ch:
		return env, nil
	case <-s.closed:
		return events.Envelope{}, errors.New("stream closed")
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// fakeDialer replays a script of dial outcomes; the last entry repeats.
type fakeDialer struct {
	mu     sync.Mutex
	script []func() (Stream, error)
	calls  int
}

func failDial() func() (Stream, error) {
	return func() (Stream, error) { return nil, errors.New("connect refused") }
}

func okDial(s *fakeStream) func() (Stream, error) {
	return func() (Stream, error) { return s, nil }
}

func (d *fakeDialer) Dial(context.Context) (Stream, error) {
	d.mu.Lock()
	idx := d.calls
	if idx >= len(d.script) {
		idx = len(d.script) - 1
	}
	d.calls++
	fn := d.script[idx]
	d.mu.Unlock()
	return fn()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func newTestConn(d Dialer, h Handlers) (*Conn, *sched.Fake, *[]string) {
	fs := sched.NewFake(time.Unix(0, 0))
	c := NewConn(d, h, fs, logger.Nop())
	notices := &[]string{}
	var mu sync.Mutex
	c.Notice = func(msg string) {
		mu.Lock()
		*notices = append(*notices, msg)
		mu.Unlock()
	}
	return c, fs, notices
}

func TestBackoffEscalationAndDisable(t *testing.T) {
	d := &fakeDialer{script: []func() (Stream, error){failDial()}}
	c, fs, notices := newTestConn(d, Handlers{})

	c.Connect(context.Background())
	assert.Equal(t, StateError, c.State())
	assert.Equal(t, 1, c.Failures())

	// failures below three retry after 3s
	fs.Advance(3 * time.Second)
	assert.Equal(t, 2, c.Failures())
	assert.Empty(t, *notices)

	// the third failure escalates to 15s and tells the user once
	fs.Advance(3 * time.Second)
	assert.Equal(t, 3, c.Failures())
	assert.Equal(t, []string{"connection unstable"}, *notices)

	// a 3s advance is not enough anymore
	fs.Advance(3 * time.Second)
	assert.Equal(t, 3, c.Failures())

	fs.Advance(12 * time.Second)
	assert.Equal(t, 4, c.Failures())
	// still just the one notice for this unstable episode
	assert.Equal(t, []string{"connection unstable"}, *notices)

	// the fifth failure stops automatic retries for good
	fs.Advance(15 * time.Second)
	assert.Equal(t, 5, c.Failures())
	assert.Equal(t, StateDisabled, c.State())
	assert.Equal(t, 0, fs.Pending())

	fs.Advance(time.Hour)
	assert.Equal(t, 5, d.dialCount())
}

func TestManualConnectReenablesDisabled(t *testing.T) {
	d := &fakeDialer{script: []func() (Stream, error){failDial()}}
	c, fs, _ := newTestConn(d, Handlers{})

	c.Connect(context.Background())
	for i := 0; i < 4; i++ {
		fs.Advance(15 * time.Second)
	}
	require.Equal(t, StateDisabled, c.State())

	stream := newFakeStream()
	d.mu.Lock()
	d.script = append(d.script, okDial(stream))
	d.mu.Unlock()

	// the manual trigger resets the counters and reconnects
	fs.Advance(time.Second) // move past the attempt throttle
	c.Connect(context.Background())
	assert.Equal(t, StateOpen, c.State())
	assert.Equal(t, 0, c.Failures())
}

func TestSuccessfulOpenResetsCounters(t *testing.T) {
	stream := newFakeStream()
	d := &fakeDialer{script: []func() (Stream, error){failDial(), failDial(), okDial(stream)}}
	c, fs, notices := newTestConn(d, Handlers{})

	c.Connect(context.Background())
	fs.Advance(3 * time.Second)
	assert.Equal(t, 2, c.Failures())

	fs.Advance(3 * time.Second)
	assert.Equal(t, StateOpen, c.State())
	assert.Equal(t, 0, c.Failures())
	assert.Empty(t, *notices)

	// a later drop starts a fresh episode at the short delay
	stream.Close()
	require.Eventually(t, func() bool { return c.State() == StateError }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, c.Failures())
}

func TestConnectThrottledToOneSecondGap(t *testing.T) {
	d := &fakeDialer{script: []func() (Stream, error){failDial()}}
	c, fs, _ := newTestConn(d, Handlers{})

	c.Connect(context.Background())
	require.Equal(t, 1, d.dialCount())

	// a second trigger right away must wait out the 1s gap, not dial at once
	c.Connect(context.Background())
	assert.Equal(t, 1, d.dialCount())
	assert.Equal(t, StateConnecting, c.State())

	fs.Advance(time.Second)
	assert.Equal(t, 2, d.dialCount())
}

func TestConnectWhileOpenIsNoop(t *testing.T) {
	stream := newFakeStream()
	d := &fakeDialer{script: []func() (Stream, error){okDial(stream)}}
	c, _, _ := newTestConn(d, Handlers{})

	c.Connect(context.Background())
	require.Equal(t, StateOpen, c.State())
	c.Connect(context.Background())
	assert.Equal(t, 1, d.dialCount())
}

func TestDispatchRoutesByPayloadType(t *testing.T) {
	stream := newFakeStream()
	d := &fakeDialer{script: []func() (Stream, error){okDial(stream)}}

	var mu sync.Mutex
	var messages, typing, unread []string
	h := Handlers{
		OnMessage: func(convID string, p events.NewMessage) {
			mu.Lock()
			messages = append(messages, convID+"/"+p.Message.Content)
			mu.Unlock()
		},
		OnTyping: func(convID, userID string, stop bool) {
			mu.Lock()
			sig := convID + "/" + userID
			if stop {
				sig += "/stop"
			}
			typing = append(typing, sig)
			mu.Unlock()
		},
		OnUnread: func(p events.UnreadSummary) {
			mu.Lock()
			for id := range p.Counts {
				unread = append(unread, id)
			}
			mu.Unlock()
		},
	}
	c, _, _ := newTestConn(d, h)
	c.Connect(context.Background())
	require.Equal(t, StateOpen, c.State())

	stream.ch <- events.New(events.TypeNewMessage, "c1", events.NewMessage{Message: modelsMessage("hi")})
	stream.ch <- events.New(events.TypeTyping, "c1", events.Typing{UserID: "u2"})
	stream.ch <- events.New(events.TypeTypingStop, "c1", events.Typing{UserID: "u2"})
	stream.ch <- events.New(events.TypeUnreadSummary, "c1", events.UnreadSummary{Counts: map[string]int64{"c1": 2}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(messages) == 1 && len(typing) == 2 && len(unread) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"c1/hi"}, messages)
	assert.Equal(t, []string{"c1/u2", "c1/u2/stop"}, typing)
}

func TestUnknownEventsDroppedWithoutCrashing(t *testing.T) {
	stream := newFakeStream()
	d := &fakeDialer{script: []func() (Stream, error){okDial(stream)}}

	var mu sync.Mutex
	var got int
	c, _, _ := newTestConn(d, Handlers{
		OnMessage: func(string, events.NewMessage) {
			mu.Lock()
			got++
			mu.Unlock()
		},
	})
	c.Connect(context.Background())

	stream.ch <- events.Envelope{Type: "totally.new", ConversationID: "c1", Payload: json.RawMessage(`{}`)}
	stream.ch <- events.Envelope{Type: events.TypeNewMessage, ConversationID: "c1", Payload: json.RawMessage(`[1,2]`)}
	stream.ch <- events.New(events.TypeNewMessage, "c1", events.NewMessage{Message: modelsMessage("still alive")})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateOpen, c.State())
}

func TestCloseCancelsPendingRetry(t *testing.T) {
	d := &fakeDialer{script: []func() (Stream, error){failDial()}}
	c, fs, _ := newTestConn(d, Handlers{})

	c.Connect(context.Background())
	require.Equal(t, StateError, c.State())

	c.Close()
	assert.Equal(t, StateDisconnected, c.State())
	fs.Advance(time.Hour)
	assert.Equal(t, 1, d.dialCount())
}
