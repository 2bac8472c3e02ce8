// Package client implements the client half of the messaging subsystem:
// the push-channel lifecycle with escalating reconnect backoff, transient
// typing state, and backward history pagination.
package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/messaging/internal/events"
	"github.com/yourorg/messaging/internal/sched"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateError
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateError:
		return "error"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

const (
	attemptGap    = time.Second
	shortRetry    = 3 * time.Second
	longRetry     = 15 * time.Second
	unstableAfter = 3
	failureLimit  = 5
)

// Stream is one open push channel. Recv blocks until an event arrives or
// the channel dies.
type Stream interface {
	Recv() (events.Envelope, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}

// Handlers receives decoded push events. Nil fields are skipped.
type Handlers struct {
	OnMessage  func(conversationID string, p events.NewMessage)
	OnEdit     func(conversationID string, p events.MessageEdit)
	OnDelete   func(conversationID string, p events.MessageDelete)
	OnReaction func(conversationID string, p events.ReactionUpdate)
	OnTyping   func(conversationID, userID string, stop bool)
	OnSettings func(conversationID string, p events.SettingsChanged)
	OnUnread   func(p events.UnreadSummary)
}

// Conn drives the connection lifecycle:
// disconnected -> connecting -> open -> (error -> backoff -> connecting)...
// -> disabled once the failure ceiling is hit. Exactly one channel is open
// at a time; retry timers replace each other, never stack.
type Conn struct {
	dialer   Dialer
	handlers Handlers
	sched    sched.Scheduler
	log      *zap.SugaredLogger

	// Notice surfaces the single human-readable "connection unstable"
	// message; raw transport errors never reach the user.
	Notice func(msg string)

	mu          sync.Mutex
	state       State
	failures    int
	notified    bool
	lastAttempt time.Time
	retry       sched.Handle
	stream      Stream
	gen         int
}

func NewConn(d Dialer, h Handlers, s sched.Scheduler, log *zap.SugaredLogger) *Conn {
	return &Conn{
		dialer:   d,
		handlers: h,
		sched:    s,
		log:      log,
		state:    StateDisconnected,
	}
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// Connect opens the channel, deferring up to 1s if the previous attempt was
// moments ago. It is also the manual trigger that re-arms a disabled
// connection.
func (c *Conn) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return
	}
	if c.state == StateDisabled {
		c.failures = 0
		c.notified = false
	}
	c.cancelRetryLocked()
	wait := attemptGap - c.sched.Now().Sub(c.lastAttempt)
	if wait > 0 && !c.lastAttempt.IsZero() {
		c.state = StateConnecting
		c.retry = c.sched.AfterFunc(wait, func() { c.attempt(ctx) })
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.attempt(ctx)
}

func (c *Conn) attempt(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateDisabled {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.lastAttempt = c.sched.Now()
	gen := c.gen
	c.mu.Unlock()

	stream, err := c.dialer.Dial(ctx)
	if err != nil {
		c.onFailure(ctx, gen)
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		// closed while dialing
		c.mu.Unlock()
		_ = stream.Close()
		return
	}
	c.stream = stream
	c.state = StateOpen
	c.failures = 0
	c.notified = false
	c.mu.Unlock()

	go c.readLoop(ctx, stream, gen)
}

func (c *Conn) readLoop(ctx context.Context, stream Stream, gen int) {
	for {
		env, err := stream.Recv()
		if err != nil {
			c.mu.Lock()
			stale := c.gen != gen
			c.mu.Unlock()
			if !stale {
				c.onFailure(ctx, gen)
			}
			return
		}
		c.dispatch(env)
	}
}

// onFailure tears the channel down, bumps the failure counter and schedules
// the next attempt: 3s for the first failures, 15s once the connection is
// unstable, nothing at all past the ceiling.
func (c *Conn) onFailure(ctx context.Context, gen int) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	if c.stream != nil {
		_ = c.stream.Close()
		c.stream = nil
	}
	c.failures++
	c.cancelRetryLocked()

	if c.failures >= failureLimit {
		c.state = StateDisabled
		c.mu.Unlock()
		c.log.Warnw("push channel disabled after repeated failures", "failures", failureLimit)
		return
	}

	c.state = StateError
	delay := shortRetry
	notify := false
	if c.failures >= unstableAfter {
		delay = longRetry
		if !c.notified {
			c.notified = true
			notify = true
		}
	}
	c.retry = c.sched.AfterFunc(delay, func() { c.attempt(ctx) })
	notice := c.Notice
	c.mu.Unlock()

	if notify && notice != nil {
		notice("connection unstable")
	}
}

// Close tears everything down and returns to disconnected. A later Connect
// starts fresh.
func (c *Conn) Close() {
	c.mu.Lock()
	c.gen++
	c.cancelRetryLocked()
	if c.stream != nil {
		_ = c.stream.Close()
		c.stream = nil
	}
	c.state = StateDisconnected
	c.failures = 0
	c.notified = false
	c.mu.Unlock()
}

func (c *Conn) cancelRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

// dispatch decodes the envelope and routes it by concrete payload type.
// Unknown or malformed payloads are logged and dropped.
func (c *Conn) dispatch(env events.Envelope) {
	payload, err := env.Decode()
	if err != nil {
		c.log.Warnw("dropping undecodable event", "type", env.Type, "err", err)
		return
	}
	h := c.handlers
	switch p := payload.(type) {
	case events.NewMessage:
		if h.OnMessage != nil {
			h.OnMessage(env.ConversationID, p)
		}
	case events.MessageEdit:
		if h.OnEdit != nil {
			h.OnEdit(env.ConversationID, p)
		}
	case events.MessageDelete:
		if h.OnDelete != nil {
			h.OnDelete(env.ConversationID, p)
		}
	case events.ReactionUpdate:
		if h.OnReaction != nil {
			h.OnReaction(env.ConversationID, p)
		}
	case events.Typing:
		if h.OnTyping != nil {
			h.OnTyping(env.ConversationID, p.UserID, env.Type == events.TypeTypingStop)
		}
	case events.SettingsChanged:
		if h.OnSettings != nil {
			h.OnSettings(env.ConversationID, p)
		}
	case events.UnreadSummary:
		if h.OnUnread != nil {
			h.OnUnread(p)
		}
	}
}
