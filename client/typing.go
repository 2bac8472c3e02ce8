package client

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yourorg/messaging/internal/sched"
)

const typingWindow = 3 * time.Second

// TypingTracker holds transient typing state for peers. An explicit stop
// and a 3s refresh timeout take the same path, so both look identical to
// the UI.
type TypingTracker struct {
	sched    sched.Scheduler
	onChange func(conversationID, userID string, typing bool)

	mu     sync.Mutex
	timers map[typingKey]sched.Handle

	limiters map[string]*rate.Limiter // per-conversation outbound throttle
}

type typingKey struct {
	conversationID string
	userID         string
}

func NewTypingTracker(s sched.Scheduler, onChange func(conversationID, userID string, typing bool)) *TypingTracker {
	return &TypingTracker{
		sched:    s,
		onChange: onChange,
		timers:   make(map[typingKey]sched.Handle),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Peer records a typing signal from a peer. A fresh signal replaces the
// pending expiry timer; stop expires immediately.
func (t *TypingTracker) Peer(conversationID, userID string, stop bool) {
	if stop {
		t.expire(conversationID, userID)
		return
	}
	key := typingKey{conversationID, userID}
	t.mu.Lock()
	fresh := true
	if h, ok := t.timers[key]; ok {
		h.Stop()
		fresh = false
	}
	t.timers[key] = t.sched.AfterFunc(typingWindow, func() {
		t.expire(conversationID, userID)
	})
	t.mu.Unlock()
	if fresh {
		t.onChange(conversationID, userID, true)
	}
}

func (t *TypingTracker) expire(conversationID, userID string) {
	key := typingKey{conversationID, userID}
	t.mu.Lock()
	h, ok := t.timers[key]
	if ok {
		h.Stop()
		delete(t.timers, key)
	}
	t.mu.Unlock()
	if ok {
		t.onChange(conversationID, userID, false)
	}
}

// Typing reports whether a peer currently shows as typing.
func (t *TypingTracker) Typing(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[typingKey{conversationID, userID}]
	return ok
}

// ShouldSignal throttles outbound typing notifications to one per 3s window
// of continuous typing.
func (t *TypingTracker) ShouldSignal(conversationID string) bool {
	t.mu.Lock()
	lim, ok := t.limiters[conversationID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(typingWindow), 1)
		t.limiters[conversationID] = lim
	}
	t.mu.Unlock()
	return lim.Allow()
}

// CloseConversation cancels all typing timers for one conversation, for
// when its view goes away.
func (t *TypingTracker) CloseConversation(conversationID string) {
	t.mu.Lock()
	for key, h := range t.timers {
		if key.conversationID == conversationID {
			h.Stop()
			delete(t.timers, key)
		}
	}
	delete(t.limiters, conversationID)
	t.mu.Unlock()
}
