// Package hub owns the registry of live push channels. It is injected into
// the delivery fan-out as a Publisher; nothing else knows connections exist.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourorg/messaging/internal/events"
)

// Publisher is the only capability the rest of the system needs from the
// connection registry.
type Publisher interface {
	// Publish sends the event to the user's live channel. False means the
	// user is offline or their buffer was full; either way the event is
	// dropped and history remains the source of truth.
	Publish(userID string, env events.Envelope) bool
	Online(userID string) bool
}

const presenceTTL = 60 * time.Second

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client // user id -> latest connection

	rdb *redis.Client // optional cross-node presence
	log *zap.SugaredLogger
}

func New(rdb *redis.Client, log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rdb:     rdb,
		log:     log,
	}
}

// Register makes c the user's live channel, replacing any previous one.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	prev := h.clients[c.userID]
	h.clients[c.userID] = c
	h.mu.Unlock()
	if prev != nil && prev != c {
		prev.close()
	}
	if h.rdb != nil {
		_ = h.rdb.Set(context.Background(), "presence:"+c.userID, "online", presenceTTL).Err()
	}
}

// Unregister drops the mapping if it still points at c.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.userID]; ok && cur == c {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()
	if h.rdb != nil {
		_ = h.rdb.Del(context.Background(), "presence:"+c.userID).Err()
	}
}

func (h *Hub) Publish(userID string, env events.Envelope) bool {
	h.mu.RLock()
	c := h.clients[userID]
	h.mu.RUnlock()
	if c == nil {
		return false
	}
	if !c.trySend(env) {
		// full buffer: drop for this recipient only, never stall the rest
		h.log.Warnw("push buffer full, event dropped",
			"user_id", userID, "event", env.Type)
		return false
	}
	return true
}

func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	_, ok := h.clients[userID]
	h.mu.RUnlock()
	if ok {
		return true
	}
	if h.rdb != nil {
		val, err := h.rdb.Get(context.Background(), "presence:"+userID).Result()
		return err == nil && val == "online"
	}
	return false
}

// Shutdown closes every live channel.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}
