package hub

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/messaging/internal/events"
)

// Conn is the subset of a websocket connection the client needs; the fiber
// websocket conn satisfies it and tests fake it.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

const (
	textMessage = 1
	pingMessage = 9

	sendBuffer   = 256
	pingInterval = 30 * time.Second
)

// Inbound handles client-originated signals arriving over the live channel
// (typing and read markers ride the socket; everything else is REST).
type Inbound interface {
	NotifyTyping(ctx context.Context, conversationID, userID string, stop bool) error
	MarkRead(ctx context.Context, conversationID, userID string) error
}

// Client is one user's live channel.
type Client struct {
	conn    Conn
	userID  string
	hub     *Hub
	inbound Inbound
	log     *zap.SugaredLogger

	send   chan events.Envelope
	closed int32
}

func NewClient(conn Conn, userID string, h *Hub, inbound Inbound, log *zap.SugaredLogger) *Client {
	return &Client{
		conn:    conn,
		userID:  userID,
		hub:     h,
		inbound: inbound,
		log:     log,
		send:    make(chan events.Envelope, sendBuffer),
	}
}

func (c *Client) UserID() string { return c.userID }

// Run pumps the connection until it drops. Blocks the caller (the ws
// handler goroutine), mirroring the read side; writes get their own
// goroutine.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer func() {
		c.hub.Unregister(c)
		c.close()
	}()
	go c.writePump()
	c.readPump(ctx)
}

func (c *Client) trySend(env events.Envelope) bool {
	if atomic.LoadInt32(&c.closed) == 1 {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *Client) readPump(ctx context.Context) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env events.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			// malformed inbound frames are dropped, never fatal
			c.log.Debugw("malformed inbound frame", "user_id", c.userID, "err", err)
			continue
		}
		c.dispatch(ctx, env)
	}
}

func (c *Client) dispatch(ctx context.Context, env events.Envelope) {
	var err error
	switch env.Type {
	case events.TypeTyping:
		err = c.inbound.NotifyTyping(ctx, env.ConversationID, c.userID, false)
	case events.TypeTypingStop:
		err = c.inbound.NotifyTyping(ctx, env.ConversationID, c.userID, true)
	case events.TypeUnreadSummary:
		// a client echoing a summary back means it read the conversation
		err = c.inbound.MarkRead(ctx, env.ConversationID, c.userID)
	default:
		c.log.Debugw("unexpected inbound event", "user_id", c.userID, "type", env.Type)
		return
	}
	if err != nil {
		c.log.Debugw("inbound event rejected", "user_id", c.userID, "type", env.Type, "err", err)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case env := <-c.send:
			b, err := json.Marshal(env)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(textMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(pingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close marks the client dead and closes the conn, which unblocks both
// pumps. The send channel is left open so concurrent publishers never hit a
// closed channel.
func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		_ = c.conn.Close()
	}
}
