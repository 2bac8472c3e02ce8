package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yourorg/messaging/internal/models"
)

// NewMemoryStore returns a Store backed by process memory. It mirrors the
// mongo implementation's semantics and backs local development and tests.
func NewMemoryStore() *Store {
	m := &memory{
		conversations: make(map[string]*models.Conversation),
		participants:  make(map[string][]*models.Participant),
		messages:      make(map[string][]*models.Message),
		reactions:     make(map[string][]*models.Reaction),
		directKeys:    make(map[string]string),
	}
	return &Store{
		Conversations: (*memConversations)(m),
		Participants:  (*memParticipants)(m),
		Messages:      (*memMessages)(m),
		Reactions:     (*memReactions)(m),
	}
}

type memory struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	participants  map[string][]*models.Participant // conversation id -> rows
	messages      map[string][]*models.Message     // conversation id -> rows, insertion order
	reactions     map[string][]*models.Reaction    // message id -> rows
	directKeys    map[string]string                // direct key -> conversation id
}

type memConversations memory

func (m *memConversations) Insert(_ context.Context, c *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	m.conversations[c.ID] = &cp
	if c.DirectKey != "" {
		m.directKeys[c.DirectKey] = c.ID
	}
	return nil
}

func (m *memConversations) FindDirect(_ context.Context, directKey string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.directKeys[directKey]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.conversations[id]
	return &cp, nil
}

func (m *memConversations) FindByID(_ context.Context, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memConversations) SetDisappearing(_ context.Context, id string, enabled bool, durationSeconds int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.DisappearingEnabled = enabled
	c.DisappearingDuration = durationSeconds
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memConversations) Touch(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conversations[id]; ok {
		c.UpdatedAt = at
	}
	return nil
}

type memParticipants memory

func (m *memParticipants) Add(_ context.Context, ps ...*models.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range ps {
		cp := *p
		m.participants[p.ConversationID] = append(m.participants[p.ConversationID], &cp)
	}
	return nil
}

func (m *memParticipants) Remove(_ context.Context, conversationID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.participants[conversationID]
	for i, p := range rows {
		if p.UserID == userID {
			m.participants[conversationID] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memParticipants) Get(_ context.Context, conversationID, userID string) (*models.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.participants[conversationID] {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memParticipants) ListByConversation(_ context.Context, conversationID string) ([]*models.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.participants[conversationID]
	out := make([]*models.Participant, 0, len(rows))
	for _, p := range rows {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memParticipants) ListByUser(_ context.Context, userID string) ([]*models.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Participant
	for _, rows := range m.participants {
		for _, p := range rows {
			if p.UserID == userID {
				cp := *p
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (m *memParticipants) AdvanceLastRead(_ context.Context, conversationID, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.participants[conversationID] {
		if p.UserID == userID {
			if at.After(p.LastReadAt) {
				p.LastReadAt = at
			}
			return nil
		}
	}
	return ErrNotFound
}

type memMessages memory

func (m *memMessages) Insert(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.CreatedAt = time.Now().UTC()
	cp := *msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &cp)
	return nil
}

func (m *memMessages) find(id string) *models.Message {
	for _, rows := range m.messages {
		for _, msg := range rows {
			if msg.ID == id {
				return msg
			}
		}
	}
	return nil
}

func (m *memMessages) FindVisible(_ context.Context, id string, now time.Time) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg := m.find(id)
	if msg == nil || !msg.Visible(now) {
		return nil, ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *memMessages) visible(conversationID string, now time.Time) []*models.Message {
	var out []*models.Message
	for _, msg := range m.messages[conversationID] {
		if msg.Visible(now) {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *memMessages) ListPage(_ context.Context, conversationID string, limit, offset int64, now time.Time) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.visible(conversationID, now)
	// offset counts back from the newest
	end := int64(len(rows)) - offset
	if end <= 0 {
		return nil, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]*models.Message, 0, end-start)
	for _, msg := range rows[start:end] {
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memMessages) SetContent(_ context.Context, id, content string, editedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.find(id)
	if msg == nil {
		return ErrNotFound
	}
	msg.Content = content
	t := editedAt
	msg.EditedAt = &t
	return nil
}

func (m *memMessages) SoftDelete(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.find(id)
	if msg == nil {
		return ErrNotFound
	}
	t := at
	msg.DeletedAt = &t
	return nil
}

func (m *memMessages) CountUnread(_ context.Context, conversationID, viewerID string, after, now time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, msg := range m.visible(conversationID, now) {
		if msg.SenderID != viewerID && msg.CreatedAt.After(after) {
			n++
		}
	}
	return n, nil
}

func (m *memMessages) LastVisible(_ context.Context, conversationID string, now time.Time) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.visible(conversationID, now)
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	cp := *rows[len(rows)-1]
	return &cp, nil
}

type memReactions memory

func (m *memReactions) Toggle(_ context.Context, r *models.Reaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.reactions[r.MessageID]
	for i, ex := range rows {
		if ex.UserID == r.UserID && ex.Emoji == r.Emoji {
			m.reactions[r.MessageID] = append(rows[:i:i], rows[i+1:]...)
			return false, nil
		}
	}
	cp := *r
	cp.CreatedAt = time.Now().UTC()
	m.reactions[r.MessageID] = append(rows, &cp)
	return true, nil
}

func (m *memReactions) ListByMessage(_ context.Context, messageID string) ([]*models.Reaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.reactions[messageID]
	out := make([]*models.Reaction, 0, len(rows))
	for _, r := range rows {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}
