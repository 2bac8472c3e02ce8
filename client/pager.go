package client

import (
	"context"
	"sync"

	"github.com/yourorg/messaging/internal/models"
)

// PageSize matches the server's history page size; end of history is
// inferred from a short page, never from a server-provided total.
const PageSize = 50

// FetchPage loads one page of history, paging backward from the newest
// message by offset.
type FetchPage func(ctx context.Context, conversationID string, limit, offset int64) ([]*models.Message, error)

// Viewport abstracts the scroll container. Refresh re-renders the message
// window; heights are measured around it so the pager can pin the visual
// position of already-read messages across a prepend.
type Viewport interface {
	Refresh(messages []*models.Message)
	ContentHeight() float64
	ScrollOffset() float64
	SetScrollOffset(float64)
}

// Pager pages a conversation's history backward, prepending older messages.
// Per-view client state is cooperatively scheduled; the mutex only guards
// the window against the push-event goroutine appending live messages.
type Pager struct {
	fetch    FetchPage
	viewport Viewport

	mu       sync.Mutex
	messages []*models.Message // chronological
	loading  bool
	end      bool
}

func NewPager(fetch FetchPage, viewport Viewport) *Pager {
	return &Pager{fetch: fetch, viewport: viewport}
}

// LoadMore fetches the next older page. It is a no-op while a load is in
// flight or after a short page marked the end of history.
func (p *Pager) LoadMore(ctx context.Context, conversationID string) error {
	p.mu.Lock()
	if p.loading || p.end {
		p.mu.Unlock()
		return nil
	}
	p.loading = true
	offset := int64(len(p.messages))
	p.mu.Unlock()

	page, err := p.fetch(ctx, conversationID, PageSize, offset)

	p.mu.Lock()
	p.loading = false
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if int64(len(page)) < PageSize {
		p.end = true
	}
	if len(page) == 0 {
		p.mu.Unlock()
		return nil
	}
	p.messages = append(append([]*models.Message{}, page...), p.messages...)
	window := make([]*models.Message, len(p.messages))
	copy(window, p.messages)
	p.mu.Unlock()

	// re-render and shift scroll by the exact height the prepend introduced
	// so visible messages do not jump
	before := p.viewport.ContentHeight()
	p.viewport.Refresh(window)
	after := p.viewport.ContentHeight()
	p.viewport.SetScrollOffset(p.viewport.ScrollOffset() + (after - before))
	return nil
}

// Append adds a newly arrived message at the tail, deduplicating by id so
// at-least-once delivery folds into one row.
func (p *Pager) Append(msg *models.Message) {
	p.mu.Lock()
	for _, m := range p.messages {
		if m.ID == msg.ID {
			p.mu.Unlock()
			return
		}
	}
	p.messages = append(p.messages, msg)
	window := make([]*models.Message, len(p.messages))
	copy(window, p.messages)
	p.mu.Unlock()
	p.viewport.Refresh(window)
}

// Messages returns the loaded window in chronological order.
func (p *Pager) Messages() []*models.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*models.Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// HasMore reports whether older history may remain.
func (p *Pager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.end
}

// Loading reports whether a page fetch is in flight.
func (p *Pager) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}
