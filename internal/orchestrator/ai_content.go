package orchestrator

import (
	"sync"
	"time"
)

// Paging limits for AI content listings.
const (
	maxAIContentItems    = 500
	defaultAIContentPage = 20
	maxAIContentPageSize = 100
)

// AIContentItem is one transcription result reported by the AI job.
type AIContentItem struct {
	ID          string    `json:"id"`
	AISessionID string    `json:"aiSessionId"`
	StreamID    StreamID  `json:"streamId,omitempty"`
	Content     string    `json:"content"`
	Position    string    `json:"position,omitempty"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
}

// AIContentPage is one page of AI content, newest first.
type AIContentPage struct {
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
	Items    []AIContentItem `json:"items"`
}

// AIContentLog keeps the most recent AI content in memory. Once limit items
// are held the oldest is dropped.
type AIContentLog struct {
	mu    sync.Mutex
	items []AIContentItem
	limit int
}

// NewAIContentLog returns an empty log holding at most limit items.
func NewAIContentLog(limit int) *AIContentLog {
	if limit <= 0 {
		limit = maxAIContentItems
	}
	return &AIContentLog{limit: limit}
}

// Append records item.
func (l *AIContentLog) Append(item AIContentItem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, item)
	if over := len(l.items) - l.limit; over > 0 {
		l.items = append([]AIContentItem(nil), l.items[over:]...)
	}
}

// List returns one page of items, newest first. An empty stream lists
// everything. Page is 1-based.
func (l *AIContentLog) List(stream StreamID, page, pageSize int) AIContentPage {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultAIContentPage
	}
	if pageSize > maxAIContentPageSize {
		pageSize = maxAIContentPageSize
	}

	l.mu.Lock()
	var matched []AIContentItem
	for i := len(l.items) - 1; i >= 0; i-- {
		if stream == "" || l.items[i].StreamID == stream {
			matched = append(matched, l.items[i])
		}
	}
	l.mu.Unlock()

	out := AIContentPage{Total: len(matched), Page: page, PageSize: pageSize, Items: []AIContentItem{}}
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return out
	}
	end := min(start+pageSize, len(matched))
	out.Items = matched[start:end]
	return out
}

// Delete removes one item by id.
func (l *AIContentLog) Delete(id string) (AIContentItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, it := range l.items {
		if it.ID == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return it, nil
		}
	}
	return AIContentItem{}, ErrAIContentNotFound
}

// Len returns the number of items held.
func (l *AIContentLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
