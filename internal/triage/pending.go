package triage

import (
	"errors"
	"sync"
	"time"

	"github.com/triagecore/triagecore/pkg/models"
)

var ErrPendingNotFound = errors.New("pending draft not found")

// PendingDraft is a reply awaiting human approval.
type PendingDraft struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Intent         models.Intent `json:"intent"`
	DraftText      string        `json:"draft_text"`
	Confidence     float64       `json:"confidence"`
	CreatedAt      time.Time     `json:"created_at"`
}

// pendingQueue holds drafts until a human approves or rejects them.
type pendingQueue struct {
	mu    sync.Mutex
	byID  map[string]*PendingDraft
	order []string
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{byID: make(map[string]*PendingDraft)}
}

func (q *pendingQueue) push(d *PendingDraft) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byID[d.ID] = d
	q.order = append(q.order, d.ID)
}

func (q *pendingQueue) take(id string) (*PendingDraft, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.byID[id]
	if !ok {
		return nil, ErrPendingNotFound
	}
	delete(q.byID, id)
	for i, other := range q.order {
		if other == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return d, nil
}

func (q *pendingQueue) list() []PendingDraft {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]PendingDraft, 0, len(q.order))
	for _, id := range q.order {
		if d, ok := q.byID[id]; ok {
			out = append(out, *d)
		}
	}
	return out
}
