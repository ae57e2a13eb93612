package learning

import (
	"context"
	"errors"
	"sync"

	"github.com/triagecore/triagecore/pkg/models"
)

var ErrNotFound = errors.New("approval record not found")

const DefaultHistoryCap = 1000

// Store is the persistence port for approval history. Appends must be
// serialized by the implementation; reads return consistent snapshots.
type Store interface {
	Append(ctx context.Context, rec *models.ApprovalRecord) error
	// List returns the retained history, oldest first.
	List(ctx context.Context) ([]models.ApprovalRecord, error)
	// ListByIntent returns the retained history for one intent, oldest first.
	ListByIntent(ctx context.Context, intent models.Intent) ([]models.ApprovalRecord, error)
}

// InMemoryStore keeps a bounded rolling window of approval records. Once the
// window is full the oldest record is silently dropped, not archived.
type InMemoryStore struct {
	mu   sync.RWMutex
	recs []models.ApprovalRecord
	cap  int
}

func NewInMemoryStore(historyCap int) *InMemoryStore {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &InMemoryStore{cap: historyCap}
}

func (s *InMemoryStore) Append(_ context.Context, rec *models.ApprovalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, cloneRecord(rec))
	if over := len(s.recs) - s.cap; over > 0 {
		s.recs = append([]models.ApprovalRecord(nil), s.recs[over:]...)
	}
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]models.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ApprovalRecord, len(s.recs))
	copy(out, s.recs)
	return out, nil
}

func (s *InMemoryStore) ListByIntent(_ context.Context, intent models.Intent) ([]models.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ApprovalRecord, 0)
	for _, r := range s.recs {
		if r.Intent == intent {
			out = append(out, r)
		}
	}
	return out, nil
}

func cloneRecord(rec *models.ApprovalRecord) models.ApprovalRecord {
	out := *rec
	if rec.Diff != nil {
		d := *rec.Diff
		d.AddedPhrases = append([]string(nil), rec.Diff.AddedPhrases...)
		d.RemovedPhrases = append([]string(nil), rec.Diff.RemovedPhrases...)
		out.Diff = &d
	}
	return out
}
