package learning

import (
	"context"
	"fmt"
	"testing"

	"github.com/triagecore/triagecore/pkg/models"
)

func TestInMemoryStoreBoundedHistory(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(1000)

	for i := 0; i < 1001; i++ {
		rec := &models.ApprovalRecord{
			ID:             fmt.Sprintf("rec-%d", i),
			ConversationID: "conv-1",
			Intent:         models.IntentOther,
			ProposedText:   "a",
			ApprovedText:   "a",
		}
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1000 {
		t.Fatalf("expected history capped at 1000, got %d", len(recs))
	}
	if recs[0].ID != "rec-1" {
		t.Fatalf("expected oldest record dropped, head is %s", recs[0].ID)
	}
	if recs[999].ID != "rec-1000" {
		t.Fatalf("expected newest record retained, tail is %s", recs[999].ID)
	}
}

func TestInMemoryStoreListByIntent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(0)

	for i, intent := range []models.Intent{models.IntentOrderCancel, models.IntentFeedback, models.IntentOrderCancel} {
		rec := &models.ApprovalRecord{ID: fmt.Sprintf("rec-%d", i), ConversationID: "c", Intent: intent}
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recs, err := s.ListByIntent(ctx, models.IntentOrderCancel)
	if err != nil {
		t.Fatalf("ListByIntent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 order_cancel records, got %d", len(recs))
	}
}

func TestInMemoryStoreClonesRecords(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(0)

	rec := &models.ApprovalRecord{
		ID:             "rec-1",
		ConversationID: "c",
		Intent:         models.IntentOther,
		Diff:           &models.EditDiff{AddedPhrases: []string{"sorry"}},
	}
	if err := s.Append(ctx, rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	rec.Diff.AddedPhrases[0] = "mutated"

	recs, _ := s.List(ctx)
	if recs[0].Diff.AddedPhrases[0] != "sorry" {
		t.Fatalf("store must hold its own copy of the diff")
	}
}
