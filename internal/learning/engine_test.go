package learning

import (
	"context"
	"fmt"
	"testing"

	"github.com/triagecore/triagecore/pkg/models"
)

func TestRecordDerivesWasEdited(t *testing.T) {
	e := NewEngine(NewInMemoryStore(0))
	ctx := context.Background()

	same := &models.ApprovalRecord{
		ConversationID: "conv-1",
		Intent:         models.IntentOrderStatus,
		ProposedText:   "Your order shipped yesterday.",
		ApprovedText:   "Your order shipped yesterday.",
	}
	if err := e.Record(ctx, same); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if same.WasEdited {
		t.Fatalf("identical texts must not count as edited")
	}
	if same.Diff != nil {
		t.Fatalf("unedited record must carry no diff")
	}
	if same.ID == "" || same.CreatedAt.IsZero() {
		t.Fatalf("record should get id and timestamp")
	}

	edited := &models.ApprovalRecord{
		ConversationID: "conv-1",
		Intent:         models.IntentOrderStatus,
		ProposedText:   "Your order shipped yesterday.",
		ApprovedText:   "I'm sorry for the wait! Your order shipped yesterday.",
	}
	if err := e.Record(ctx, edited); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !edited.WasEdited || edited.Diff == nil {
		t.Fatalf("edited record must carry a diff")
	}
}

func TestRecordRequiresConversation(t *testing.T) {
	e := NewEngine(NewInMemoryStore(0))
	if err := e.Record(context.Background(), &models.ApprovalRecord{}); err == nil {
		t.Fatalf("expected error for missing conversation id")
	}
}

func TestToneShiftRuleOrder(t *testing.T) {
	cases := []struct {
		name     string
		proposed string
		approved string
		want     models.ToneShift
	}{
		{
			name:     "empathy added wins first",
			proposed: "The package is delayed.",
			approved: "I'm so sorry, the package is delayed.",
			want:     models.ToneMoreEmpathetic,
		},
		{
			name:     "formal closing removed",
			proposed: "Your refund is processed. Best regards, Support",
			approved: "Your refund is processed!",
			want:     models.ToneLessFormal,
		},
		{
			name:     "much shorter",
			proposed: "Thank you for reaching out to us today about your order, we have checked the tracking information",
			approved: "Checked tracking, all good",
			want:     models.ToneMoreConcise,
		},
		{
			name:     "much longer",
			proposed: "It ships Monday.",
			approved: "Your replacement unit ships Monday via express courier and you will receive tracking details the same evening.",
			want:     models.ToneMoreDetailed,
		},
		{
			name:     "minor rewording",
			proposed: "Your order will arrive on Tuesday.",
			approved: "Your order should arrive on Tuesday.",
			want:     models.ToneNone,
		},
	}
	for _, tc := range cases {
		d := diffTexts(tc.proposed, tc.approved)
		if d.ToneShift != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.name, d.ToneShift, tc.want)
		}
	}
}

func TestEditMagnitude(t *testing.T) {
	cases := []struct {
		name     string
		proposed string
		approved string
		want     models.EditMagnitude
	}{
		{"typo fix", "Your order shipped yesterday evening.", "Your order shipped yesterday evening!", models.EditMinor},
		{"rewrite", "Your order shipped.", "We have escalated this to our logistics partner for review.", models.EditCompleteRewrite},
	}
	for _, tc := range cases {
		d := diffTexts(tc.proposed, tc.approved)
		if d.Magnitude != tc.want {
			t.Fatalf("%s: got %s want %s (distance %d)", tc.name, d.Magnitude, tc.want, d.Distance)
		}
	}
}

func TestAdjustConfidenceContract(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, total, edited int) *Engine {
		t.Helper()
		e := NewEngine(NewInMemoryStore(0))
		for i := 0; i < total; i++ {
			approved := "draft"
			if i < edited {
				approved = "rewritten by hand"
			}
			rec := &models.ApprovalRecord{
				ConversationID: fmt.Sprintf("conv-%d", i),
				Intent:         models.IntentOrderCancel,
				ProposedText:   "draft",
				ApprovedText:   approved,
			}
			if err := e.Record(ctx, rec); err != nil {
				t.Fatalf("Record: %v", err)
			}
		}
		return e
	}

	// Fewer than 5 records: unchanged.
	e := seed(t, 4, 4)
	if got := e.AdjustConfidence(ctx, 0.75, models.IntentOrderCancel); got != 0.75 {
		t.Fatalf("thin history must pass confidence through, got %v", got)
	}

	// 6 records, 4 edited: edit rate 0.67 > 0.5, multiply by 0.8.
	e = seed(t, 6, 4)
	got := e.AdjustConfidence(ctx, 0.75, models.IntentOrderCancel)
	if got < 0.599 || got > 0.601 {
		t.Fatalf("expected 0.75*0.8=0.6, got %v", got)
	}

	// 10 records, 1 edited: edit rate 0.1 < 0.2, multiply by 1.1 capped at 1.0.
	e = seed(t, 10, 1)
	got = e.AdjustConfidence(ctx, 0.95, models.IntentOrderCancel)
	if got != 1.0 {
		t.Fatalf("expected cap at 1.0, got %v", got)
	}
	got = e.AdjustConfidence(ctx, 0.5, models.IntentOrderCancel)
	if got < 0.549 || got > 0.551 {
		t.Fatalf("expected 0.5*1.1=0.55, got %v", got)
	}

	// Mid edit rate: unchanged.
	e = seed(t, 10, 3)
	if got := e.AdjustConfidence(ctx, 0.75, models.IntentOrderCancel); got != 0.75 {
		t.Fatalf("mid edit rate must not adjust, got %v", got)
	}

	// Unrelated intent history never bleeds over.
	e = seed(t, 10, 10)
	if got := e.AdjustConfidence(ctx, 0.75, models.IntentBillingInquiry); got != 0.75 {
		t.Fatalf("other intents must be unaffected, got %v", got)
	}
}

func TestAdjustConfidenceIdempotent(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(NewInMemoryStore(0))
	for i := 0; i < 6; i++ {
		rec := &models.ApprovalRecord{
			ConversationID: fmt.Sprintf("conv-%d", i),
			Intent:         models.IntentOrderCancel,
			ProposedText:   "draft",
			ApprovedText:   "rewritten",
		}
		if err := e.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	first := e.AdjustConfidence(ctx, 0.75, models.IntentOrderCancel)
	second := e.AdjustConfidence(ctx, 0.75, models.IntentOrderCancel)
	if first != second {
		t.Fatalf("adjustConfidence not idempotent: %v vs %v", first, second)
	}
}

func TestInsights(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(NewInMemoryStore(0))

	// Three edits that each add "sorry" and remove "regards".
	for i := 0; i < 3; i++ {
		rec := &models.ApprovalRecord{
			ConversationID: fmt.Sprintf("conv-%d", i),
			Intent:         models.IntentComplaint,
			ProposedText:   "We received your message. Regards",
			ApprovedText:   "Sorry about that, we received your message",
		}
		if err := e.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	// One untouched approval.
	rec := &models.ApprovalRecord{
		ConversationID: "conv-ok",
		Intent:         models.IntentFeedback,
		ProposedText:   "Thanks for the kind words!",
		ApprovedText:   "Thanks for the kind words!",
	}
	if err := e.Record(ctx, rec); err != nil {
		t.Fatalf("Record: %v", err)
	}

	ins, err := e.Insights(ctx)
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if ins.TotalRecords != 4 {
		t.Fatalf("expected 4 records, got %d", ins.TotalRecords)
	}
	if ins.ApprovalRate != 0.25 {
		t.Fatalf("expected approval rate 0.25, got %v", ins.ApprovalRate)
	}
	if ins.ToneShifts[models.ToneMoreEmpathetic] != 3 {
		t.Fatalf("expected 3 more_empathetic shifts, got %+v", ins.ToneShifts)
	}
	if !contains(ins.PreferredPhrases, "sorry") {
		t.Fatalf("expected 'sorry' preferred, got %v", ins.PreferredPhrases)
	}
	if !contains(ins.AvoidPhrases, "regards") {
		t.Fatalf("expected 'regards' avoided, got %v", ins.AvoidPhrases)
	}
}

func contains(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}
