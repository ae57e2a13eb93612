package escalation

import (
	"strings"
	"testing"
	"time"

	"github.com/triagecore/triagecore/pkg/models"
)

func hasTrigger(v models.EscalationVerdict, tt models.TriggerType) *models.Trigger {
	for i := range v.Triggers {
		if v.Triggers[i].Type == tt {
			return &v.Triggers[i]
		}
	}
	return nil
}

func TestExplicitHumanRequestEscalates(t *testing.T) {
	ev := New()
	v := ev.Evaluate(Input{
		Message:    "I want to talk to a real person",
		Sentiment:  &models.Sentiment{Label: "neutral", Score: 0.0},
		Confidence: 0.9,
	})
	if !v.ShouldEscalate {
		t.Fatalf("expected escalation for explicit human request")
	}
	tr := hasTrigger(v, models.TriggerExplicitRequest)
	if tr == nil {
		t.Fatalf("expected explicit_request trigger, got %+v", v.Triggers)
	}
	if v.Priority != models.PriorityHigh && v.Priority != models.PriorityUrgent {
		t.Fatalf("expected priority at least high, got %s", v.Priority)
	}
}

func TestHappyMessageDoesNotEscalate(t *testing.T) {
	ev := New()
	v := ev.Evaluate(Input{
		Message:    "great, thanks!",
		Sentiment:  &models.Sentiment{Label: "positive", Score: 0.8},
		Confidence: 0.95,
	})
	if v.ShouldEscalate {
		t.Fatalf("did not expect escalation: %+v", v.Triggers)
	}
	if len(v.Triggers) != 0 {
		t.Fatalf("expected zero triggers, got %+v", v.Triggers)
	}
	if v.Priority != models.PriorityLow {
		t.Fatalf("expected low priority with no triggers, got %s", v.Priority)
	}
	if v.Tier != models.TierStandard {
		t.Fatalf("expected standard tier, got %s", v.Tier)
	}
}

func TestSeverelyNegativeSentimentIsCritical(t *testing.T) {
	ev := New()
	v := ev.Evaluate(Input{
		Message:    "this is unacceptable",
		Sentiment:  &models.Sentiment{Label: "negative", Score: -0.75},
		Confidence: 0.6,
	})
	tr := hasTrigger(v, models.TriggerNegativeSentiment)
	if tr == nil || tr.Severity != models.SeverityCritical {
		t.Fatalf("expected critical negative_sentiment trigger, got %+v", v.Triggers)
	}
	if !v.ShouldEscalate {
		t.Fatalf("any critical trigger must escalate")
	}
	if v.Priority != models.PriorityUrgent {
		t.Fatalf("expected urgent priority, got %s", v.Priority)
	}
	if v.Tier != models.TierManager {
		t.Fatalf("expected manager tier, got %s", v.Tier)
	}
	if len(v.AlertChannels) != 2 {
		t.Fatalf("critical verdicts alert both channels, got %v", v.AlertChannels)
	}
}

func TestSentimentThresholds(t *testing.T) {
	ev := New()
	cases := []struct {
		score    float64
		label    string
		severity models.Severity
		fired    bool
	}{
		{-0.75, "negative", models.SeverityCritical, true},
		{-0.6, "negative", models.SeverityHigh, true},
		{-0.4, "negative", "", false},
		{-0.75, "neutral", "", false},
	}
	for _, tc := range cases {
		v := ev.Evaluate(Input{
			Message:    "hmm",
			Sentiment:  &models.Sentiment{Label: tc.label, Score: tc.score},
			Confidence: 0.9,
		})
		tr := hasTrigger(v, models.TriggerNegativeSentiment)
		if tc.fired {
			if tr == nil || tr.Severity != tc.severity {
				t.Fatalf("score %.2f label %s: expected %s trigger, got %+v", tc.score, tc.label, tc.severity, tr)
			}
		} else if tr != nil {
			t.Fatalf("score %.2f label %s: did not expect trigger %+v", tc.score, tc.label, tr)
		}
	}
}

func TestLowConfidenceThresholds(t *testing.T) {
	ev := New()
	cases := []struct {
		confidence float64
		severity   models.Severity
		fired      bool
	}{
		{0.25, models.SeverityHigh, true},
		{0.45, models.SeverityMedium, true},
		{0.55, "", false},
	}
	for _, tc := range cases {
		v := ev.Evaluate(Input{Message: "ok", Confidence: tc.confidence})
		tr := hasTrigger(v, models.TriggerLowConfidence)
		if tc.fired {
			if tr == nil || tr.Severity != tc.severity {
				t.Fatalf("confidence %.2f: expected %s trigger, got %+v", tc.confidence, tc.severity, tr)
			}
		} else if tr != nil {
			t.Fatalf("confidence %.2f: did not expect trigger %+v", tc.confidence, tr)
		}
	}
}

func TestLegalThreatIsCriticalAndManagerTier(t *testing.T) {
	ev := New()
	v := ev.Evaluate(Input{
		Message:    "Fix this or my attorney will be in touch.",
		Confidence: 0.9,
	})
	tr := hasTrigger(v, models.TriggerLegalThreat)
	if tr == nil || tr.Severity != models.SeverityCritical {
		t.Fatalf("expected critical legal_threat trigger, got %+v", v.Triggers)
	}
	if !v.ShouldEscalate || v.Tier != models.TierManager {
		t.Fatalf("legal threats go to a manager: escalate=%v tier=%s", v.ShouldEscalate, v.Tier)
	}
}

func TestVIPCustomerTrigger(t *testing.T) {
	ev := New()
	for _, c := range []models.Customer{
		{ID: "a", VIP: true},
		{ID: "b", LifetimeValue: 1500},
		{ID: "c", OrderCount: 12},
	} {
		v := ev.Evaluate(Input{Message: "hi", Confidence: 0.9, Customer: &c})
		if hasTrigger(v, models.TriggerVIPCustomer) == nil {
			t.Fatalf("customer %s should fire vip trigger", c.ID)
		}
		if v.Tier != models.TierSenior {
			t.Fatalf("vip goes to senior tier, got %s", v.Tier)
		}
	}

	v := ev.Evaluate(Input{Message: "hi", Confidence: 0.9, Customer: &models.Customer{ID: "d"}})
	if hasTrigger(v, models.TriggerVIPCustomer) != nil {
		t.Fatalf("ordinary customer should not fire vip trigger")
	}
}

func TestComplexQueryHeuristics(t *testing.T) {
	ev := New()
	cases := []struct {
		name    string
		message string
		fired   bool
	}{
		{"many questions", "why? how? when? where?", true},
		{"two questions ok", "why? how?", false},
		{"long message", strings.Repeat("a", 501), true},
		{"many sentences", strings.Repeat("Stop. ", 11), true},
		{"plain", "where is my order", false},
	}
	for _, tc := range cases {
		v := ev.Evaluate(Input{Message: tc.message, Confidence: 0.9})
		got := hasTrigger(v, models.TriggerComplexQuery) != nil
		if got != tc.fired {
			t.Fatalf("%s: fired=%v want %v", tc.name, got, tc.fired)
		}
	}
}

func TestSLAViolation(t *testing.T) {
	ev := New()

	v := ev.Evaluate(Input{Message: "hello?", Confidence: 0.9, UnansweredFor: 3 * time.Hour})
	tr := hasTrigger(v, models.TriggerSLAViolation)
	if tr == nil || tr.Severity != models.SeverityMedium {
		t.Fatalf("3h wait should be a medium sla trigger, got %+v", tr)
	}

	v = ev.Evaluate(Input{Message: "hello?", Confidence: 0.9, UnansweredFor: 25 * time.Hour})
	tr = hasTrigger(v, models.TriggerSLAViolation)
	if tr == nil || tr.Severity != models.SeverityHigh {
		t.Fatalf("25h wait should be a high sla trigger, got %+v", tr)
	}

	v = ev.Evaluate(Input{Message: "hello?", Confidence: 0.9, UnansweredFor: time.Hour})
	if hasTrigger(v, models.TriggerSLAViolation) != nil {
		t.Fatalf("1h wait should not fire sla trigger")
	}
}

func TestThresholdPolicy(t *testing.T) {
	ev := New()

	// One high (vip) plus one medium (low confidence 0.45) escalates.
	v := ev.Evaluate(Input{
		Message:    "hi",
		Confidence: 0.45,
		Customer:   &models.Customer{ID: "x", VIP: true},
	})
	if !v.ShouldEscalate {
		t.Fatalf("one high + one medium must escalate: %+v", v.Triggers)
	}

	// A single high trigger (vip alone) does not.
	v = ev.Evaluate(Input{
		Message:    "hi",
		Confidence: 0.9,
		Customer:   &models.Customer{ID: "x", VIP: true},
	})
	if v.ShouldEscalate {
		t.Fatalf("a lone vip trigger must not escalate: %+v", v.Triggers)
	}

	// Two highs (vip + confidence < 0.3) escalate.
	v = ev.Evaluate(Input{
		Message:    "hi",
		Confidence: 0.25,
		Customer:   &models.Customer{ID: "x", VIP: true},
	})
	if !v.ShouldEscalate {
		t.Fatalf("two high triggers must escalate: %+v", v.Triggers)
	}

	// A single medium does not.
	v = ev.Evaluate(Input{Message: "hi", Confidence: 0.45})
	if v.ShouldEscalate {
		t.Fatalf("a lone medium trigger must not escalate: %+v", v.Triggers)
	}
}

func TestNoteContainsPreviewAndTriggers(t *testing.T) {
	ev := New()
	long := strings.Repeat("x", 300)
	v := ev.Evaluate(Input{
		Message:      "My attorney says " + long,
		Confidence:   0.9,
		Sentiment:    &models.Sentiment{Label: "negative", Score: -0.3},
		MessageCount: 7,
	})
	if !strings.Contains(v.Note, "legal_threat") {
		t.Fatalf("note missing trigger list: %s", v.Note)
	}
	if !strings.Contains(v.Note, "...") {
		t.Fatalf("note should truncate long messages to a preview: %s", v.Note)
	}
	if !strings.Contains(v.Note, "Messages in conversation: 7") {
		t.Fatalf("note missing conversation size: %s", v.Note)
	}
	if !strings.Contains(v.Note, "Recommended action:") {
		t.Fatalf("note missing recommended action: %s", v.Note)
	}
}
