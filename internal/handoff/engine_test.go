package handoff

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/triagecore/triagecore/pkg/models"
)

type staticAdjuster struct {
	factor float64
}

func (a staticAdjuster) AdjustConfidence(_ context.Context, original float64, _ models.Intent) float64 {
	if a.factor == 0 {
		return original
	}
	return original * a.factor
}

func snapshot(meta map[string]string) *models.ConversationSnapshot {
	return &models.ConversationSnapshot{ConversationID: "conv-1", Metadata: meta}
}

func TestRoutesConfidentIntent(t *testing.T) {
	e := NewEngine(0.7, nil, nil)
	d := e.Decide(context.Background(), Input{
		Intent:     models.IntentShippingTracking,
		Confidence: 0.95,
		Snapshot:   snapshot(nil),
	})
	if d.FallbackTriggered {
		t.Fatalf("did not expect fallback: %+v", d)
	}
	if d.Target == nil || *d.Target != TargetShippingSupport {
		t.Fatalf("expected shipping_support, got %v", d.Target)
	}
	if d.ConversationID != "conv-1" {
		t.Fatalf("decision should carry conversation id")
	}
}

func TestLowConfidenceFallsBack(t *testing.T) {
	e := NewEngine(0.7, nil, nil)
	for _, conf := range []float64{0.0, 0.3, 0.69} {
		d := e.Decide(context.Background(), Input{Intent: models.IntentOrderStatus, Confidence: conf})
		if !d.FallbackTriggered || d.Target != nil {
			t.Fatalf("confidence %v must fall back, got %+v", conf, d)
		}
	}
}

func TestUnmappedIntentFallsBack(t *testing.T) {
	e := NewEngine(0.7, nil, nil)
	for _, intent := range []models.Intent{models.IntentComplaint, models.IntentFeedback, models.IntentOther, models.Intent("garbage")} {
		d := e.Decide(context.Background(), Input{Intent: intent, Confidence: 0.99})
		if !d.FallbackTriggered || d.Target != nil {
			t.Fatalf("intent %s must fall back, got %+v", intent, d)
		}
	}
}

func TestLearningBiasAppliedBeforeThreshold(t *testing.T) {
	// Raw 0.75 clears the threshold, but a 0.8 bias pushes it to 0.6.
	e := NewEngine(0.7, staticAdjuster{factor: 0.8}, nil)
	d := e.Decide(context.Background(), Input{Intent: models.IntentOrderCancel, Confidence: 0.75})
	if !d.FallbackTriggered {
		t.Fatalf("adjusted confidence 0.6 must fall back, got %+v", d)
	}
	if d.RawConfidence != 0.75 {
		t.Fatalf("raw confidence must be preserved, got %v", d.RawConfidence)
	}
	if d.Confidence < 0.599 || d.Confidence > 0.601 {
		t.Fatalf("expected adjusted confidence 0.6, got %v", d.Confidence)
	}
	if !fired(d, "learning_bias") || !fired(d, "low_confidence") {
		t.Fatalf("expected learning_bias and low_confidence rules, got %v", d.RulesFired)
	}
}

func TestEscalationOverridesRouting(t *testing.T) {
	e := NewEngine(0.7, nil, nil)
	d := e.Decide(context.Background(), Input{
		Intent:     models.IntentOrderStatus,
		Confidence: 0.95,
		Verdict: &models.EscalationVerdict{
			ShouldEscalate: true,
			Priority:       models.PriorityUrgent,
			Triggers: []models.Trigger{
				{Type: models.TriggerLegalThreat, Severity: models.SeverityCritical, Reason: "legal"},
			},
		},
	})
	if d.Target != nil || !d.FallbackTriggered {
		t.Fatalf("escalation must override routing, got %+v", d)
	}
	if !strings.Contains(d.Rationale, "legal_threat") || !strings.Contains(d.Rationale, "urgent") {
		t.Fatalf("rationale should carry escalation reasons and priority: %s", d.Rationale)
	}
	if !fired(d, "escalation_override") {
		t.Fatalf("expected escalation_override rule, got %v", d.RulesFired)
	}
}

func TestAccountManagementRequiresToken(t *testing.T) {
	verifier := NewHMACTokenVerifier("test-secret")
	e := NewEngine(0.7, nil, verifier)

	// No token in context.
	d := e.Decide(context.Background(), Input{
		Intent:     models.IntentAccountManagement,
		Confidence: 0.95,
		Snapshot:   snapshot(nil),
	})
	if !d.FallbackTriggered || d.Target != nil {
		t.Fatalf("missing token must fall back, got %+v", d)
	}
	if !fired(d, "auth_token_missing") {
		t.Fatalf("expected auth_token_missing rule, got %v", d.RulesFired)
	}

	// Token signed with the wrong secret.
	bad := signToken(t, "other-secret")
	d = e.Decide(context.Background(), Input{
		Intent:     models.IntentAccountManagement,
		Confidence: 0.95,
		Snapshot:   snapshot(map[string]string{AuthTokenMetadataKey: bad}),
	})
	if !d.FallbackTriggered {
		t.Fatalf("forged token must fall back, got %+v", d)
	}

	// Properly signed token routes normally.
	good := signToken(t, "test-secret")
	d = e.Decide(context.Background(), Input{
		Intent:     models.IntentAccountManagement,
		Confidence: 0.95,
		Snapshot:   snapshot(map[string]string{AuthTokenMetadataKey: good}),
	})
	if d.FallbackTriggered || d.Target == nil || *d.Target != TargetCustomerAccounts {
		t.Fatalf("verified token should route to customer_accounts, got %+v", d)
	}
}

func signToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "cust-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func TestRoutingTableFamilies(t *testing.T) {
	e := NewEngine(0.7, nil, nil)
	cases := map[models.Intent]string{
		models.IntentOrderRefund:          TargetOrderSupport,
		models.IntentShippingCost:         TargetShippingSupport,
		models.IntentProductCompatibility: TargetProductSupport,
		models.IntentTechnicalWarranty:    TargetTechnicalSupport,
		models.IntentBillingInquiry:       TargetBillingSupport,
	}
	for intent, want := range cases {
		d := e.Decide(context.Background(), Input{Intent: intent, Confidence: 0.9})
		if d.Target == nil || *d.Target != want {
			t.Fatalf("intent %s: expected %s, got %v", intent, want, d.Target)
		}
	}
}

func fired(d models.HandoffDecision, rule string) bool {
	for _, r := range d.RulesFired {
		if r == rule {
			return true
		}
	}
	return false
}
