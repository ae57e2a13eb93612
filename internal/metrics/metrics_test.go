package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/triagecore/triagecore/pkg/models"
)

func newTestAggregator() *Aggregator {
	return NewAggregator(prometheus.NewRegistry())
}

func TestRoutingStats(t *testing.T) {
	a := newTestAggregator()
	target := "order_support"

	a.ObserveDecision(models.HandoffDecision{Intent: models.IntentOrderStatus, Target: &target})
	a.ObserveDecision(models.HandoffDecision{Intent: models.IntentOrderStatus, Target: &target})
	a.ObserveDecision(models.HandoffDecision{Intent: models.IntentOther, FallbackTriggered: true})
	a.ObserveDecision(models.HandoffDecision{Intent: models.IntentComplaint, FallbackTriggered: true})

	stats := a.RoutingStats()
	if stats.Routed != 2 || stats.Fallbacks != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.FallbackRate != 0.5 {
		t.Fatalf("expected fallback rate 0.5, got %v", stats.FallbackRate)
	}
	if stats.ByTarget["order_support"] != 2 || stats.ByTarget["human_review"] != 2 {
		t.Fatalf("unexpected target rollup: %+v", stats.ByTarget)
	}
}

func TestEscalationStats(t *testing.T) {
	a := newTestAggregator()

	a.ObserveVerdict(models.EscalationVerdict{
		ShouldEscalate: true,
		Priority:       models.PriorityUrgent,
		Triggers: []models.Trigger{
			{Type: models.TriggerLegalThreat, Severity: models.SeverityCritical},
			{Type: models.TriggerVIPCustomer, Severity: models.SeverityHigh},
		},
	})
	// Non-escalating verdicts count triggers in Prometheus only, not rollups.
	a.ObserveVerdict(models.EscalationVerdict{
		ShouldEscalate: false,
		Priority:       models.PriorityLow,
		Triggers: []models.Trigger{
			{Type: models.TriggerComplexQuery, Severity: models.SeverityMedium},
		},
	})

	stats := a.EscalationStats()
	if stats.Total != 1 {
		t.Fatalf("expected 1 escalation, got %d", stats.Total)
	}
	if stats.ByTrigger[models.TriggerLegalThreat] != 1 || stats.ByTrigger[models.TriggerComplexQuery] != 0 {
		t.Fatalf("unexpected trigger rollup: %+v", stats.ByTrigger)
	}
	if stats.ByPriority[models.PriorityUrgent] != 1 {
		t.Fatalf("unexpected priority rollup: %+v", stats.ByPriority)
	}
}

func TestObserversDoNotPanic(t *testing.T) {
	a := newTestAggregator()
	a.ObserveClassification(120*time.Millisecond, true)
	a.ObserveApproval(true)
	a.ObserveApproval(false)
	a.ObserveAudit(models.AuditDenied)
	a.ObserveAudit(models.AuditGranted)
}
