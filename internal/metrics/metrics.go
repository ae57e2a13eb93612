package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/triagecore/triagecore/pkg/models"
)

// Aggregator is a passive observer of the triage pipeline. It exports
// Prometheus series and keeps small in-memory rollups for the stats
// endpoints; it never influences decisions.
type Aggregator struct {
	MessagesProcessed  *prometheus.CounterVec
	RoutingDecisions   *prometheus.CounterVec
	Escalations        *prometheus.CounterVec
	EscalationTriggers *prometheus.CounterVec
	ClassifierLatency  prometheus.Histogram
	ClassifierFailures prometheus.Counter
	LearningRecords    *prometheus.CounterVec
	AuditDecisions     *prometheus.CounterVec

	mu         sync.Mutex
	routed     int64
	fallbacks  int64
	escalated  int64
	byTrigger  map[models.TriggerType]int64
	byPriority map[models.Priority]int64
	byTarget   map[string]int64
}

func NewAggregator(reg prometheus.Registerer) *Aggregator {
	factory := promauto.With(reg)
	return &Aggregator{
		MessagesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_messages_processed_total",
			Help: "Total number of inbound messages run through the triage pipeline",
		}, []string{"intent"}),
		RoutingDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_routing_decisions_total",
			Help: "Total routing decisions by target handler",
		}, []string{"target", "fallback"}),
		Escalations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_escalations_total",
			Help: "Total escalation verdicts by priority",
		}, []string{"priority"}),
		EscalationTriggers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_escalation_triggers_total",
			Help: "Total fired escalation triggers by type and severity",
		}, []string{"type", "severity"}),
		ClassifierLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "triage_classifier_duration_seconds",
			Help:    "Time taken by the external classification collaborator",
			Buckets: prometheus.DefBuckets,
		}),
		ClassifierFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "triage_classifier_failures_total",
			Help: "Total classification calls that failed closed",
		}),
		LearningRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_approval_records_total",
			Help: "Total approval records ingested by the learning engine",
		}, []string{"edited"}),
		AuditDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_audit_decisions_total",
			Help: "Total authorization checks by outcome",
		}, []string{"outcome"}),

		byTrigger:  make(map[models.TriggerType]int64),
		byPriority: make(map[models.Priority]int64),
		byTarget:   make(map[string]int64),
	}
}

// ObserveDecision records one handoff decision.
func (a *Aggregator) ObserveDecision(d models.HandoffDecision) {
	target := "human_review"
	if d.Target != nil {
		target = *d.Target
	}
	fallback := "false"
	if d.FallbackTriggered {
		fallback = "true"
	}
	a.MessagesProcessed.WithLabelValues(string(d.Intent)).Inc()
	a.RoutingDecisions.WithLabelValues(target, fallback).Inc()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.byTarget[target]++
	if d.FallbackTriggered {
		a.fallbacks++
	} else {
		a.routed++
	}
}

// ObserveVerdict records one escalation verdict and its triggers.
func (a *Aggregator) ObserveVerdict(v models.EscalationVerdict) {
	for _, t := range v.Triggers {
		a.EscalationTriggers.WithLabelValues(string(t.Type), string(t.Severity)).Inc()
	}
	if !v.ShouldEscalate {
		return
	}
	a.Escalations.WithLabelValues(string(v.Priority)).Inc()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.escalated++
	a.byPriority[v.Priority]++
	for _, t := range v.Triggers {
		a.byTrigger[t.Type]++
	}
}

// ObserveClassification records collaborator latency and failures.
func (a *Aggregator) ObserveClassification(d time.Duration, failedClosed bool) {
	a.ClassifierLatency.Observe(d.Seconds())
	if failedClosed {
		a.ClassifierFailures.Inc()
	}
}

// ObserveApproval records one learning ingestion.
func (a *Aggregator) ObserveApproval(wasEdited bool) {
	edited := "false"
	if wasEdited {
		edited = "true"
	}
	a.LearningRecords.WithLabelValues(edited).Inc()
}

// ObserveAudit records one authorization outcome.
func (a *Aggregator) ObserveAudit(outcome models.AuditOutcome) {
	a.AuditDecisions.WithLabelValues(string(outcome)).Inc()
}

// RoutingStats is the rollup served by the stats endpoint.
type RoutingStats struct {
	Routed       int64            `json:"routed"`
	Fallbacks    int64            `json:"fallbacks"`
	FallbackRate float64          `json:"fallback_rate"`
	ByTarget     map[string]int64 `json:"by_target"`
}

// EscalationStats is the escalation rollup served by the stats endpoint.
type EscalationStats struct {
	Total      int64                        `json:"total"`
	ByTrigger  map[models.TriggerType]int64 `json:"by_trigger"`
	ByPriority map[models.Priority]int64    `json:"by_priority"`
}

func (a *Aggregator) RoutingStats() RoutingStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := RoutingStats{
		Routed:    a.routed,
		Fallbacks: a.fallbacks,
		ByTarget:  make(map[string]int64, len(a.byTarget)),
	}
	for k, v := range a.byTarget {
		out.ByTarget[k] = v
	}
	if total := a.routed + a.fallbacks; total > 0 {
		out.FallbackRate = float64(a.fallbacks) / float64(total)
	}
	return out
}

func (a *Aggregator) EscalationStats() EscalationStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := EscalationStats{
		Total:      a.escalated,
		ByTrigger:  make(map[models.TriggerType]int64, len(a.byTrigger)),
		ByPriority: make(map[models.Priority]int64, len(a.byPriority)),
	}
	for k, v := range a.byTrigger {
		out.ByTrigger[k] = v
	}
	for k, v := range a.byPriority {
		out.ByPriority[k] = v
	}
	return out
}
