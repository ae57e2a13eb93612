package escalation

import (
	"fmt"
	"strings"
	"time"

	"github.com/triagecore/triagecore/pkg/models"
)

// Input is the snapshot the evaluator works over. It is deliberately flat:
// the evaluator holds no state and never reaches back into the store.
type Input struct {
	ConversationID string
	Message        string
	Sentiment      *models.Sentiment
	Confidence     float64
	Customer       *models.Customer
	MessageCount   int
	// UnansweredFor is how long the newest customer message has waited
	// without an agent reply. Zero disables the SLA check.
	UnansweredFor time.Duration
}

var humanRequestPatterns = []string{
	"real person",
	"real human",
	"speak to a human",
	"talk to a human",
	"speak to someone",
	"talk to someone",
	"speak to an agent",
	"talk to an agent",
	"speak to a representative",
	"talk to a representative",
	"customer service rep",
	"speak to a manager",
	"talk to a manager",
	"human being",
	"live agent",
	"live person",
}

var legalKeywords = []string{
	"lawyer",
	"attorney",
	"legal action",
	"lawsuit",
	"litigation",
	"sue you",
	"suing",
	"bbb",
	"better business bureau",
	"ftc",
	"consumer protection",
}

const (
	slaWarnAfter = 2 * time.Hour
	slaHardAfter = 24 * time.Hour
)

// Evaluator decides whether a conversation must be pulled out of automated
// handling. It is pure and safe for concurrent use.
type Evaluator struct {
	now func() time.Time
}

func New() *Evaluator {
	return &Evaluator{now: time.Now}
}

// NewWithClock is used by tests that need deterministic timestamps.
func NewWithClock(now func() time.Time) *Evaluator {
	return &Evaluator{now: now}
}

// Evaluate runs every trigger rule over the input and applies the
// escalation threshold policy.
func (ev *Evaluator) Evaluate(in Input) models.EscalationVerdict {
	triggers := collectTriggers(in)

	var criticals, highs, mediums int
	legal := false
	vip := false
	humanAsked := false
	for _, t := range triggers {
		switch t.Severity {
		case models.SeverityCritical:
			criticals++
		case models.SeverityHigh:
			highs++
		case models.SeverityMedium:
			mediums++
		}
		switch t.Type {
		case models.TriggerLegalThreat:
			legal = true
		case models.TriggerVIPCustomer:
			vip = true
		case models.TriggerExplicitRequest:
			humanAsked = true
		}
	}

	// A direct request for a human is always honored, independent of the
	// severity-count policy below.
	escalate := humanAsked || criticals > 0 || highs >= 2 || (highs >= 1 && mediums >= 1)

	tier := models.TierStandard
	switch {
	case criticals > 0 || legal:
		tier = models.TierManager
	case highs > 0 || vip:
		tier = models.TierSenior
	}

	priority := models.PriorityMedium
	switch {
	case criticals > 0:
		priority = models.PriorityUrgent
	case highs > 0:
		priority = models.PriorityHigh
	case len(triggers) == 0:
		priority = models.PriorityLow
	}

	channels := []string{"support_queue"}
	if criticals > 0 {
		channels = []string{"pager", "support_queue"}
	}

	return models.EscalationVerdict{
		ConversationID: in.ConversationID,
		ShouldEscalate: escalate,
		Triggers:       triggers,
		Tier:           tier,
		Priority:       priority,
		AlertChannels:  channels,
		Note:           buildNote(in, triggers),
		EvaluatedAt:    ev.now(),
	}
}

func collectTriggers(in Input) []models.Trigger {
	var out []models.Trigger
	lower := strings.ToLower(in.Message)

	for _, pat := range humanRequestPatterns {
		if strings.Contains(lower, pat) {
			out = append(out, models.Trigger{
				Type:     models.TriggerExplicitRequest,
				Severity: models.SeverityHigh,
				Reason:   fmt.Sprintf("customer asked for a human (%q)", pat),
			})
			break
		}
	}

	if s := in.Sentiment; s != nil && s.Label == "negative" {
		switch {
		case s.Score < -0.7:
			out = append(out, models.Trigger{
				Type:     models.TriggerNegativeSentiment,
				Severity: models.SeverityCritical,
				Reason:   fmt.Sprintf("severely negative sentiment (%.2f)", s.Score),
			})
		case s.Score < -0.5:
			out = append(out, models.Trigger{
				Type:     models.TriggerNegativeSentiment,
				Severity: models.SeverityHigh,
				Reason:   fmt.Sprintf("very negative sentiment (%.2f)", s.Score),
			})
		}
	}

	switch {
	case in.Confidence < 0.3:
		out = append(out, models.Trigger{
			Type:     models.TriggerLowConfidence,
			Severity: models.SeverityHigh,
			Reason:   fmt.Sprintf("classification confidence %.2f below 0.3", in.Confidence),
		})
	case in.Confidence < 0.5:
		out = append(out, models.Trigger{
			Type:     models.TriggerLowConfidence,
			Severity: models.SeverityMedium,
			Reason:   fmt.Sprintf("classification confidence %.2f below 0.5", in.Confidence),
		})
	}

	for _, kw := range legalKeywords {
		if strings.Contains(lower, kw) {
			out = append(out, models.Trigger{
				Type:     models.TriggerLegalThreat,
				Severity: models.SeverityCritical,
				Reason:   fmt.Sprintf("legal language detected (%q)", kw),
			})
			break
		}
	}

	if isVIP(in.Customer) {
		out = append(out, models.Trigger{
			Type:     models.TriggerVIPCustomer,
			Severity: models.SeverityHigh,
			Reason:   "VIP customer",
		})
	}

	if questions := strings.Count(in.Message, "?"); questions > 2 ||
		len(in.Message) > 500 ||
		countTerminators(in.Message) > 10 {
		out = append(out, models.Trigger{
			Type:     models.TriggerComplexQuery,
			Severity: models.SeverityMedium,
			Reason:   "message too complex for a single automated reply",
		})
	}

	if in.UnansweredFor > 0 {
		switch {
		case in.UnansweredFor >= slaHardAfter:
			out = append(out, models.Trigger{
				Type:     models.TriggerSLAViolation,
				Severity: models.SeverityHigh,
				Reason:   fmt.Sprintf("customer waiting %s without a reply", in.UnansweredFor.Round(time.Minute)),
			})
		case in.UnansweredFor >= slaWarnAfter:
			out = append(out, models.Trigger{
				Type:     models.TriggerSLAViolation,
				Severity: models.SeverityMedium,
				Reason:   fmt.Sprintf("customer waiting %s without a reply", in.UnansweredFor.Round(time.Minute)),
			})
		}
	}

	return out
}

// isVIP mirrors the account rules the support org uses: an explicit flag,
// high lifetime value, or a long order history.
func isVIP(c *models.Customer) bool {
	if c == nil {
		return false
	}
	return c.VIP || c.LifetimeValue >= 1000 || c.OrderCount >= 10
}

func countTerminators(s string) int {
	n := 0
	for _, r := range s {
		switch r {
		case '.', '!', '?':
			n++
		}
	}
	return n
}

func buildNote(in Input, triggers []models.Trigger) string {
	var b strings.Builder

	if len(triggers) == 0 {
		b.WriteString("No escalation triggers fired.\n")
	} else {
		b.WriteString("Escalation triggers:\n")
		for _, t := range triggers {
			fmt.Fprintf(&b, "- %s (%s): %s\n", t.Type, t.Severity, t.Reason)
		}
	}

	preview := in.Message
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	fmt.Fprintf(&b, "Customer message: %q\n", preview)

	if in.Sentiment != nil {
		fmt.Fprintf(&b, "Sentiment: %s (%.2f)\n", in.Sentiment.Label, in.Sentiment.Score)
	}
	if in.MessageCount > 0 {
		fmt.Fprintf(&b, "Messages in conversation: %d\n", in.MessageCount)
	}

	b.WriteString("Recommended action: ")
	b.WriteString(recommendedAction(triggers))
	return b.String()
}

func recommendedAction(triggers []models.Trigger) string {
	top := models.SeverityLow
	for _, t := range triggers {
		if severityRank(t.Severity) > severityRank(top) {
			top = t.Severity
		}
	}
	switch top {
	case models.SeverityCritical:
		return "immediate manager attention required"
	case models.SeverityHigh:
		return "respond within 1 hour"
	case models.SeverityMedium:
		return "respond within 4 hours"
	default:
		return "handle in the normal queue"
	}
}

func severityRank(s models.Severity) int {
	switch s {
	case models.SeverityCritical:
		return 3
	case models.SeverityHigh:
		return 2
	case models.SeverityMedium:
		return 1
	default:
		return 0
	}
}
