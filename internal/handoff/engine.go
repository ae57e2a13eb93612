package handoff

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/triagecore/triagecore/pkg/models"
)

const DefaultConfidenceThreshold = 0.7

// AuthTokenMetadataKey is the conversation metadata key the action layer
// fills with the customer's verified session token.
const AuthTokenMetadataKey = "auth_token"

// Specialist handler targets.
const (
	TargetOrderSupport     = "order_support"
	TargetShippingSupport  = "shipping_support"
	TargetProductSupport   = "product_support"
	TargetTechnicalSupport = "technical_support"
	TargetBillingSupport   = "billing_support"
	TargetCustomerAccounts = "customer_accounts"
)

// routingTable maps intents to specialist handlers by domain family.
// Intents absent from the table (feedback, complaint, other) always fall
// back to human review.
var routingTable = map[models.Intent]string{
	models.IntentOrderStatus:   TargetOrderSupport,
	models.IntentOrderCancel:   TargetOrderSupport,
	models.IntentOrderRefund:   TargetOrderSupport,
	models.IntentOrderExchange: TargetOrderSupport,
	models.IntentOrderModify:   TargetOrderSupport,

	models.IntentShippingTracking: TargetShippingSupport,
	models.IntentShippingDelay:    TargetShippingSupport,
	models.IntentShippingMethods:  TargetShippingSupport,
	models.IntentShippingCost:     TargetShippingSupport,
	models.IntentShippingAddress:  TargetShippingSupport,

	models.IntentProductInfo:          TargetProductSupport,
	models.IntentProductSpecs:         TargetProductSupport,
	models.IntentProductCompatibility: TargetProductSupport,
	models.IntentProductAvailability:  TargetProductSupport,

	models.IntentTechnicalSetup:        TargetTechnicalSupport,
	models.IntentTechnicalTroubleshoot: TargetTechnicalSupport,
	models.IntentTechnicalWarranty:     TargetTechnicalSupport,
	models.IntentTechnicalRepair:       TargetTechnicalSupport,

	models.IntentAccountManagement: TargetCustomerAccounts,
	models.IntentBillingInquiry:    TargetBillingSupport,
}

// ConfidenceAdjuster biases a raw confidence by approval history. The
// learning engine implements it.
type ConfidenceAdjuster interface {
	AdjustConfidence(ctx context.Context, original float64, intent models.Intent) float64
}

// Input is everything one routing evaluation needs.
type Input struct {
	Intent     models.Intent
	Confidence float64
	Snapshot   *models.ConversationSnapshot
	Verdict    *models.EscalationVerdict
}

// Engine picks a specialist handler for a classified message or falls back
// to human review. It is stateless per call and safe for concurrent use.
type Engine struct {
	threshold float64
	adjuster  ConfidenceAdjuster
	verifier  TokenVerifier
	now       func() time.Time
}

func NewEngine(threshold float64, adjuster ConfidenceAdjuster, verifier TokenVerifier) *Engine {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultConfidenceThreshold
	}
	return &Engine{threshold: threshold, adjuster: adjuster, verifier: verifier, now: time.Now}
}

// Decide runs the routing algorithm. It never panics on unknown intents;
// anything outside the routing table degrades to fallback.
func (e *Engine) Decide(ctx context.Context, in Input) models.HandoffDecision {
	decision := models.HandoffDecision{
		Intent:        in.Intent,
		RawConfidence: in.Confidence,
		Confidence:    in.Confidence,
		DecidedAt:     e.now(),
	}
	if in.Snapshot != nil {
		decision.ConversationID = in.Snapshot.ConversationID
	}

	// Learning bias first, thresholding second.
	if e.adjuster != nil {
		adjusted := e.adjuster.AdjustConfidence(ctx, in.Confidence, in.Intent)
		if adjusted != in.Confidence {
			decision.Confidence = adjusted
			decision.RulesFired = append(decision.RulesFired, "learning_bias")
			log.Debug().
				Str("intent", string(in.Intent)).
				Float64("raw", in.Confidence).
				Float64("adjusted", adjusted).
				Msg("confidence adjusted from approval history")
		}
	}

	target, mapped := routingTable[in.Intent]

	switch {
	case decision.Confidence < e.threshold:
		decision.FallbackTriggered = true
		decision.RulesFired = append(decision.RulesFired, "low_confidence")
		decision.Rationale = fmt.Sprintf("confidence %.2f below threshold %.2f, deferring to human review", decision.Confidence, e.threshold)
		if mapped {
			decision.Alternatives = []string{target}
		}
	case !mapped:
		decision.FallbackTriggered = true
		decision.RulesFired = append(decision.RulesFired, "unmapped_intent")
		decision.Rationale = fmt.Sprintf("no handler mapped for intent %q, deferring to human review", in.Intent)
	case in.Intent == models.IntentAccountManagement && !e.tokenVerified(in.Snapshot):
		decision.FallbackTriggered = true
		decision.RulesFired = append(decision.RulesFired, "auth_token_missing")
		decision.Rationale = "account management requires a verified authentication token, deferring to human review"
		decision.Alternatives = []string{target}
	default:
		decision.Target = &target
		decision.RulesFired = append(decision.RulesFired, "routing_table")
		decision.Rationale = fmt.Sprintf("intent %q routed to %s with confidence %.2f", in.Intent, target, decision.Confidence)
	}

	// Escalation overrides whatever routing picked.
	if in.Verdict != nil && in.Verdict.ShouldEscalate {
		decision.Target = nil
		decision.FallbackTriggered = true
		decision.RulesFired = append(decision.RulesFired, "escalation_override")
		reasons := make([]string, 0, len(in.Verdict.Triggers))
		for _, t := range in.Verdict.Triggers {
			reasons = append(reasons, string(t.Type))
		}
		decision.Rationale = fmt.Sprintf("escalated to a human (%s priority): %s",
			in.Verdict.Priority, strings.Join(reasons, ", "))
	}

	return decision
}

func (e *Engine) tokenVerified(snapshot *models.ConversationSnapshot) bool {
	if e.verifier == nil || snapshot == nil {
		return false
	}
	token := snapshot.Metadata[AuthTokenMetadataKey]
	if err := e.verifier.Verify(token); err != nil {
		log.Debug().Err(err).Str("conversation_id", snapshot.ConversationID).Msg("auth token rejected")
		return false
	}
	return true
}
