package models

import (
	"time"
)

// Conversation models

// Sender identifies who authored a conversation message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAgent    Sender = "agent"
	SenderSystem   Sender = "system"
)

// Message is a single utterance inside a conversation.
type Message struct {
	ID        string    `json:"id" db:"id"`
	Sender    Sender    `json:"sender" db:"sender"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Customer carries the attributes routing and escalation care about.
type Customer struct {
	ID            string  `json:"id" db:"id"`
	Name          string  `json:"name,omitempty" db:"name"`
	VIP           bool    `json:"vip" db:"vip"`
	LifetimeValue float64 `json:"lifetime_value,omitempty" db:"lifetime_value"`
	OrderCount    int     `json:"order_count,omitempty" db:"order_count"`
}

// Sentiment is the most recent inferred sentiment for a conversation.
// Score is in [-1, 1], negative meaning unhappy.
type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ConversationSnapshot is an immutable copy of a conversation's state,
// safe to hand to evaluators without further locking.
type ConversationSnapshot struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []Message         `json:"messages"`
	Customer       *Customer         `json:"customer,omitempty"`
	Intent         Intent            `json:"intent,omitempty"`
	Confidence     float64           `json:"confidence,omitempty"`
	Sentiment      *Sentiment        `json:"sentiment,omitempty"`
	Urgency        string            `json:"urgency,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Seq            uint64            `json:"seq"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// LastCustomerMessage returns the newest customer-authored message, or nil.
func (s *ConversationSnapshot) LastCustomerMessage() *Message {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Sender == SenderCustomer {
			return &s.Messages[i]
		}
	}
	return nil
}

// Intent taxonomy

// Intent is a classified customer intent.
type Intent string

const (
	IntentOrderStatus            Intent = "order_status"
	IntentOrderCancel            Intent = "order_cancel"
	IntentOrderRefund            Intent = "order_refund"
	IntentOrderExchange          Intent = "order_exchange"
	IntentOrderModify            Intent = "order_modify"
	IntentShippingTracking       Intent = "shipping_tracking"
	IntentShippingDelay          Intent = "shipping_delay"
	IntentShippingMethods        Intent = "shipping_methods"
	IntentShippingCost           Intent = "shipping_cost"
	IntentShippingAddress        Intent = "shipping_address"
	IntentProductInfo            Intent = "product_info"
	IntentProductSpecs           Intent = "product_specs"
	IntentProductCompatibility   Intent = "product_compatibility"
	IntentProductAvailability    Intent = "product_availability"
	IntentTechnicalSetup         Intent = "technical_setup"
	IntentTechnicalTroubleshoot  Intent = "technical_troubleshoot"
	IntentTechnicalWarranty      Intent = "technical_warranty"
	IntentTechnicalRepair        Intent = "technical_repair"
	IntentAccountManagement      Intent = "account_management"
	IntentBillingInquiry         Intent = "billing_inquiry"
	IntentFeedback               Intent = "feedback"
	IntentComplaint              Intent = "complaint"
	IntentOther                  Intent = "other"
)

// AllIntents lists every recognized intent, used for prompt construction
// and for validating collaborator output.
func AllIntents() []Intent {
	return []Intent{
		IntentOrderStatus, IntentOrderCancel, IntentOrderRefund, IntentOrderExchange, IntentOrderModify,
		IntentShippingTracking, IntentShippingDelay, IntentShippingMethods, IntentShippingCost, IntentShippingAddress,
		IntentProductInfo, IntentProductSpecs, IntentProductCompatibility, IntentProductAvailability,
		IntentTechnicalSetup, IntentTechnicalTroubleshoot, IntentTechnicalWarranty, IntentTechnicalRepair,
		IntentAccountManagement, IntentBillingInquiry, IntentFeedback, IntentComplaint, IntentOther,
	}
}

// ParseIntent maps a raw collaborator string onto the taxonomy.
// Anything unrecognized becomes IntentOther rather than an error.
func ParseIntent(raw string) Intent {
	for _, in := range AllIntents() {
		if string(in) == raw {
			return in
		}
	}
	return IntentOther
}

// Handoff models

// HandoffDecision is the routing outcome for a classified message.
// Target is nil when the conversation falls back to the human queue.
type HandoffDecision struct {
	ConversationID    string    `json:"conversation_id"`
	Intent            Intent    `json:"intent"`
	RawConfidence     float64   `json:"raw_confidence"`
	Confidence        float64   `json:"confidence"`
	Target            *string   `json:"target"`
	Alternatives      []string  `json:"alternatives,omitempty"`
	FallbackTriggered bool      `json:"fallback_triggered"`
	Rationale         string    `json:"rationale"`
	RulesFired        []string  `json:"rules_fired,omitempty"`
	DecidedAt         time.Time `json:"decided_at"`
}

// Escalation models

// TriggerType names a condition that can force human escalation.
type TriggerType string

const (
	TriggerExplicitRequest   TriggerType = "explicit_request"
	TriggerNegativeSentiment TriggerType = "negative_sentiment"
	TriggerLowConfidence     TriggerType = "low_confidence"
	TriggerLegalThreat       TriggerType = "legal_threat"
	TriggerVIPCustomer       TriggerType = "vip_customer"
	TriggerComplexQuery      TriggerType = "complex_query"
	TriggerSLAViolation      TriggerType = "sla_violation"
)

// Severity orders escalation triggers by weight.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Trigger is a single fired escalation condition.
type Trigger struct {
	Type     TriggerType `json:"type"`
	Severity Severity    `json:"severity"`
	Reason   string      `json:"reason"`
}

// HandlerTier is the class of human handler an escalation is routed to.
type HandlerTier string

const (
	TierStandard HandlerTier = "standard"
	TierSenior   HandlerTier = "senior"
	TierManager  HandlerTier = "manager"
)

// Priority is the queue priority attached to an escalation verdict.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// EscalationVerdict is the full output of the escalation evaluator.
type EscalationVerdict struct {
	ConversationID string      `json:"conversation_id"`
	ShouldEscalate bool        `json:"should_escalate"`
	Triggers       []Trigger   `json:"triggers"`
	Tier           HandlerTier `json:"tier"`
	Priority       Priority    `json:"priority"`
	AlertChannels  []string    `json:"alert_channels"`
	Note           string      `json:"note"`
	EvaluatedAt    time.Time   `json:"evaluated_at"`
}

// Learning models

// ToneShift classifies how an approver's edit changed the voice of a draft.
type ToneShift string

const (
	ToneMoreEmpathetic ToneShift = "more_empathetic"
	ToneLessFormal     ToneShift = "less_formal"
	ToneMoreConcise    ToneShift = "more_concise"
	ToneMoreDetailed   ToneShift = "more_detailed"
	ToneNone           ToneShift = "none"
)

// EditMagnitude buckets how far an approved text drifted from the proposal.
type EditMagnitude string

const (
	EditMinor           EditMagnitude = "minor"
	EditModerate        EditMagnitude = "moderate"
	EditMajor           EditMagnitude = "major"
	EditCompleteRewrite EditMagnitude = "complete_rewrite"
)

// EditDiff captures what changed between a proposed and an approved text.
type EditDiff struct {
	AddedPhrases   []string      `json:"added_phrases"`
	RemovedPhrases []string      `json:"removed_phrases"`
	ToneShift      ToneShift     `json:"tone_shift"`
	Distance       int           `json:"distance"`
	Magnitude      EditMagnitude `json:"magnitude"`
}

// ApprovalRecord is one human approval event fed to the learning engine.
type ApprovalRecord struct {
	ID             string        `json:"id" db:"id"`
	ConversationID string        `json:"conversation_id" db:"conversation_id"`
	Intent         Intent        `json:"intent" db:"intent"`
	ProposedText   string        `json:"proposed_text" db:"proposed_text"`
	ApprovedText   string        `json:"approved_text" db:"approved_text"`
	WasEdited      bool          `json:"was_edited" db:"was_edited"`
	Diff           *EditDiff     `json:"diff,omitempty" db:"diff"`
	Confidence     float64       `json:"confidence" db:"confidence"`
	TimeToApproval time.Duration `json:"time_to_approval" db:"time_to_approval"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// Access models

// RoleName is a principal's role in the static permission table.
type RoleName string

const (
	RoleSystem   RoleName = "system"
	RoleAdmin    RoleName = "admin"
	RoleOperator RoleName = "operator"
	RoleViewer   RoleName = "viewer"
)

// Principal is an already-authenticated actor; the core never sees credentials.
type Principal struct {
	ID   string   `json:"id"`
	Role RoleName `json:"role"`
}

// AuditOutcome records whether an authorization was granted.
type AuditOutcome string

const (
	AuditGranted AuditOutcome = "granted"
	AuditDenied  AuditOutcome = "denied"
)

// AuditEntry is one append-only record of an authorization check.
type AuditEntry struct {
	ID          string       `json:"id" db:"id"`
	PrincipalID string       `json:"principal_id" db:"principal_id"`
	Role        RoleName     `json:"role" db:"role"`
	Permission  string       `json:"permission" db:"permission"`
	Outcome     AuditOutcome `json:"outcome" db:"outcome"`
	Reason      string       `json:"reason,omitempty" db:"reason"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}
