package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/triagecore/triagecore/internal/access"
	"github.com/triagecore/triagecore/internal/classifier"
	"github.com/triagecore/triagecore/internal/contextstore"
	"github.com/triagecore/triagecore/internal/draft"
	"github.com/triagecore/triagecore/internal/escalation"
	"github.com/triagecore/triagecore/internal/handoff"
	"github.com/triagecore/triagecore/internal/learning"
	"github.com/triagecore/triagecore/internal/metrics"
	"github.com/triagecore/triagecore/pkg/models"
)

// ErrDenied wraps an authorization denial from the gate.
type ErrDenied struct {
	Reason string
}

func (e ErrDenied) Error() string { return fmt.Sprintf("authorization denied: %s", e.Reason) }

// Result is the outcome of running one message through the pipeline.
type Result struct {
	Message    models.Message           `json:"message"`
	Analysis   classifier.Analysis      `json:"analysis"`
	Verdict    models.EscalationVerdict `json:"verdict"`
	Decision   models.HandoffDecision   `json:"decision"`
	Draft      *PendingDraft            `json:"draft,omitempty"`
	Superseded bool                     `json:"superseded"`
}

// ApprovalQueuer hands approval records to a background queue for ingestion.
type ApprovalQueuer interface {
	QueueApprovalIngest(ctx context.Context, rec models.ApprovalRecord) error
}

// Service orchestrates the triage pipeline: context update, classification,
// escalation evaluation, handoff decision, metrics, and optional reply
// drafting for the approval queue.
type Service struct {
	store      *contextstore.Store
	collab     classifier.Collaborator
	escalator  *escalation.Evaluator
	router     *handoff.Engine
	learner    *learning.Engine
	gate       *access.Gate
	aggregator *metrics.Aggregator
	producer   draft.Producer
	queue      ApprovalQueuer
	pending    *pendingQueue
	now        func() time.Time
}

func NewService(
	store *contextstore.Store,
	collab classifier.Collaborator,
	escalator *escalation.Evaluator,
	router *handoff.Engine,
	learner *learning.Engine,
	gate *access.Gate,
	aggregator *metrics.Aggregator,
	producer draft.Producer,
) *Service {
	return &Service{
		store:      store,
		collab:     collab,
		escalator:  escalator,
		router:     router,
		learner:    learner,
		gate:       gate,
		aggregator: aggregator,
		producer:   producer,
		pending:    newPendingQueue(),
		now:        time.Now,
	}
}

// ProcessMessage runs the full pipeline for one inbound customer message.
// If a newer message for the same conversation arrives while classification
// is in flight, the stale result is discarded (last message wins).
func (s *Service) ProcessMessage(ctx context.Context, conversationID, body string) (*Result, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id required")
	}

	msg, seq := s.store.Append(conversationID, models.SenderCustomer, body)
	snapshot, err := s.store.Snapshot(conversationID)
	if err != nil {
		return nil, fmt.Errorf("snapshotting conversation: %w", err)
	}

	start := s.now()
	analysis, err := s.collab.Classify(ctx, body, snapshot)
	if err != nil {
		// Collaborators wrapped by classifier.Resilient never error; a bare
		// collaborator failing here still fails closed.
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("classification failed, treating as zero confidence")
		analysis = classifier.Analysis{Intent: models.IntentOther, ConfidenceSet: true, FailedClosed: true}
	}
	if s.aggregator != nil {
		s.aggregator.ObserveClassification(s.now().Sub(start), analysis.FailedClosed)
	}

	// Last message wins: discard this result if a newer message arrived.
	if cur, err := s.store.Seq(conversationID); err == nil && cur != seq {
		log.Debug().
			Str("conversation_id", conversationID).
			Uint64("seq", seq).
			Uint64("current", cur).
			Msg("classification superseded by a newer message")
		return &Result{Message: msg, Analysis: analysis, Superseded: true}, nil
	}

	if err := s.store.SetAnalysis(conversationID, analysis.Intent, analysis.Confidence, analysis.Sentiment, analysis.Urgency); err != nil {
		return nil, fmt.Errorf("recording analysis: %w", err)
	}
	snapshot, err = s.store.Snapshot(conversationID)
	if err != nil {
		return nil, fmt.Errorf("snapshotting conversation: %w", err)
	}

	verdict := s.escalator.Evaluate(escalation.Input{
		ConversationID: conversationID,
		Message:        body,
		Sentiment:      analysis.Sentiment,
		Confidence:     analysis.Confidence,
		Customer:       snapshot.Customer,
		MessageCount:   len(snapshot.Messages),
		UnansweredFor:  unansweredAge(snapshot, msg.ID, s.now()),
	})
	if s.aggregator != nil {
		s.aggregator.ObserveVerdict(verdict)
	}

	decision := s.router.Decide(ctx, handoff.Input{
		Intent:     analysis.Intent,
		Confidence: analysis.Confidence,
		Snapshot:   snapshot,
		Verdict:    &verdict,
	})
	if s.aggregator != nil {
		s.aggregator.ObserveDecision(decision)
	}

	result := &Result{
		Message:  msg,
		Analysis: analysis,
		Verdict:  verdict,
		Decision: decision,
	}

	// Fallbacks get a drafted reply queued for human approval.
	if decision.FallbackTriggered && s.producer != nil {
		text, err := s.producer.Propose(ctx, analysis.Intent, snapshot)
		if err != nil {
			log.Warn().Err(err).Str("conversation_id", conversationID).Msg("draft producer failed, queuing without draft")
		} else {
			d := &PendingDraft{
				ID:             uuid.NewString(),
				ConversationID: conversationID,
				Intent:         analysis.Intent,
				DraftText:      text,
				Confidence:     decision.Confidence,
				CreatedAt:      s.now(),
			}
			s.pending.push(d)
			dd := *d
			result.Draft = &dd
		}
	}

	return result, nil
}

// unansweredAge computes how long the customer has been waiting on an agent
// reply, ignoring the message that just arrived.
func unansweredAge(snapshot *models.ConversationSnapshot, currentMsgID string, now time.Time) time.Duration {
	var oldestUnanswered *time.Time
	for i := len(snapshot.Messages) - 1; i >= 0; i-- {
		m := snapshot.Messages[i]
		if m.Sender == models.SenderAgent {
			break
		}
		if m.Sender == models.SenderCustomer && m.ID != currentMsgID {
			t := m.CreatedAt
			oldestUnanswered = &t
		}
	}
	if oldestUnanswered == nil {
		return 0
	}
	return now.Sub(*oldestUnanswered)
}

// SetCustomer attaches customer attributes to a conversation.
func (s *Service) SetCustomer(conversationID string, c models.Customer) {
	s.store.SetCustomer(conversationID, c)
}

// SetAuthToken stores the customer's verified session token so account
// management routing can check it.
func (s *Service) SetAuthToken(conversationID, token string) {
	s.store.SetMetadata(conversationID, handoff.AuthTokenMetadataKey, token)
}

// Conversation returns the current snapshot for a conversation.
func (s *Service) Conversation(conversationID string) (*models.ConversationSnapshot, error) {
	return s.store.Snapshot(conversationID)
}

// PendingDrafts lists replies waiting on human approval, oldest first.
func (s *Service) PendingDrafts() []PendingDraft {
	return s.pending.list()
}

// Approve records a human approval of a pending draft. The final text may
// differ from the draft; the learning engine captures the edit.
func (s *Service) Approve(ctx context.Context, principal *models.Principal, pendingID, finalText string) (*models.ApprovalRecord, error) {
	d := s.gate.Authorize(ctx, principal, access.PermApproveAction)
	s.observeAudit(d)
	if !d.Granted {
		return nil, ErrDenied{Reason: d.Reason}
	}

	pd, err := s.pending.take(pendingID)
	if err != nil {
		return nil, err
	}
	if finalText == "" {
		finalText = pd.DraftText
	}

	rec := &models.ApprovalRecord{
		ID:             uuid.NewString(),
		ConversationID: pd.ConversationID,
		Intent:         pd.Intent,
		ProposedText:   pd.DraftText,
		ApprovedText:   finalText,
		Confidence:     pd.Confidence,
		TimeToApproval: s.now().Sub(pd.CreatedAt),
		CreatedAt:      s.now(),
	}
	rec.WasEdited = rec.ProposedText != rec.ApprovedText
	if err := s.ingest(ctx, rec); err != nil {
		return nil, err
	}
	if s.aggregator != nil {
		s.aggregator.ObserveApproval(rec.WasEdited)
	}
	s.store.Append(pd.ConversationID, models.SenderAgent, finalText)
	return rec, nil
}

// UseApprovalQueue routes approved records through a background queue instead
// of ingesting them synchronously. The worker runs the same learning engine,
// so the edit diff is still derived exactly once.
func (s *Service) UseApprovalQueue(q ApprovalQueuer) {
	s.queue = q
}

// ingest hands the record to the background queue when one is configured,
// falling back to synchronous ingestion if the queue is unreachable.
func (s *Service) ingest(ctx context.Context, rec *models.ApprovalRecord) error {
	if s.queue != nil {
		err := s.queue.QueueApprovalIngest(ctx, *rec)
		if err == nil {
			return nil
		}
		log.Warn().Err(err).Str("record_id", rec.ID).Msg("approval queue unavailable, ingesting synchronously")
	}
	return s.learner.Record(ctx, rec)
}

// Reject drops a pending draft without sending anything. The rejection is
// audited but does not feed the learning history.
func (s *Service) Reject(ctx context.Context, principal *models.Principal, pendingID string) error {
	d := s.gate.Authorize(ctx, principal, access.PermRejectAction)
	s.observeAudit(d)
	if !d.Granted {
		return ErrDenied{Reason: d.Reason}
	}
	_, err := s.pending.take(pendingID)
	return err
}

// Insights exposes the learning aggregates to authorized readers.
func (s *Service) Insights(ctx context.Context, principal *models.Principal) (*learning.Insights, error) {
	d := s.gate.Authorize(ctx, principal, access.PermLearningRead)
	s.observeAudit(d)
	if !d.Granted {
		return nil, ErrDenied{Reason: d.Reason}
	}
	return s.learner.Insights(ctx)
}

func (s *Service) observeAudit(d access.Decision) {
	if s.aggregator == nil {
		return
	}
	if d.Granted {
		s.aggregator.ObserveAudit(models.AuditGranted)
	} else {
		s.aggregator.ObserveAudit(models.AuditDenied)
	}
}
