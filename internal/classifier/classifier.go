package classifier

import (
	"context"
	"errors"

	"github.com/triagecore/triagecore/pkg/models"
)

var (
	ErrUnavailable = errors.New("classification collaborator unavailable")
	ErrBadPayload  = errors.New("classification payload unparseable")
)

// Analysis is what one classification call yields. ConfidenceSet reports
// whether the collaborator actually scored the classification; when it did
// not, callers substitute the configured optimistic default.
type Analysis struct {
	Intent        models.Intent     `json:"intent"`
	Confidence    float64           `json:"confidence"`
	ConfidenceSet bool              `json:"confidence_set"`
	Sentiment     *models.Sentiment `json:"sentiment,omitempty"`
	Urgency       string            `json:"urgency,omitempty"`
	// FailedClosed is set when the collaborator could not be reached and the
	// zero-confidence fallback result was substituted.
	FailedClosed bool `json:"failed_closed,omitempty"`
}

// Collaborator is the external classification service. Implementations may
// block on network I/O; callers bound them with a context deadline.
type Collaborator interface {
	Classify(ctx context.Context, text string, snapshot *models.ConversationSnapshot) (Analysis, error)
}
