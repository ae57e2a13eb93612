package access

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/triagecore/triagecore/pkg/models"
)

const DefaultAuditTimeout = 2 * time.Second

// Decision is the structured result of one authorization check. Denials
// carry a reason without leaking anything about other principals.
type Decision struct {
	Granted bool   `json:"granted"`
	Reason  string `json:"reason,omitempty"`
}

// Gate checks role permissions and audits every check, granted or denied.
// It never fails open: an unknown role or a broken audit path still yields
// an enforced decision.
type Gate struct {
	sink         AuditSink
	fallback     AuditSink
	auditTimeout time.Duration
	now          func() time.Time
}

type GateOption func(*Gate)

func WithAuditTimeout(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.auditTimeout = d
		}
	}
}

// WithFallbackSink sets the local durable destination used when the primary
// sink fails.
func WithFallbackSink(sink AuditSink) GateOption {
	return func(g *Gate) { g.fallback = sink }
}

func NewGate(sink AuditSink, opts ...GateOption) *Gate {
	g := &Gate{
		sink:         sink,
		auditTimeout: DefaultAuditTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize checks whether the principal holds the permission and writes an
// audit entry regardless of the outcome. The audit write is attempted before
// the decision is returned but its failure never blocks the decision.
func (g *Gate) Authorize(ctx context.Context, principal *models.Principal, permission string) Decision {
	decision := g.check(principal, permission)

	entry := models.AuditEntry{
		ID:         uuid.NewString(),
		Permission: permission,
		Outcome:    models.AuditGranted,
		Reason:     decision.Reason,
		CreatedAt:  g.now(),
	}
	if principal != nil {
		entry.PrincipalID = principal.ID
		entry.Role = principal.Role
	}
	if !decision.Granted {
		entry.Outcome = models.AuditDenied
	}
	g.audit(ctx, entry)

	return decision
}

func (g *Gate) check(principal *models.Principal, permission string) Decision {
	if permission == "" {
		return Decision{Granted: false, Reason: ErrPermissionRequired.Error()}
	}
	if principal == nil || principal.ID == "" {
		return Decision{Granted: false, Reason: ErrPrincipalRequired.Error()}
	}
	if !IsValidRole(principal.Role) {
		return Decision{Granted: false, Reason: fmt.Sprintf("%s: %q", ErrUnknownRole, principal.Role)}
	}
	if !roleHasPermission(principal.Role, permission) {
		return Decision{Granted: false, Reason: fmt.Sprintf("%s: role %q lacks %q", ErrMissingPermission, principal.Role, permission)}
	}
	return Decision{Granted: true}
}

// audit writes the entry to the primary sink with a bounded timeout, falling
// back to the local durable log when the primary is unreachable. The attempt
// is never skipped and never surfaces to the caller.
func (g *Gate) audit(ctx context.Context, entry models.AuditEntry) {
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.auditTimeout)
	defer cancel()

	var primaryErr error
	if g.sink != nil {
		primaryErr = g.sink.Append(auditCtx, entry)
		if primaryErr == nil {
			return
		}
		log.Warn().Err(primaryErr).Str("entry_id", entry.ID).Msg("primary audit sink failed")
	}

	if g.fallback != nil {
		if err := g.fallback.Append(auditCtx, entry); err != nil {
			log.Error().Err(err).Str("entry_id", entry.ID).Msg("audit fallback write failed, entry lost")
			return
		}
		log.Info().Str("entry_id", entry.ID).Msg("audit entry written to local fallback log")
		return
	}
	if primaryErr != nil || g.sink == nil {
		log.Error().Str("entry_id", entry.ID).Msg("no audit sink available, entry lost")
	}
}
