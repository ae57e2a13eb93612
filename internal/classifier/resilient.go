package classifier

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/triagecore/triagecore/pkg/models"
)

const (
	DefaultTimeout  = 10 * time.Second
	defaultAttempts = 2
	retryDelay      = 500 * time.Millisecond
)

// Resilient wraps a Collaborator with a rate limiter, a bounded per-call
// timeout and a single retry. It never returns an error: when the
// collaborator stays unreachable it fails closed with a zero-confidence
// result, which downstream routing treats as "send to a human".
type Resilient struct {
	inner    Collaborator
	limiter  *rate.Limiter
	timeout  time.Duration
	attempts int
}

func NewResilient(inner Collaborator, callsPerSecond float64, timeout time.Duration) *Resilient {
	if callsPerSecond <= 0 {
		callsPerSecond = 5
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resilient{
		inner:    inner,
		limiter:  rate.NewLimiter(rate.Limit(callsPerSecond), int(callsPerSecond)+1),
		timeout:  timeout,
		attempts: defaultAttempts,
	}
}

func (r *Resilient) Classify(ctx context.Context, text string, snapshot *models.ConversationSnapshot) (Analysis, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return failClosed(err), nil
	}

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		analysis, err := r.inner.Classify(callCtx, text, snapshot)
		cancel()
		if err == nil {
			return analysis, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Msg("classification attempt failed")

		if ctx.Err() != nil {
			break
		}
		if attempt < r.attempts {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
			}
		}
	}
	return failClosed(lastErr), nil
}

func failClosed(err error) Analysis {
	log.Warn().Err(err).Msg("classifier unavailable, failing closed to zero confidence")
	return Analysis{
		Intent:        models.IntentOther,
		Confidence:    0,
		ConfidenceSet: true,
		FailedClosed:  true,
	}
}
