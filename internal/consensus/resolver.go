// Package consensus governs repeated cover evaluations: a rejection is
// re-asked at alternating tiers with relaxed criteria, and one approving
// verdict overturns every rejection before it.
package consensus

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/carmatch/moderation-cli/internal/escalate"
	"github.com/carmatch/moderation-cli/internal/model"
	"github.com/carmatch/moderation-cli/internal/resilience"
)

// ErrExhaustedRetries means every remaining attempt failed on transient
// provider errors, so there is no verdict at all. Callers route this to
// manual review; it must never be read as a rejection.
var ErrExhaustedRetries = eris.New("consensus: exhausted retries without a verdict")

// CoverEvaluator is the slice of the escalation router the resolver
// drives. Satisfied by *escalate.Router.
type CoverEvaluator interface {
	EvaluateCover(ctx context.Context, img model.ImageRef, attempt int) (escalate.CoverResolution, error)
	Policy() escalate.TierPolicy
}

// CoverVerdict is the resolver's terminal state for one cover image.
type CoverVerdict struct {
	Approved   bool
	Evaluation model.ImageEvaluation // approving evaluation, or the last rejection
	Reason     string                // non-empty iff !Approved
	Attempts   []model.EscalationAttempt
}

// Resolver runs the consensus state machine over cover evaluations.
type Resolver struct {
	router CoverEvaluator
}

// NewResolver builds a resolver on top of an escalation router.
func NewResolver(router CoverEvaluator) *Resolver {
	return &Resolver{router: router}
}

// ResolveCover evaluates a cover image until a terminal verdict.
//
// The loop is deliberately lenient: a single valid=true at any attempt
// approves immediately, while a rejection only stands after every
// attempt up to the cap rejected. This trades false approvals for fewer
// false rejections of borderline photos of real vehicles.
//
// Fatal policy errors reject without consuming further attempts. If the
// loop runs out of attempts on transient failures alone, there is no
// verdict and ErrExhaustedRetries is returned.
func (r *Resolver) ResolveCover(ctx context.Context, cover model.ImageRef) (CoverVerdict, error) {
	policy := r.router.Policy()

	verdict := CoverVerdict{}
	var lastRejection *model.ImageEvaluation
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		start := time.Now()
		res, err := r.router.EvaluateCover(ctx, cover, attempt)
		latency := time.Since(start)

		if err != nil {
			lastErr = err
			if resilience.Classify(err) == resilience.ClassFatalPolicy {
				// The provider refused the content itself; retrying asks
				// the same question and gets the same refusal.
				verdict.Reason = "content rejected by provider policy"
				verdict.Attempts = append(verdict.Attempts, model.EscalationAttempt{
					Attempt:   attempt,
					Source:    "error",
					Reason:    verdict.Reason,
					LatencyMS: latency.Milliseconds(),
				})
				zap.L().Info("cover rejected by provider policy",
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				return verdict, nil
			}
			if ctx.Err() != nil {
				return CoverVerdict{Attempts: verdict.Attempts},
					eris.Wrap(err, "consensus: context ended mid-evaluation")
			}
			verdict.Attempts = append(verdict.Attempts, model.EscalationAttempt{
				Attempt:   attempt,
				Source:    "error",
				Reason:    err.Error(),
				LatencyMS: latency.Milliseconds(),
			})
			continue
		}

		eval := res.Evaluation
		verdict.Attempts = append(verdict.Attempts, model.EscalationAttempt{
			Attempt:   attempt,
			Source:    res.Source.String(),
			Valid:     eval.Valid,
			Reason:    eval.Reason,
			LatencyMS: latency.Milliseconds(),
		})

		if eval.Valid {
			// One approval overturns every earlier rejection.
			verdict.Approved = true
			verdict.Evaluation = eval
			verdict.Reason = ""
			return verdict, nil
		}

		lastRejection = &eval
		zap.L().Debug("cover attempt rejected",
			zap.Int("attempt", attempt),
			zap.String("source", res.Source.String()),
			zap.String("reason", eval.Reason),
		)
	}

	if lastRejection == nil {
		// Every attempt errored transiently; no model ever answered.
		if lastErr == nil {
			lastErr = eris.New("consensus: no attempts executed")
		}
		return CoverVerdict{Attempts: verdict.Attempts},
			eris.Wrap(ErrExhaustedRetries, lastErr.Error())
	}

	verdict.Evaluation = *lastRejection
	verdict.Reason = lastRejection.Reason
	return verdict, nil
}
