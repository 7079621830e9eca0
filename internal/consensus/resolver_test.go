package consensus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carmatch/moderation-cli/internal/escalate"
	"github.com/carmatch/moderation-cli/internal/model"
	"github.com/carmatch/moderation-cli/internal/resilience"
)

// scriptedRouter returns one scripted result per attempt.
type scriptedRouter struct {
	results []func() (escalate.CoverResolution, error)
	calls   int
	policy  escalate.TierPolicy
}

func (s *scriptedRouter) EvaluateCover(_ context.Context, _ model.ImageRef, _ int) (escalate.CoverResolution, error) {
	i := s.calls
	s.calls++
	if i >= len(s.results) {
		return escalate.CoverResolution{}, errors.New("unexpected extra attempt")
	}
	return s.results[i]()
}

func (s *scriptedRouter) Policy() escalate.TierPolicy {
	if s.policy.MaxAttempts > 0 {
		return s.policy
	}
	return escalate.DefaultTierPolicy()
}

func approved(source escalate.Source) func() (escalate.CoverResolution, error) {
	return func() (escalate.CoverResolution, error) {
		return escalate.CoverResolution{
			Evaluation: model.ImageEvaluation{Valid: true, Confidence: 0.9},
			Source:     source,
		}, nil
	}
}

func rejected(reason string) func() (escalate.CoverResolution, error) {
	return func() (escalate.CoverResolution, error) {
		return escalate.CoverResolution{
			Evaluation: model.ImageEvaluation{Valid: false, Reason: reason},
			Source:     escalate.SourceFast,
		}, nil
	}
}

func failing(err error) func() (escalate.CoverResolution, error) {
	return func() (escalate.CoverResolution, error) {
		return escalate.CoverResolution{}, err
	}
}

func TestResolveCover_FirstAttemptApproves(t *testing.T) {
	router := &scriptedRouter{results: []func() (escalate.CoverResolution, error){
		approved(escalate.SourceFast),
	}}
	verdict, err := NewResolver(router).ResolveCover(context.Background(), model.ImageRef{})
	require.NoError(t, err)

	assert.True(t, verdict.Approved)
	assert.Empty(t, verdict.Reason)
	assert.Equal(t, 1, router.calls)
	require.Len(t, verdict.Attempts, 1)
	assert.Equal(t, "fast", verdict.Attempts[0].Source)
}

func TestResolveCover_SingleApprovalOverturnsRejections(t *testing.T) {
	router := &scriptedRouter{results: []func() (escalate.CoverResolution, error){
		rejected("looks like a screenshot"),
		rejected("still unsure"),
		approved(escalate.SourcePrecise),
	}}
	verdict, err := NewResolver(router).ResolveCover(context.Background(), model.ImageRef{})
	require.NoError(t, err)

	assert.True(t, verdict.Approved)
	assert.Equal(t, 3, router.calls, "approval must stop the loop")
	assert.Len(t, verdict.Attempts, 3)
	assert.False(t, verdict.Attempts[0].Valid)
	assert.True(t, verdict.Attempts[2].Valid)
}

func TestResolveCover_AllRejectionsKeepLastReason(t *testing.T) {
	router := &scriptedRouter{results: []func() (escalate.CoverResolution, error){
		rejected("reason one"),
		rejected("reason two"),
		rejected("reason three"),
		rejected("final reason"),
	}}
	verdict, err := NewResolver(router).ResolveCover(context.Background(), model.ImageRef{})
	require.NoError(t, err)

	assert.False(t, verdict.Approved)
	assert.Equal(t, "final reason", verdict.Reason)
	assert.Equal(t, 4, router.calls, "default cap is 4 attempts")
}

func TestResolveCover_PolicyErrorRejectsImmediately(t *testing.T) {
	router := &scriptedRouter{results: []func() (escalate.CoverResolution, error){
		rejected("borderline"),
		failing(resilience.NewPolicyError(errors.New("image flagged"), 400)),
	}}
	verdict, err := NewResolver(router).ResolveCover(context.Background(), model.ImageRef{})
	require.NoError(t, err)

	assert.False(t, verdict.Approved)
	assert.Equal(t, "content rejected by provider policy", verdict.Reason)
	assert.Equal(t, 2, router.calls, "fatal errors must not consume remaining attempts")
}

func TestResolveCover_AllTransientFailuresIsNotARejection(t *testing.T) {
	transient := resilience.NewTransientError(errors.New("overloaded"), 529)
	router := &scriptedRouter{results: []func() (escalate.CoverResolution, error){
		failing(transient), failing(transient), failing(transient), failing(transient),
	}}
	verdict, err := NewResolver(router).ResolveCover(context.Background(), model.ImageRef{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhaustedRetries)
	assert.False(t, verdict.Approved)
	assert.Len(t, verdict.Attempts, 4)
}

func TestResolveCover_MixedErrorsAndRejectionsRejects(t *testing.T) {
	transient := resilience.NewTransientError(errors.New("timeout"), 504)
	router := &scriptedRouter{results: []func() (escalate.CoverResolution, error){
		failing(transient),
		rejected("not a vehicle"),
		failing(transient),
		failing(transient),
	}}
	verdict, err := NewResolver(router).ResolveCover(context.Background(), model.ImageRef{})
	require.NoError(t, err)

	assert.False(t, verdict.Approved)
	assert.Equal(t, "not a vehicle", verdict.Reason)
}

func TestResolveCover_RespectsPolicyCap(t *testing.T) {
	router := &scriptedRouter{
		policy: escalate.TierPolicy{MaxAttempts: 2, ConfidenceThreshold: 0.8},
		results: []func() (escalate.CoverResolution, error){
			rejected("one"),
			rejected("two"),
		},
	}
	verdict, err := NewResolver(router).ResolveCover(context.Background(), model.ImageRef{})
	require.NoError(t, err)
	assert.Equal(t, 2, router.calls)
	assert.Equal(t, "two", verdict.Reason)
}

func TestResolveCover_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transient := resilience.NewTransientError(errors.New("canceled"), 0)
	router := &scriptedRouter{results: []func() (escalate.CoverResolution, error){
		failing(transient),
	}}
	_, err := NewResolver(router).ResolveCover(ctx, model.ImageRef{})
	require.Error(t, err)
	assert.Equal(t, 1, router.calls)
}
