package escalate

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/carmatch/moderation-cli/internal/model"
)

// Evaluator is the slice of the vision service the router drives.
// Satisfied by *vision.Service.
type Evaluator interface {
	EvaluateCover(ctx context.Context, img model.ImageRef, tier model.Tier, tolerant bool) (model.ImageEvaluation, error)
	EvaluateGallery(ctx context.Context, identity model.CanonicalIdentity, images []model.ImageRef, tier model.Tier) ([]model.ImageEvaluation, error)
	ExtractAttributes(ctx context.Context, text string, tier model.Tier) (model.ExtractedAttributes, float64, error)
}

// Source names the path that produced a resolution, cheapest first.
type Source int

const (
	SourceLocal Source = iota
	SourceCache
	SourceFast
	SourcePrecise
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceCache:
		return "cache"
	case SourceFast:
		return "fast"
	case SourcePrecise:
		return "precise"
	default:
		return "unknown"
	}
}

// sourceFor maps a tier back to its resolution source.
func sourceFor(tier model.Tier) Source {
	if tier == model.TierPrecise {
		return SourcePrecise
	}
	return SourceFast
}

// defaultCacheTTL bounds how long identical requests reuse a verdict.
const defaultCacheTTL = 24 * time.Hour

// Router resolves evaluation requests along the cheapest adequate path.
// Every path is capable of a structurally valid answer; the ordering
// only trades confidence against cost.
type Router struct {
	vision Evaluator
	cache  CacheStore
	policy TierPolicy
	ttl    time.Duration
}

// NewRouter builds a router. cache may be nil (every lookup misses).
func NewRouter(vs Evaluator, cache CacheStore, policy TierPolicy, ttl time.Duration) *Router {
	if policy.MaxAttempts <= 0 {
		policy = DefaultTierPolicy()
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Router{vision: vs, cache: cache, policy: policy, ttl: ttl}
}

// Policy exposes the tier policy to the consensus loop.
func (r *Router) Policy() TierPolicy { return r.policy }

// Interpretation is the result of resolving listing text to attributes.
type Interpretation struct {
	Attributes model.ExtractedAttributes
	Source     Source
}

// Interpret resolves free-text listing attributes: local keyword parse,
// then cache, then the fast tier, escalating to the precise tier when
// the fast answer's confidence is below the policy threshold.
func (r *Router) Interpret(ctx context.Context, text string) (Interpretation, error) {
	if attrs, ok := ParseLocal(text); ok {
		return Interpretation{Attributes: attrs, Source: SourceLocal}, nil
	}

	key := cacheKey("interpret", text, nil)
	if payload, ok := cacheGet(ctx, r.cache, key); ok {
		var attrs model.ExtractedAttributes
		if err := json.Unmarshal(payload, &attrs); err == nil {
			return Interpretation{Attributes: attrs, Source: SourceCache}, nil
		}
		zap.L().Warn("discarding undecodable cached interpretation", zap.String("key", key))
	}

	attrs, confidence, err := r.vision.ExtractAttributes(ctx, text, model.TierFast)
	source := SourceFast
	if err == nil && confidence < r.policy.ConfidenceThreshold {
		zap.L().Debug("escalating interpretation to precise tier",
			zap.Float64("fast_confidence", confidence),
			zap.Float64("threshold", r.policy.ConfidenceThreshold),
		)
		attrs, _, err = r.vision.ExtractAttributes(ctx, text, model.TierPrecise)
		source = SourcePrecise
	}
	if err != nil {
		return Interpretation{}, err
	}

	if payload, merr := json.Marshal(attrs); merr == nil {
		cachePut(ctx, r.cache, key, payload, r.ttl)
	}
	return Interpretation{Attributes: attrs, Source: source}, nil
}

// CoverResolution is a cover verdict plus the path that produced it.
type CoverResolution struct {
	Evaluation model.ImageEvaluation
	Source     Source
}

// EvaluateCover resolves a cover verdict for one consensus attempt.
//
// Attempt 1 takes the cost-minimizing path: cached verdict, then the
// fast tier, escalating to the precise tier on low confidence. Later
// attempts exist because earlier ones rejected, so they skip the cache,
// go straight to the policy's tier for that attempt index, and run in
// tolerant mode; their results are not cached.
func (r *Router) EvaluateCover(ctx context.Context, img model.ImageRef, attempt int) (CoverResolution, error) {
	if attempt > 1 {
		tier := r.policy.TierFor(attempt)
		eval, err := r.vision.EvaluateCover(ctx, img, tier, true)
		if err != nil {
			return CoverResolution{}, err
		}
		return CoverResolution{Evaluation: eval, Source: sourceFor(tier)}, nil
	}

	key := cacheKey("cover", "", []model.ImageRef{img})
	if payload, ok := cacheGet(ctx, r.cache, key); ok {
		var eval model.ImageEvaluation
		if err := json.Unmarshal(payload, &eval); err == nil {
			return CoverResolution{Evaluation: eval, Source: SourceCache}, nil
		}
		zap.L().Warn("discarding undecodable cached cover verdict", zap.String("key", key))
	}

	eval, err := r.vision.EvaluateCover(ctx, img, model.TierFast, false)
	source := SourceFast
	if err == nil && eval.Confidence < r.policy.ConfidenceThreshold {
		zap.L().Debug("escalating cover evaluation to precise tier",
			zap.Float64("fast_confidence", eval.Confidence),
			zap.Float64("threshold", r.policy.ConfidenceThreshold),
		)
		eval, err = r.vision.EvaluateCover(ctx, img, model.TierPrecise, false)
		source = SourcePrecise
	}
	if err != nil {
		return CoverResolution{}, err
	}

	if payload, merr := json.Marshal(eval); merr == nil {
		cachePut(ctx, r.cache, key, payload, r.ttl)
	}
	return CoverResolution{Evaluation: eval, Source: source}, nil
}

// EvaluateGallery checks gallery images against the cover identity.
// Verdicts are relative to one submission's cover, so they are never
// cached or escalated; the fast tier always answers.
func (r *Router) EvaluateGallery(ctx context.Context, identity model.CanonicalIdentity, images []model.ImageRef) ([]model.ImageEvaluation, error) {
	return r.vision.EvaluateGallery(ctx, identity, images, model.TierFast)
}
