// Package moderation orchestrates a full moderation run: cover
// consensus, gallery audit, attribute reconciliation, duplicate
// detection, and the terminal decision. Provider failures never approve;
// they land in manual review.
package moderation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/carmatch/moderation-cli/internal/consensus"
	"github.com/carmatch/moderation-cli/internal/cost"
	"github.com/carmatch/moderation-cli/internal/escalate"
	"github.com/carmatch/moderation-cli/internal/fingerprint"
	"github.com/carmatch/moderation-cli/internal/model"
	"github.com/carmatch/moderation-cli/internal/reconcile"
)

// CoverResolver runs the consensus loop for the cover image.
// Satisfied by *consensus.Resolver.
type CoverResolver interface {
	ResolveCover(ctx context.Context, cover model.ImageRef) (consensus.CoverVerdict, error)
}

// GalleryRouter is the slice of the escalation router the pipeline
// drives directly. Satisfied by *escalate.Router.
type GalleryRouter interface {
	Interpret(ctx context.Context, text string) (escalate.Interpretation, error)
	EvaluateGallery(ctx context.Context, identity model.CanonicalIdentity, images []model.ImageRef) ([]model.ImageEvaluation, error)
}

// DecisionStore persists terminal decisions.
type DecisionStore interface {
	PersistDecision(ctx context.Context, decision model.ModerationDecision) error
}

// Options tunes the per-run behavior of the pipeline.
type Options struct {
	// GalleryLimit caps how many gallery images are audited. Default 5.
	GalleryLimit int
	// GalleryChunkSize is how many images share one provider call.
	// Default 4.
	GalleryChunkSize int
	// GalleryConcurrency bounds concurrent gallery calls. Default 2.
	GalleryConcurrency int
}

func (o *Options) applyDefaults() {
	if o.GalleryLimit <= 0 {
		o.GalleryLimit = 5
	}
	if o.GalleryChunkSize <= 0 {
		o.GalleryChunkSize = 4
	}
	if o.GalleryConcurrency <= 0 {
		o.GalleryConcurrency = 2
	}
}

// Pipeline moderates listing submissions end to end.
type Pipeline struct {
	resolver     CoverResolver
	router       GalleryRouter
	fingerprints *fingerprint.Engine
	decisions    DecisionStore
	fraud        FraudService
	notifier     NotificationService
	opts         Options
}

// NewPipeline wires the pipeline. fraud and notifier may be nil; the
// logging defaults are used.
func NewPipeline(resolver CoverResolver, router GalleryRouter, fingerprints *fingerprint.Engine, decisions DecisionStore, fraud FraudService, notifier NotificationService, opts Options) *Pipeline {
	opts.applyDefaults()
	if fraud == nil {
		fraud = LogFraudService{}
	}
	if notifier == nil {
		notifier = LogNotificationService{}
	}
	return &Pipeline{
		resolver:     resolver,
		router:       router,
		fingerprints: fingerprints,
		decisions:    decisions,
		fraud:        fraud,
		notifier:     notifier,
		opts:         opts,
	}
}

// Moderate runs one submission to a terminal decision. The returned
// decision is always persisted; an error means the submission itself was
// unusable, not that moderation failed.
func (p *Pipeline) Moderate(ctx context.Context, sub model.ListingSubmission) (model.ModerationDecision, error) {
	if sub.ListingID == "" || sub.SubmitterID == "" {
		return model.ModerationDecision{}, eris.New("moderation: submission missing listing or submitter id")
	}

	ctx, meter := cost.WithMeter(ctx)
	base := model.ModerationDecision{
		ListingID:   sub.ListingID,
		SubmitterID: sub.SubmitterID,
	}

	if len(sub.Images) == 0 {
		base.Status = model.StatusRejected
		base.Reason = "submission has no photos"
		return p.finish(ctx, meter, base), nil
	}

	declared := p.augmentDeclared(ctx, sub)

	verdict, err := p.resolver.ResolveCover(ctx, sub.Cover())
	base.Attempts = verdict.Attempts
	if err != nil {
		// No verdict exists. Approving would trust a coin flip and
		// rejecting would punish the seller for provider downtime.
		zap.L().Warn("cover consensus failed, holding for manual review",
			zap.String("listing_id", sub.ListingID),
			zap.Bool("exhausted", eris.Is(err, consensus.ErrExhaustedRetries)),
			zap.Error(err),
		)
		base.Status = model.StatusManualReview
		base.Reason = "moderation could not reach a verdict"
		return p.finish(ctx, meter, base), nil
	}

	if !verdict.Approved {
		base.Status = model.StatusRejected
		base.Reason = verdict.Reason
		return p.finish(ctx, meter, base), nil
	}

	identity := model.IdentityFrom(verdict.Evaluation)
	gallery := sub.Gallery(p.opts.GalleryLimit)

	galleryEvals, err := p.evaluateGallery(ctx, identity, gallery)
	if err != nil {
		zap.L().Warn("gallery evaluation failed, holding for manual review",
			zap.String("listing_id", sub.ListingID),
			zap.Error(err),
		)
		base.Status = model.StatusManualReview
		base.Reason = "gallery audit could not complete"
		return p.finish(ctx, meter, base), nil
	}

	res := reconcile.Reconcile(verdict.Evaluation, galleryEvals, declared)
	base.Identity = res.Identity
	base.Reconciled = res.Attributes
	base.CorrectedFields = res.Attributes.Corrections()
	base.FinalImages = res.FinalImageIndices
	base.DroppedImages = res.DroppedImageIndices

	if res.MixedVehicles {
		base.Status = model.StatusRejected
		base.Reason = "gallery photos show a different vehicle than the cover"
		return p.finish(ctx, meter, base), nil
	}

	match, err := p.fingerprints.Check(ctx, sub.SubmitterID, fingerprint.FromReconciled(res.Attributes))
	if err != nil {
		zap.L().Warn("duplicate check failed, holding for manual review",
			zap.String("listing_id", sub.ListingID),
			zap.Error(err),
		)
		base.Status = model.StatusManualReview
		base.Reason = "duplicate check could not complete"
		return p.finish(ctx, meter, base), nil
	}
	base.Fingerprint = match.Hash
	if match.IsDuplicate {
		return p.rejectDuplicate(ctx, meter, base, match.MatchedListingID), nil
	}

	if err := p.fingerprints.Persist(ctx, sub.SubmitterID, sub.ListingID, match.Hash); err != nil {
		if eris.Is(err, fingerprint.ErrFingerprintExists) {
			// A concurrent submission won the race; this one is the dup.
			return p.rejectDuplicate(ctx, meter, base, ""), nil
		}
		zap.L().Warn("fingerprint persistence failed, holding for manual review",
			zap.String("listing_id", sub.ListingID),
			zap.Error(err),
		)
		base.Status = model.StatusManualReview
		base.Reason = "duplicate check could not complete"
		return p.finish(ctx, meter, base), nil
	}

	base.Status = model.StatusApproved
	return p.finish(ctx, meter, base), nil
}

// augmentDeclared fills declared attribute gaps from the seller's own
// prose. The text is the seller's words, so filled values keep
// user-provided standing in the merge.
func (p *Pipeline) augmentDeclared(ctx context.Context, sub model.ListingSubmission) model.DeclaredAttributes {
	declared := sub.Declared
	if declared.Brand.Present() && declared.Model.Present() {
		return declared
	}
	text := sub.FreeText()
	if text == "" {
		return declared
	}

	interp, err := p.router.Interpret(ctx, text)
	if err != nil {
		zap.L().Warn("listing text interpretation failed",
			zap.String("listing_id", sub.ListingID),
			zap.Error(err),
		)
		return declared
	}
	zap.L().Debug("interpreted listing text",
		zap.String("listing_id", sub.ListingID),
		zap.String("source", interp.Source.String()),
	)

	a := interp.Attributes
	fillString(&declared.Brand, a.Brand)
	fillString(&declared.Model, a.Model)
	fillString(&declared.Trim, a.Trim)
	if !declared.Year.Present() && a.Year.Present() {
		declared.Year = a.Year
	}
	fillString(&declared.Color, a.Color)
	fillString(&declared.VehicleType, a.VehicleType)
	fillString(&declared.Transmission, a.Transmission)
	fillString(&declared.Fuel, a.Fuel)
	fillString(&declared.Engine, a.Engine)
	return declared
}

func fillString(dst *model.Optional[string], src model.Optional[string]) {
	if !dst.Present() && src.Present() {
		*dst = src
	}
}

// evaluateGallery audits gallery images in chunks of bounded concurrent
// provider calls. Any chunk failing fails the audit; partial verdicts
// must not silently approve unchecked photos.
func (p *Pipeline) evaluateGallery(ctx context.Context, identity model.CanonicalIdentity, images []model.ImageRef) ([]model.ImageEvaluation, error) {
	if len(images) == 0 {
		return nil, nil
	}

	var (
		mu    sync.Mutex
		evals []model.ImageEvaluation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.GalleryConcurrency)

	for start := 0; start < len(images); start += p.opts.GalleryChunkSize {
		end := start + p.opts.GalleryChunkSize
		if end > len(images) {
			end = len(images)
		}
		chunk := images[start:end]
		g.Go(func() error {
			chunkEvals, err := p.router.EvaluateGallery(gctx, identity, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			evals = append(evals, chunkEvals...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "moderation: gallery audit")
	}

	sort.Slice(evals, func(i, j int) bool { return evals[i].Index < evals[j].Index })
	return evals, nil
}

const duplicateReason = "duplicate of a recent listing by the same seller"

// rejectDuplicate builds the duplicate rejection and charges exactly one
// fraud strike.
func (p *Pipeline) rejectDuplicate(ctx context.Context, meter *cost.Meter, base model.ModerationDecision, matchedListingID string) model.ModerationDecision {
	base.Status = model.StatusRejected
	base.Reason = duplicateReason
	base.DuplicateOfID = matchedListingID

	if err := p.fraud.IncrementStrikes(ctx, base.SubmitterID, base.Reason); err != nil {
		zap.L().Error("fraud strike failed",
			zap.String("submitter_id", base.SubmitterID),
			zap.Error(err),
		)
	}
	return p.finish(ctx, meter, base)
}

// finish stamps, persists, and notifies. Persistence uses a detached
// context so a cancelled run still records its manual-review hold.
func (p *Pipeline) finish(ctx context.Context, meter *cost.Meter, decision model.ModerationDecision) model.ModerationDecision {
	decision.DecidedAt = time.Now().UTC()
	decision.EstimatedCost = meter.Total()

	persistCtx := context.WithoutCancel(ctx)
	if p.decisions != nil {
		if err := p.decisions.PersistDecision(persistCtx, decision); err != nil {
			zap.L().Error("decision persistence failed",
				zap.String("listing_id", decision.ListingID),
				zap.Error(err),
			)
		}
	}

	if decision.Status == model.StatusRejected {
		if err := p.notifier.NotifyRejection(persistCtx, decision); err != nil {
			zap.L().Error("rejection notification failed",
				zap.String("listing_id", decision.ListingID),
				zap.Error(err),
			)
		}
	}

	zap.L().Info("moderation decision",
		zap.String("listing_id", decision.ListingID),
		zap.String("status", string(decision.Status)),
		zap.String("reason", decision.Reason),
		zap.Int("dropped_images", len(decision.DroppedImages)),
		zap.Float64("estimated_cost_usd", decision.EstimatedCost),
	)
	return decision
}
