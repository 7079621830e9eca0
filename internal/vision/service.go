// Package vision evaluates listing photos with the Anthropic vision
// models: an absolute policy check for cover images and a consistency
// check for gallery images.
package vision

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/carmatch/moderation-cli/internal/cost"
	"github.com/carmatch/moderation-cli/internal/model"
	"github.com/carmatch/moderation-cli/internal/resilience"
	"github.com/carmatch/moderation-cli/pkg/anthropic"
)

// defaultMaxTokens bounds the answer size; verdicts are small JSON objects.
const defaultMaxTokens = 1024

// Config wires model IDs and resilience policy into the service.
type Config struct {
	// FastModel and PreciseModel are the model IDs behind the two tiers.
	FastModel    string
	PreciseModel string

	// MaxTokens caps the response size. Default: 1024.
	MaxTokens int64

	// Retry governs the per-call retry loop. Zero value uses defaults.
	Retry resilience.RetryConfig

	// Breakers holds the per-tier circuit breakers. Required.
	Breakers *resilience.TierBreakers
}

// Service issues vision evaluations through a rate-limited client with
// retry and per-tier circuit breaking.
type Service struct {
	client anthropic.Client
	cfg    Config
}

// NewService builds a vision service. Breakers are created on demand
// when cfg.Breakers is nil.
func NewService(client anthropic.Client, cfg Config) *Service {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Breakers == nil {
		cfg.Breakers = resilience.NewTierBreakers(resilience.CircuitBreakerConfig{
			ShouldTrip: resilience.IsTransient,
		})
	}
	return &Service{client: client, cfg: cfg}
}

// ModelFor returns the model ID behind a tier.
func (s *Service) ModelFor(tier model.Tier) string {
	if tier == model.TierPrecise {
		return s.cfg.PreciseModel
	}
	return s.cfg.FastModel
}

// EvaluateCover evaluates the cover image at the given tier. Tolerant
// mode relaxes the prompt for escalated retries of borderline photos.
func (s *Service) EvaluateCover(ctx context.Context, img model.ImageRef, tier model.Tier, tolerant bool) (model.ImageEvaluation, error) {
	prompt := coverPrompt
	if tolerant {
		prompt += tolerantAddendum
	}

	parts := []anthropic.ContentPart{
		anthropic.NewImagePart(img.MediaType, img.Data),
		anthropic.NewTextPart(prompt),
	}

	retry := s.cfg.Retry
	retry.OnRetry = resilience.RetryLogger("vision", "evaluate_cover")

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (model.ImageEvaluation, error) {
		resp, err := s.call(ctx, tier, parts, "cover")
		if err != nil {
			return model.ImageEvaluation{}, err
		}
		return parseCoverAnswer(resp.FirstText(), tier)
	})
}

// EvaluateGallery checks images against the cover identity in a single
// multi-image call. Callers chunk large galleries and fan out.
func (s *Service) EvaluateGallery(ctx context.Context, identity model.CanonicalIdentity, images []model.ImageRef, tier model.Tier) ([]model.ImageEvaluation, error) {
	if len(images) == 0 {
		return nil, nil
	}

	parts := make([]anthropic.ContentPart, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, anthropic.NewImagePart(img.MediaType, img.Data))
	}
	parts = append(parts, anthropic.NewTextPart(fmt.Sprintf(galleryPrompt, describeIdentity(identity))))

	retry := s.cfg.Retry
	retry.OnRetry = resilience.RetryLogger("vision", "evaluate_gallery")

	indexBase := images[0].Index
	return resilience.DoVal(ctx, retry, func(ctx context.Context) ([]model.ImageEvaluation, error) {
		resp, err := s.call(ctx, tier, parts, "gallery")
		if err != nil {
			return nil, err
		}
		evals, err := parseGalleryAnswer(resp.FirstText(), len(images), indexBase, tier)
		if err != nil {
			return nil, err
		}
		if len(evals) != len(images) {
			return nil, resilience.NewTransientError(
				eris.New(fmt.Sprintf("vision: expected %d gallery verdicts, got %d", len(images), len(evals))), 0)
		}
		return evals, nil
	})
}

// ExtractAttributes interprets free-form listing text into structured
// attributes at the given tier, with the model's own confidence.
func (s *Service) ExtractAttributes(ctx context.Context, text string, tier model.Tier) (model.ExtractedAttributes, float64, error) {
	parts := []anthropic.ContentPart{
		anthropic.NewTextPart(fmt.Sprintf(extractPrompt, text)),
	}

	retry := s.cfg.Retry
	retry.OnRetry = resilience.RetryLogger("vision", "extract_attributes")

	type extracted struct {
		attrs model.ExtractedAttributes
		conf  float64
	}
	out, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (extracted, error) {
		resp, err := s.call(ctx, tier, parts, "extract")
		if err != nil {
			return extracted{}, err
		}
		attrs, conf, err := parseExtractAnswer(resp.FirstText())
		if err != nil {
			return extracted{}, err
		}
		return extracted{attrs: attrs, conf: conf}, nil
	})
	if err != nil {
		return model.ExtractedAttributes{}, 0, err
	}
	return out.attrs, out.conf, nil
}

func (s *Service) call(ctx context.Context, tier model.Tier, parts []anthropic.ContentPart, phase string) (*anthropic.MessageResponse, error) {
	modelID := s.ModelFor(tier)
	temperature := 0.0
	req := anthropic.MessageRequest{
		Model:       modelID,
		MaxTokens:   s.cfg.MaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Parts: parts}},
		Temperature: &temperature,
	}

	breaker := s.cfg.Breakers.Get(tier.String())
	resp, err := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := s.client.CreateMessage(ctx, req)
		if err != nil {
			return nil, classifyProviderError(err)
		}
		return resp, nil
	})
	if err != nil {
		zap.L().Warn("vision call failed",
			zap.String("model", modelID),
			zap.String("phase", phase),
			zap.String("class", resilience.Classify(err).String()),
			zap.Error(err),
		)
		return nil, err
	}

	resp.Usage.LogCost(modelID, "moderation:"+phase)
	cost.Add(ctx, resp.Usage.EstimateCost(modelID))
	return resp, nil
}

// classifyProviderError maps API errors to retryable vs permanent.
// Errors without a status code (network faults, cancellations) pass
// through for the transport-level heuristics in IsTransient.
func classifyProviderError(err error) error {
	status, ok := anthropic.StatusCode(err)
	if !ok {
		return err
	}
	if resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return resilience.NewPolicyError(err, status)
}

// describeIdentity renders the canonical identity for the gallery prompt.
func describeIdentity(id model.CanonicalIdentity) string {
	var b strings.Builder
	write := func(label, value string) {
		if value == "" {
			value = "unknown"
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\n")
	}
	write("Brand", id.Brand.Or(""))
	write("Model", id.Model.Or(""))
	write("Trim", id.Trim.Or(""))
	year := ""
	if y, ok := id.Year.Value(); ok {
		year = strconv.Itoa(y)
	}
	write("Year", year)
	write("Body type", id.VehicleType.Or(""))
	return strings.TrimRight(b.String(), "\n")
}
