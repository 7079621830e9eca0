package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/carmatch/moderation-cli/internal/consensus"
	"github.com/carmatch/moderation-cli/internal/escalate"
	"github.com/carmatch/moderation-cli/internal/fingerprint"
	"github.com/carmatch/moderation-cli/internal/moderation"
	"github.com/carmatch/moderation-cli/internal/resilience"
	"github.com/carmatch/moderation-cli/internal/store"
	"github.com/carmatch/moderation-cli/internal/vision"
	anthropicpkg "github.com/carmatch/moderation-cli/pkg/anthropic"
)

// moderationEnv holds the initialized store and pipeline needed by the
// moderate/serve commands.
type moderationEnv struct {
	Store    store.Store
	Pipeline *moderation.Pipeline
}

// Close releases resources held by the environment.
func (me *moderationEnv) Close() {
	if me.Store != nil {
		_ = me.Store.Close()
	}
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(ctx, cfg.Store.SQLitePath)
	case "postgres", "":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store: database_url is required for the postgres driver")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Store.Driver)
	}
}

// initModeration sets up the store, the Anthropic client, and the full
// moderation pipeline. Callers should defer env.Close().
func initModeration(ctx context.Context) (*moderationEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic: api key is required (CARMATCH_ANTHROPIC_KEY)")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client := anthropicpkg.NewRateLimited(
		anthropicpkg.NewClient(cfg.Anthropic.Key),
		cfg.Anthropic.RPS,
		cfg.Anthropic.Burst,
	)

	breakerCfg := resilience.FromCircuitConfig(cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeoutSec)
	breakerCfg.HalfOpenMaxProbes = cfg.Breaker.HalfOpenMax
	// Policy refusals are answers, not outages; they must not trip tiers.
	breakerCfg.ShouldTrip = resilience.IsTransient

	visionSvc := vision.NewService(client, vision.Config{
		FastModel:    cfg.Anthropic.FastModel,
		PreciseModel: cfg.Anthropic.PreciseModel,
		MaxTokens:    cfg.Anthropic.MaxTokens,
		Retry: resilience.FromRetryConfig(
			cfg.Retry.MaxRetries,
			cfg.Retry.InitialDelaySec*1000,
			cfg.Retry.MaxDelaySec*1000,
			cfg.Retry.Multiplier,
			-1,
		),
		Breakers: resilience.NewTierBreakers(breakerCfg),
	})

	policy := escalate.DefaultTierPolicy()
	if cfg.Moderation.PolicyPath != "" {
		policy, err = escalate.LoadTierPolicy(cfg.Moderation.PolicyPath)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load tier policy")
		}
		zap.L().Info("tier policy loaded",
			zap.String("path", cfg.Moderation.PolicyPath),
			zap.Int("max_attempts", policy.MaxAttempts),
		)
	}

	cacheTTL := time.Duration(cfg.Moderation.CacheTTLHours) * time.Hour
	router := escalate.NewRouter(visionSvc, st, policy, cacheTTL)
	resolver := consensus.NewResolver(router)

	window := time.Duration(cfg.Moderation.FingerprintWindowDays) * 24 * time.Hour
	engine := fingerprint.NewEngine(st, window)

	pipe := moderation.NewPipeline(resolver, router, engine, st, nil, nil, moderation.Options{
		GalleryLimit:       cfg.Moderation.GalleryLimit,
		GalleryChunkSize:   cfg.Moderation.GalleryChunkSize,
		GalleryConcurrency: cfg.Moderation.GalleryConcurrency,
	})

	return &moderationEnv{Store: st, Pipeline: pipe}, nil
}
