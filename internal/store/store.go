// Package store persists moderation state: vehicle fingerprints,
// decisions, and the escalation response cache.
package store

import (
	"context"
	"time"

	"github.com/carmatch/moderation-cli/internal/model"
)

// FingerprintFilter specifies criteria for listing fingerprint records.
type FingerprintFilter struct {
	SubmitterID string `json:"submitter_id,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for the moderation pipeline.
type Store interface {
	// Fingerprints
	FindRecentFingerprint(ctx context.Context, submitterID, hash string, window time.Duration) (*model.FingerprintRecord, error)
	PersistFingerprint(ctx context.Context, rec model.FingerprintRecord) error
	ListFingerprints(ctx context.Context, filter FingerprintFilter) ([]model.FingerprintRecord, error)
	DeleteExpiredFingerprints(ctx context.Context, olderThan time.Duration) (int, error)

	// Decisions
	PersistDecision(ctx context.Context, decision model.ModerationDecision) error
	GetDecision(ctx context.Context, listingID string) (*model.ModerationDecision, error)

	// Response cache
	GetCachedResponse(ctx context.Context, key string) ([]byte, bool, error)
	SetCachedResponse(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	DeleteExpiredResponses(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
