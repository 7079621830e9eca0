package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carmatch/moderation-cli/internal/fingerprint"
	"github.com/carmatch/moderation-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	store, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "moderation.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteFingerprintRoundtrip(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := model.FingerprintRecord{
		ID:          "fp-1",
		SubmitterID: "seller-9",
		ListingID:   "listing-1",
		Hash:        "abc123",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.PersistFingerprint(ctx, rec))

	found, err := store.FindRecentFingerprint(ctx, "seller-9", "abc123", 60*24*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "listing-1", found.ListingID)
	assert.Equal(t, "abc123", found.Hash)

	// Same hash from a different submitter is not a match.
	other, err := store.FindRecentFingerprint(ctx, "seller-2", "abc123", 60*24*time.Hour)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestSQLitePersistFingerprintConflict(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	first := model.FingerprintRecord{
		ID:          "fp-1",
		SubmitterID: "seller-9",
		ListingID:   "listing-1",
		Hash:        "abc123",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.PersistFingerprint(ctx, first))

	dup := first
	dup.ID = "fp-2"
	dup.ListingID = "listing-2"
	err := store.PersistFingerprint(ctx, dup)
	require.ErrorIs(t, err, fingerprint.ErrFingerprintExists)
}

func TestSQLiteFindRecentFingerprintWindow(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	old := model.FingerprintRecord{
		ID:          "fp-old",
		SubmitterID: "seller-9",
		ListingID:   "listing-old",
		Hash:        "abc123",
		CreatedAt:   time.Now().UTC().Add(-90 * 24 * time.Hour),
	}
	require.NoError(t, store.PersistFingerprint(ctx, old))

	found, err := store.FindRecentFingerprint(ctx, "seller-9", "abc123", 60*24*time.Hour)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestSQLiteListAndPruneFingerprints(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	recent := model.FingerprintRecord{
		ID: "fp-1", SubmitterID: "seller-9", ListingID: "listing-1", Hash: "aaa",
		CreatedAt: time.Now().UTC(),
	}
	stale := model.FingerprintRecord{
		ID: "fp-2", SubmitterID: "seller-9", ListingID: "listing-2", Hash: "bbb",
		CreatedAt: time.Now().UTC().Add(-90 * 24 * time.Hour),
	}
	require.NoError(t, store.PersistFingerprint(ctx, recent))
	require.NoError(t, store.PersistFingerprint(ctx, stale))

	recs, err := store.ListFingerprints(ctx, FingerprintFilter{SubmitterID: "seller-9"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "aaa", recs[0].Hash)

	deleted, err := store.DeleteExpiredFingerprints(ctx, 60*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	recs, err = store.ListFingerprints(ctx, FingerprintFilter{SubmitterID: "seller-9"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "aaa", recs[0].Hash)
}

func TestSQLiteDecisionRoundtrip(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	decision := model.ModerationDecision{
		ListingID:   "listing-1",
		SubmitterID: "seller-9",
		Status:      model.StatusRejected,
		Reason:      "cover photo is not a vehicle",
		DecidedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.PersistDecision(ctx, decision))

	found, err := store.GetDecision(ctx, "listing-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, model.StatusRejected, found.Status)
	assert.Equal(t, "cover photo is not a vehicle", found.Reason)

	missing, err := store.GetDecision(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteGetDecisionReturnsLatest(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	first := model.ModerationDecision{
		ListingID: "listing-1", SubmitterID: "seller-9",
		Status: model.StatusManualReview, DecidedAt: time.Now().UTC().Add(-time.Hour),
	}
	second := model.ModerationDecision{
		ListingID: "listing-1", SubmitterID: "seller-9",
		Status: model.StatusApproved, DecidedAt: time.Now().UTC(),
	}
	require.NoError(t, store.PersistDecision(ctx, first))
	require.NoError(t, store.PersistDecision(ctx, second))

	found, err := store.GetDecision(ctx, "listing-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, model.StatusApproved, found.Status)
}

func TestSQLiteResponseCache(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetCachedResponse(ctx, "key-1", []byte(`{"isValid":true}`), time.Hour))

	payload, found, err := store.GetCachedResponse(ctx, "key-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"isValid":true}`, string(payload))

	// Upsert replaces the payload.
	require.NoError(t, store.SetCachedResponse(ctx, "key-1", []byte(`{"isValid":false}`), time.Hour))
	payload, found, err = store.GetCachedResponse(ctx, "key-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"isValid":false}`, string(payload))
}

func TestSQLiteResponseCacheExpiry(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetCachedResponse(ctx, "stale", []byte(`{}`), -time.Minute))

	_, found, err := store.GetCachedResponse(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, found)

	deleted, err := store.DeleteExpiredResponses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}
