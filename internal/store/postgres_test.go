package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carmatch/moderation-cli/internal/fingerprint"
	"github.com/carmatch/moderation-cli/internal/model"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestPostgresPersistFingerprint(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	rec := model.FingerprintRecord{
		ID:          "fp-1",
		SubmitterID: "seller-9",
		ListingID:   "listing-1",
		Hash:        "abc123",
		CreatedAt:   time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO fingerprints`).
		WithArgs(rec.ID, rec.SubmitterID, rec.ListingID, rec.Hash, rec.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.PersistFingerprint(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPersistFingerprintConflict(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	rec := model.FingerprintRecord{
		ID:          "fp-2",
		SubmitterID: "seller-9",
		ListingID:   "listing-2",
		Hash:        "abc123",
		CreatedAt:   time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO fingerprints`).
		WithArgs(rec.ID, rec.SubmitterID, rec.ListingID, rec.Hash, rec.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := store.PersistFingerprint(context.Background(), rec)
	require.ErrorIs(t, err, fingerprint.ErrFingerprintExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindRecentFingerprint(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	created := time.Now().UTC().Add(-24 * time.Hour)
	rows := pgxmock.NewRows([]string{"id", "submitter_id", "listing_id", "canonical_hash", "created_at"}).
		AddRow("fp-1", "seller-9", "listing-1", "abc123", created)

	mock.ExpectQuery(`SELECT id, submitter_id, listing_id, canonical_hash, created_at FROM fingerprints`).
		WithArgs("seller-9", "abc123", pgxmock.AnyArg()).
		WillReturnRows(rows)

	rec, err := store.FindRecentFingerprint(context.Background(), "seller-9", "abc123", 60*24*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "listing-1", rec.ListingID)
	assert.Equal(t, "abc123", rec.Hash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindRecentFingerprintMiss(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, submitter_id, listing_id, canonical_hash, created_at FROM fingerprints`).
		WithArgs("seller-9", "nothere", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "submitter_id", "listing_id", "canonical_hash", "created_at"}))

	rec, err := store.FindRecentFingerprint(context.Background(), "seller-9", "nothere", 60*24*time.Hour)
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListFingerprints(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"id", "submitter_id", "listing_id", "canonical_hash", "created_at"}).
		AddRow("fp-1", "seller-9", "listing-1", "aaa", time.Now().UTC()).
		AddRow("fp-2", "seller-9", "listing-2", "bbb", time.Now().UTC())

	mock.ExpectQuery(`SELECT id, submitter_id, listing_id, canonical_hash, created_at FROM fingerprints`).
		WithArgs("seller-9", 10).
		WillReturnRows(rows)

	recs, err := store.ListFingerprints(context.Background(), FingerprintFilter{SubmitterID: "seller-9", Limit: 10})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "aaa", recs[0].Hash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteExpiredFingerprints(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM fingerprints`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	deleted, err := store.DeleteExpiredFingerprints(context.Background(), 60*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPersistDecision(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	decision := model.ModerationDecision{
		ListingID:   "listing-1",
		SubmitterID: "seller-9",
		Status:      model.StatusRejected,
		Reason:      "cover photo is not a vehicle",
		DecidedAt:   time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO decisions`).
		WithArgs(pgxmock.AnyArg(), decision.ListingID, decision.SubmitterID, string(decision.Status), decision.Reason, pgxmock.AnyArg(), decision.DecidedAt.UTC()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.PersistDecision(context.Background(), decision))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetDecision(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	stored := model.ModerationDecision{
		ListingID:   "listing-1",
		SubmitterID: "seller-9",
		Status:      model.StatusApproved,
		DecidedAt:   time.Now().UTC().Truncate(time.Second),
	}
	payload, err := json.Marshal(stored)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT payload FROM decisions`).
		WithArgs("listing-1").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))

	decision, err := store.GetDecision(context.Background(), "listing-1")
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, model.StatusApproved, decision.Status)
	assert.Equal(t, "seller-9", decision.SubmitterID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetDecisionMiss(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT payload FROM decisions`).
		WithArgs("unknown").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}))

	decision, err := store.GetDecision(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, decision)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresResponseCache(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO response_cache`).
		WithArgs("key-1", []byte(`{"isValid":true}`), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	mock.ExpectQuery(`SELECT payload FROM response_cache`).
		WithArgs("key-1").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow([]byte(`{"isValid":true}`)))

	require.NoError(t, store.SetCachedResponse(context.Background(), "key-1", []byte(`{"isValid":true}`), time.Hour))

	payload, found, err := store.GetCachedResponse(context.Background(), "key-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"isValid":true}`, string(payload))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresResponseCacheMiss(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT payload FROM response_cache`).
		WithArgs("absent").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}))

	payload, found, err := store.GetCachedResponse(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, payload)
	require.NoError(t, mock.ExpectationsWereMet())
}
