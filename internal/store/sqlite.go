package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/carmatch/moderation-cli/internal/fingerprint"
	"github.com/carmatch/moderation-cli/internal/model"
)

// SQLiteStore implements Store on a local SQLite file. It is used for
// one-shot CLI runs and development where a postgres instance is not
// available.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and creates if necessary) a SQLite database at path.
func NewSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", pragma)
		}
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: conn}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS fingerprints (
	id             TEXT PRIMARY KEY,
	submitter_id   TEXT NOT NULL,
	listing_id     TEXT NOT NULL,
	canonical_hash TEXT NOT NULL,
	created_at     DATETIME NOT NULL,
	UNIQUE (submitter_id, canonical_hash)
);

CREATE INDEX IF NOT EXISTS idx_fingerprints_submitter ON fingerprints(submitter_id);
CREATE INDEX IF NOT EXISTS idx_fingerprints_created_at ON fingerprints(created_at);

CREATE TABLE IF NOT EXISTS decisions (
	id           TEXT PRIMARY KEY,
	listing_id   TEXT NOT NULL,
	submitter_id TEXT NOT NULL,
	status       TEXT NOT NULL,
	reason       TEXT,
	payload      TEXT NOT NULL,
	created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_listing ON decisions(listing_id, created_at DESC);

CREATE TABLE IF NOT EXISTS response_cache (
	cache_key  TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	cached_at  DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_response_cache_expires_at ON response_cache(expires_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindRecentFingerprint(ctx context.Context, submitterID, hash string, window time.Duration) (*model.FingerprintRecord, error) {
	cutoff := time.Now().UTC().Add(-window)

	var rec model.FingerprintRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, submitter_id, listing_id, canonical_hash, created_at FROM fingerprints WHERE submitter_id = ? AND canonical_hash = ? AND created_at > ? ORDER BY created_at DESC LIMIT 1`,
		submitterID, hash, cutoff,
	).Scan(&rec.ID, &rec.SubmitterID, &rec.ListingID, &rec.Hash, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: find fingerprint")
	}
	return &rec, nil
}

func (s *SQLiteStore) PersistFingerprint(ctx context.Context, rec model.FingerprintRecord) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO fingerprints (id, submitter_id, listing_id, canonical_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.SubmitterID, rec.ListingID, rec.Hash, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert fingerprint")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if affected == 0 {
		return fingerprint.ErrFingerprintExists
	}
	return nil
}

func (s *SQLiteStore) ListFingerprints(ctx context.Context, filter FingerprintFilter) ([]model.FingerprintRecord, error) {
	query := `SELECT id, submitter_id, listing_id, canonical_hash, created_at FROM fingerprints WHERE 1=1`
	args := []any{}
	if filter.SubmitterID != "" {
		query += ` AND submitter_id = ?`
		args = append(args, filter.SubmitterID)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list fingerprints")
	}
	defer rows.Close()

	var recs []model.FingerprintRecord
	for rows.Next() {
		var rec model.FingerprintRecord
		if err := rows.Scan(&rec.ID, &rec.SubmitterID, &rec.ListingID, &rec.Hash, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fingerprint")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: iterate fingerprints")
}

func (s *SQLiteStore) DeleteExpiredFingerprints(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `DELETE FROM fingerprints WHERE created_at <= ?`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired fingerprints")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(affected), nil
}

func (s *SQLiteStore) PersistDecision(ctx context.Context, decision model.ModerationDecision) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal decision")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, listing_id, submitter_id, status, reason, payload, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		newID(), decision.ListingID, decision.SubmitterID, string(decision.Status), decision.Reason, string(payload), decision.DecidedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert decision")
}

func (s *SQLiteStore) GetDecision(ctx context.Context, listingID string) (*model.ModerationDecision, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM decisions WHERE listing_id = ? ORDER BY created_at DESC LIMIT 1`,
		listingID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get decision %s", listingID)
	}

	var decision model.ModerationDecision
	if err := json.Unmarshal([]byte(payload), &decision); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal decision")
	}
	return &decision, nil
}

func (s *SQLiteStore) GetCachedResponse(ctx context.Context, key string) ([]byte, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM response_cache WHERE cache_key = ? AND expires_at > ? LIMIT 1`,
		key, time.Now().UTC(),
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "sqlite: get cached response")
	}
	return []byte(payload), true, nil
}

func (s *SQLiteStore) SetCachedResponse(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO response_cache (cache_key, payload, cached_at, expires_at) VALUES (?, ?, ?, ?) ON CONFLICT (cache_key) DO UPDATE SET payload = excluded.payload, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, string(payload), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached response")
}

func (s *SQLiteStore) DeleteExpiredResponses(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired responses")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(affected), nil
}
