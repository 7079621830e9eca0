package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/carmatch/moderation-cli/internal/db"
	"github.com/carmatch/moderation-cli/internal/fingerprint"
	"github.com/carmatch/moderation-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"find_fingerprint":    `SELECT id, submitter_id, listing_id, canonical_hash, created_at FROM fingerprints WHERE submitter_id = $1 AND canonical_hash = $2 AND created_at > $3 ORDER BY created_at DESC LIMIT 1`,
	"insert_fingerprint":  `INSERT INTO fingerprints (id, submitter_id, listing_id, canonical_hash, created_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (submitter_id, canonical_hash) DO NOTHING`,
	"insert_decision":     `INSERT INTO decisions (id, listing_id, submitter_id, status, reason, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"get_decision":        `SELECT payload FROM decisions WHERE listing_id = $1 ORDER BY created_at DESC LIMIT 1`,
	"get_cached_response": `SELECT payload FROM response_cache WHERE cache_key = $1 AND expires_at > now() LIMIT 1`,
	"set_cached_response": `INSERT INTO response_cache (cache_key, payload, cached_at, expires_at) VALUES ($1, $2, $3, $4) ON CONFLICT (cache_key) DO UPDATE SET payload = EXCLUDED.payload, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS fingerprints (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	submitter_id   TEXT NOT NULL,
	listing_id     TEXT NOT NULL,
	canonical_hash TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (submitter_id, canonical_hash)
);

CREATE INDEX IF NOT EXISTS idx_fingerprints_submitter ON fingerprints(submitter_id);
CREATE INDEX IF NOT EXISTS idx_fingerprints_created_at ON fingerprints(created_at);

CREATE TABLE IF NOT EXISTS decisions (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	listing_id   TEXT NOT NULL,
	submitter_id TEXT NOT NULL,
	status       TEXT NOT NULL,
	reason       TEXT,
	payload      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_decisions_listing ON decisions(listing_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_decisions_submitter ON decisions(submitter_id);
CREATE INDEX IF NOT EXISTS idx_decisions_status ON decisions(status);

CREATE TABLE IF NOT EXISTS response_cache (
	cache_key  TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_response_cache_expires_at ON response_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) FindRecentFingerprint(ctx context.Context, submitterID, hash string, window time.Duration) (*model.FingerprintRecord, error) {
	cutoff := time.Now().UTC().Add(-window)

	var rec model.FingerprintRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, submitter_id, listing_id, canonical_hash, created_at FROM fingerprints WHERE submitter_id = $1 AND canonical_hash = $2 AND created_at > $3 ORDER BY created_at DESC LIMIT 1`,
		submitterID, hash, cutoff,
	).Scan(&rec.ID, &rec.SubmitterID, &rec.ListingID, &rec.Hash, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: find fingerprint")
	}
	return &rec, nil
}

func (s *PostgresStore) PersistFingerprint(ctx context.Context, rec model.FingerprintRecord) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO fingerprints (id, submitter_id, listing_id, canonical_hash, created_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (submitter_id, canonical_hash) DO NOTHING`,
		rec.ID, rec.SubmitterID, rec.ListingID, rec.Hash, rec.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert fingerprint")
	}
	if tag.RowsAffected() == 0 {
		return fingerprint.ErrFingerprintExists
	}
	return nil
}

func (s *PostgresStore) ListFingerprints(ctx context.Context, filter FingerprintFilter) ([]model.FingerprintRecord, error) {
	query := `SELECT id, submitter_id, listing_id, canonical_hash, created_at FROM fingerprints WHERE true`
	args := []any{}
	argN := 1

	if filter.SubmitterID != "" {
		query += ` AND submitter_id = $1`
		args = append(args, filter.SubmitterID)
		argN++
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT $` + itoa(argN)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list fingerprints")
	}
	defer rows.Close()

	var recs []model.FingerprintRecord
	for rows.Next() {
		var rec model.FingerprintRecord
		if err := rows.Scan(&rec.ID, &rec.SubmitterID, &rec.ListingID, &rec.Hash, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fingerprint")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: iterate fingerprints")
}

func (s *PostgresStore) DeleteExpiredFingerprints(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM fingerprints WHERE created_at <= $1`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired fingerprints")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) PersistDecision(ctx context.Context, decision model.ModerationDecision) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal decision")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO decisions (id, listing_id, submitter_id, status, reason, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		newID(), decision.ListingID, decision.SubmitterID, string(decision.Status), decision.Reason, payload, decision.DecidedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert decision")
}

func (s *PostgresStore) GetDecision(ctx context.Context, listingID string) (*model.ModerationDecision, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM decisions WHERE listing_id = $1 ORDER BY created_at DESC LIMIT 1`,
		listingID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get decision %s", listingID)
	}

	var decision model.ModerationDecision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal decision")
	}
	return &decision, nil
}

func (s *PostgresStore) GetCachedResponse(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM response_cache WHERE cache_key = $1 AND expires_at > now() LIMIT 1`,
		key,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "postgres: get cached response")
	}
	return payload, true, nil
}

func (s *PostgresStore) SetCachedResponse(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO response_cache (cache_key, payload, cached_at, expires_at) VALUES ($1, $2, $3, $4) ON CONFLICT (cache_key) DO UPDATE SET payload = EXCLUDED.payload, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
		key, payload, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached response")
}

func (s *PostgresStore) DeleteExpiredResponses(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM response_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired responses")
	}
	return int(tag.RowsAffected()), nil
}
