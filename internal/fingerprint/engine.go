package fingerprint

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/carmatch/moderation-cli/internal/model"
)

// ErrFingerprintExists is returned by stores when persisting a
// fingerprint that collides with an existing (submitter, hash) pair.
var ErrFingerprintExists = eris.New("fingerprint: record already exists")

// defaultWindow is the rolling duplicate-detection window.
const defaultWindow = 60 * 24 * time.Hour

// Store is the persistence slice the engine needs.
type Store interface {
	FindRecentFingerprint(ctx context.Context, submitterID, hash string, window time.Duration) (*model.FingerprintRecord, error)
	PersistFingerprint(ctx context.Context, rec model.FingerprintRecord) error
}

// Match is the outcome of a duplicate check.
type Match struct {
	IsDuplicate      bool
	Hash             string
	MatchedListingID string
}

// lockStripes bounds the lock table for long-lived serve processes. A
// stripe collision between two submitters only over-serializes them.
const lockStripes = 128

// Engine serializes the duplicate check-and-set per submitter. Two
// concurrent submissions from one submitter must not both read "no
// duplicate" before either writes; a striped per-submitter mutex closes
// the in-process race and the store's unique constraint closes the
// cross-process one.
type Engine struct {
	store  Store
	window time.Duration
	locks  [lockStripes]sync.Mutex
}

// NewEngine builds an engine. window <= 0 uses the 60-day default.
func NewEngine(store Store, window time.Duration) *Engine {
	if window <= 0 {
		window = defaultWindow
	}
	return &Engine{store: store, window: window}
}

func (e *Engine) lockFor(submitterID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(submitterID))
	return &e.locks[h.Sum32()%lockStripes]
}

// Check looks for a recent fingerprint of the same vehicle by the same
// submitter.
func (e *Engine) Check(ctx context.Context, submitterID string, attrs Attributes) (Match, error) {
	hash := Hash(attrs)

	l := e.lockFor(submitterID)
	l.Lock()
	defer l.Unlock()

	rec, err := e.store.FindRecentFingerprint(ctx, submitterID, hash, e.window)
	if err != nil {
		return Match{}, eris.Wrap(err, "fingerprint: find recent")
	}
	if rec != nil {
		zap.L().Info("duplicate vehicle fingerprint",
			zap.String("submitter_id", submitterID),
			zap.String("matched_listing_id", rec.ListingID),
		)
		return Match{IsDuplicate: true, Hash: hash, MatchedListingID: rec.ListingID}, nil
	}
	return Match{Hash: hash}, nil
}

// Persist records an approved submission's fingerprint. A concurrent
// writer winning the race surfaces as ErrFingerprintExists.
func (e *Engine) Persist(ctx context.Context, submitterID, listingID, hash string) error {
	l := e.lockFor(submitterID)
	l.Lock()
	defer l.Unlock()

	rec := model.FingerprintRecord{
		ID:          uuid.NewString(),
		SubmitterID: submitterID,
		ListingID:   listingID,
		Hash:        hash,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.PersistFingerprint(ctx, rec); err != nil {
		if eris.Is(err, ErrFingerprintExists) {
			return ErrFingerprintExists
		}
		return eris.Wrap(err, "fingerprint: persist")
	}
	return nil
}
