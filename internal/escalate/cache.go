package escalate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/carmatch/moderation-cli/internal/model"
)

// CacheStore is the slice of the store the router needs for response
// caching. Implemented by internal/store.
type CacheStore interface {
	GetCachedResponse(ctx context.Context, key string) ([]byte, bool, error)
	SetCachedResponse(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// normalizeKeyText canonicalizes instruction text for cache keying so
// "Automática" and "automatica" produce the same key.
func normalizeKeyText(s string) string {
	return model.CanonicalString(s)
}

// cacheKey derives a stable key from the request kind, the normalized
// instruction text, and the digests of any attached images.
func cacheKey(kind, instruction string, images []model.ImageRef) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(normalizeKeyText(instruction)))
	for _, img := range images {
		digest := sha256.Sum256(img.Data)
		h.Write([]byte{0})
		h.Write(digest[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// cacheGet is a best-effort read: cache errors are logged and treated
// as misses so a broken cache never breaks moderation.
func cacheGet(ctx context.Context, store CacheStore, key string) ([]byte, bool) {
	if store == nil {
		return nil, false
	}
	payload, ok, err := store.GetCachedResponse(ctx, key)
	if err != nil {
		zap.L().Warn("response cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return payload, ok
}

func cachePut(ctx context.Context, store CacheStore, key string, payload []byte, ttl time.Duration) {
	if store == nil {
		return
	}
	if err := store.SetCachedResponse(ctx, key, payload, ttl); err != nil {
		zap.L().Warn("response cache write failed", zap.String("key", key), zap.Error(err))
	}
}
