package tenants

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/wabaledger/pkg/logger"
	"github.com/angelmondragon/wabaledger/pkg/redis"
)

const (
	defaultCacheTTL = 10 * time.Minute
	negativeMarker  = "-"
)

// cacheStore is the subset of the redis client the cache needs.
type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	TenantKey(kind, value string) string
}

// CachedDirectory memoizes positive and negative directory lookups in Redis.
// Cache failures fall through to the backing directory.
type CachedDirectory struct {
	next  Directory
	store cacheStore
	ttl   time.Duration
	logg  *logger.Logger
}

// NewCachedDirectory wraps next with a Redis cache.
func NewCachedDirectory(next Directory, store cacheStore, ttl time.Duration, logg *logger.Logger) *CachedDirectory {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedDirectory{next: next, store: store, ttl: ttl, logg: logg}
}

func (c *CachedDirectory) Lookup(ctx context.Context, kind HintKind, value string) (uuid.UUID, bool, error) {
	if value == "" {
		return uuid.Nil, false, nil
	}
	key := c.store.TenantKey(string(kind), value)

	cached, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		if cached == negativeMarker {
			return uuid.Nil, false, nil
		}
		if id, parseErr := uuid.Parse(cached); parseErr == nil {
			return id, true, nil
		}
	case !errors.Is(err, redis.Nil):
		c.warn(ctx, "tenant cache read failed", key, err)
	}

	businessID, ok, err := c.next.Lookup(ctx, kind, value)
	if err != nil {
		return uuid.Nil, false, err
	}

	entry := negativeMarker
	if ok {
		entry = businessID.String()
	}
	if setErr := c.store.Set(ctx, key, entry, c.ttl); setErr != nil {
		c.warn(ctx, "tenant cache write failed", key, setErr)
	}
	return businessID, ok, nil
}

func (c *CachedDirectory) warn(ctx context.Context, msg, key string, err error) {
	if c.logg == nil {
		return
	}
	ctx = c.logg.WithFields(ctx, map[string]any{"cache_key": key, "error": err.Error()})
	c.logg.Warn(ctx, msg)
}
