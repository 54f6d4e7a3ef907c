package state

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/danielpatrickdp/adaptive-tutor/internal/pkg/logger"
)

const (
	defaultCacheTTL = 10 * time.Minute
	cacheKeyPrefix  = "tutor:active:"
)

// CachedStore is a read-through redis cache over the active version of each
// learner. Writes go to the inner store first and then drop the cached entry.
// Redis failures are logged and fall through to the inner store.
type CachedStore struct {
	inner Store
	rdb   goredis.Cmdable
	ttl   time.Duration
	log   *logger.Logger
}

// NewCachedStore wraps inner. ttl <= 0 uses ten minutes; a nil log discards output.
func NewCachedStore(inner Store, rdb goredis.Cmdable, ttl time.Duration, log *logger.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CachedStore{inner: inner, rdb: rdb, ttl: ttl, log: log.With("service", "CachedStore")}
}

func cacheKey(learnerID string) string { return cacheKeyPrefix + learnerID }

func (c *CachedStore) Get(ctx context.Context, learnerID string) (Record, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(learnerID)).Bytes()
	switch {
	case err == nil:
		var rec Record
		if jerr := json.Unmarshal(raw, &rec); jerr == nil {
			return rec, nil
		}
		c.log.Warn("dropping undecodable cache entry", "learner_id", learnerID)
	case !errors.Is(err, goredis.Nil):
		c.log.Warn("redis get failed", "learner_id", learnerID, "error", err)
	}

	rec, err := c.inner.Get(ctx, learnerID)
	if err != nil {
		return Record{}, err
	}
	c.put(ctx, rec)
	return rec, nil
}

func (c *CachedStore) GetVersion(ctx context.Context, versionID string) (Record, error) {
	return c.inner.GetVersion(ctx, versionID)
}

func (c *CachedStore) Commit(ctx context.Context, rec Record) error {
	if err := c.inner.Commit(ctx, rec); err != nil {
		return err
	}
	c.invalidate(ctx, rec.LearnerID)
	return nil
}

func (c *CachedStore) Rollback(ctx context.Context, learnerID, versionID string) error {
	if err := c.inner.Rollback(ctx, learnerID, versionID); err != nil {
		return err
	}
	c.invalidate(ctx, learnerID)
	return nil
}

func (c *CachedStore) ListVersions(ctx context.Context, learnerID string, limit int) ([]Record, error) {
	return c.inner.ListVersions(ctx, learnerID, limit)
}

// Close closes the inner store. The redis client belongs to the caller.
func (c *CachedStore) Close() error { return c.inner.Close() }

func (c *CachedStore) put(ctx context.Context, rec Record) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(rec.LearnerID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("redis set failed", "learner_id", rec.LearnerID, "error", err)
	}
}

func (c *CachedStore) invalidate(ctx context.Context, learnerID string) {
	if err := c.rdb.Del(ctx, cacheKey(learnerID)).Err(); err != nil {
		c.log.Warn("redis del failed", "learner_id", learnerID, "error", err)
	}
}
