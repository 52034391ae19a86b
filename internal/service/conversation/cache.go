package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"companion/internal/logger"
	"companion/internal/models"
	"companion/internal/redis"
)

const (
	historyKeyPrefix  = "conversation:history:"
	DefaultHistoryTTL = 30 * time.Minute
)

// CachedStore keeps scoped histories in redis. Writes go to the database first
// and then drop the cached entry; cache faults only cost a database read.
type CachedStore struct {
	*Store
	cache *redis.Client
	ttl   time.Duration
}

func NewCachedStore(store *Store, cache *redis.Client, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &CachedStore{Store: store, cache: cache, ttl: ttl}
}

func historyKey(scope models.Scope) string {
	return historyKeyPrefix + string(scope)
}

// History serves scoped reads from redis; the unscoped history is never cached.
func (c *CachedStore) History(ctx context.Context, scope models.Scope) ([]models.HistoryEntry, error) {
	if scope == "" || c.cache == nil {
		return c.Store.History(ctx, scope)
	}
	log := logger.FromContext(ctx)
	key := historyKey(scope)

	raw, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var history []models.HistoryEntry
		if err := sonic.Unmarshal(raw, &history); err == nil {
			return history, nil
		}
		log.Warn("history cache decode failed", "scope", scope)
	case !errors.Is(err, redis.ErrCacheMiss):
		log.Warn("history cache read failed", "scope", scope, "error", err)
	}

	history, err := c.Store.History(ctx, scope)
	if err != nil {
		return nil, err
	}
	if data, err := sonic.Marshal(history); err != nil {
		log.Warn("history cache encode failed", "scope", scope, "error", err)
	} else if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		log.Warn("history cache write failed", "scope", scope, "error", err)
	}
	return history, nil
}

func (c *CachedStore) AppendExchange(ctx context.Context, scope models.Scope, userContent, modelContent string) error {
	err := c.Store.AppendExchange(ctx, scope, userContent, modelContent)
	c.invalidate(ctx, scope)
	if err != nil {
		return fmt.Errorf("append exchange: %w", err)
	}
	return nil
}

func (c *CachedStore) invalidate(ctx context.Context, scope models.Scope) {
	if scope == "" || c.cache == nil {
		return
	}
	if err := c.cache.Del(ctx, historyKey(scope)); err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		logger.FromContext(ctx).Warn("history cache invalidate failed", "scope", scope, "error", err)
	}
}
