package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/privacy"
)

// viewCacheTTL bounds staleness if an invalidation is ever missed.
const viewCacheTTL = 10 * time.Minute

// ViewCache caches filtered entry views in Redis. Filter output is
// deterministic for a given (entry, level, rule set), so a cached view keyed
// on the rule set fingerprint never serves stale redactions after a rule
// reload.
//
// A nil Redis client disables the cache; every method becomes a no-op miss.
type ViewCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewViewCache creates a ViewCache. client may be nil.
func NewViewCache(client *redis.Client, logger *zap.Logger) *ViewCache {
	return &ViewCache{
		client: client,
		logger: logger.Named("view-cache"),
	}
}

// Enabled reports whether a Redis backend is configured.
func (c *ViewCache) Enabled() bool {
	return c != nil && c.client != nil
}

func viewKey(owner, endpointKind, entryID string, level privacy.Level, fingerprint string) string {
	return fmt.Sprintf("view:%s:%s:%s:%s:%s", owner, endpointKind, entryID, level, fingerprint)
}

// Get returns the cached filtered view, or nil on miss.
func (c *ViewCache) Get(ctx context.Context, owner, endpointKind, entryID string, level privacy.Level, fingerprint string) *privacy.FilteredEntry {
	if !c.Enabled() {
		return nil
	}

	data, err := c.client.Get(ctx, viewKey(owner, endpointKind, entryID, level, fingerprint)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Cache read failed", zap.Error(err))
		}
		return nil
	}

	var view privacy.FilteredEntry
	if err := json.Unmarshal(data, &view); err != nil {
		c.logger.Warn("Corrupt cache entry dropped", zap.Error(err))
		return nil
	}
	return &view
}

// Set stores a filtered view. Failures are logged and ignored.
func (c *ViewCache) Set(ctx context.Context, owner, endpointKind, entryID string, level privacy.Level, fingerprint string, view *privacy.FilteredEntry) {
	if !c.Enabled() {
		return
	}

	data, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, viewKey(owner, endpointKind, entryID, level, fingerprint), data, viewCacheTTL).Err(); err != nil {
		c.logger.Warn("Cache write failed", zap.Error(err))
	}
}

// Invalidate drops every cached view for the owner's endpoint, across all
// levels and fingerprints. Called after any write or import touching the
// endpoint.
func (c *ViewCache) Invalidate(ctx context.Context, owner, endpointKind string) {
	if !c.Enabled() {
		return
	}

	pattern := fmt.Sprintf("view:%s:%s:*", owner, endpointKind)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("Cache invalidation scan failed", zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Cache invalidation failed", zap.Error(err))
	}
}
