package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/kv"
)

const generationKey = "rbac:generation"

// noGeneration marks a lookup made while the cache was unreachable; results
// loaded under it are not stored.
const noGeneration int64 = -1

// PermissionCache stores each user's resolved permissions under the current
// RBAC generation. Any RBAC mutation bumps the generation, which orphans every
// cached entry at once. A nil *PermissionCache never hits.
type PermissionCache struct {
	store   kv.Store
	ttl     time.Duration
	logger  zerolog.Logger
	metrics *Metrics
}

func NewPermissionCache(store kv.Store, ttl time.Duration, logger zerolog.Logger, metrics *Metrics) *PermissionCache {
	return &PermissionCache{store: store, ttl: ttl, logger: logger, metrics: metrics}
}

func permissionKey(gen int64, userID string) string {
	return "rbac:perm:" + strconv.FormatInt(gen, 10) + ":" + userID
}

// Get returns the cached permissions and the generation they were looked up
// under. The generation must be passed back to Put.
func (c *PermissionCache) Get(ctx context.Context, userID string) (Permissions, int64, bool) {
	if c == nil {
		return nil, noGeneration, false
	}
	gen, err := c.store.Counter(ctx, generationKey)
	if err != nil {
		c.metrics.cacheLookup(resultError)
		c.logger.Warn().Err(err).Msg("permission cache unavailable")
		return nil, noGeneration, false
	}

	raw, err := c.store.Get(ctx, permissionKey(gen, userID))
	if errors.Is(err, kv.ErrMiss) {
		c.metrics.cacheLookup("miss")
		return nil, gen, false
	}
	if err != nil {
		c.metrics.cacheLookup(resultError)
		c.logger.Warn().Err(err).Str("user_id", userID).Msg("permission cache read failed")
		return nil, gen, false
	}

	var perms Permissions
	if err := json.Unmarshal([]byte(raw), &perms); err != nil {
		c.metrics.cacheLookup(resultError)
		return nil, gen, false
	}
	c.metrics.cacheLookup("hit")
	return perms, gen, true
}

func (c *PermissionCache) Put(ctx context.Context, gen int64, userID string, perms Permissions) {
	if c == nil || gen == noGeneration {
		return
	}
	raw, err := json.Marshal(perms)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, permissionKey(gen, userID), string(raw), c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("user_id", userID).Msg("permission cache write failed")
	}
}

// Invalidate drops every cached permission set. When it fails, entries of the
// current generation stay readable for at most the cache TTL.
func (c *PermissionCache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	_, err := c.store.Incr(ctx, generationKey)
	c.metrics.invalidation(err)
	return err
}
