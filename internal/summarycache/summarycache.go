// Package summarycache implements C4: a Redis-backed cache of
// pre-computed layer summaries at three depths, with staleness
// policies, single-flight regeneration, and per-tenant cost budgets.
package summarycache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wisbric/stratum/internal/domain"
	"github.com/wisbric/stratum/internal/resilience"
)

// StalenessPolicy controls what SummaryCache does when a cached entry's
// source_hash no longer matches the current source.
type StalenessPolicy string

const (
	ServeStaleWarn      StalenessPolicy = "serve_stale_warn"
	RegenerateBlocking  StalenessPolicy = "regenerate_blocking"
	RegenerateAsync     StalenessPolicy = "regenerate_async"
)

// Generator produces fresh LayerSummary content for a (tenant, layer,
// depth) when the cache misses or is stale.
type Generator interface {
	Generate(ctx context.Context, tenantID string, layer domain.Layer, depth domain.SummaryDepth) (domain.LayerSummary, error)
}

// Cache is the Redis-backed summary cache.
type Cache struct {
	redis      *redis.Client
	generator  Generator
	ttl        time.Duration
	policy     StalenessPolicy
	lockTTL    time.Duration
}

// Config configures a Cache.
type Config struct {
	TTL     time.Duration // default 300s per spec §4.4
	Policy  StalenessPolicy
	LockTTL time.Duration
}

// DefaultConfig returns spec-mandated defaults.
func DefaultConfig() Config {
	return Config{TTL: 300 * time.Second, Policy: ServeStaleWarn, LockTTL: 10 * time.Second}
}

// New constructs a Cache.
func New(rdb *redis.Client, generator Generator, cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 300 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	return &Cache{redis: rdb, generator: generator, ttl: cfg.TTL, policy: cfg.Policy, lockTTL: cfg.LockTTL}
}

// cacheKey builds "summary:{tenant}:{layer}:{entry_id}:{depth}" per §6.
func cacheKey(tenantID string, layer domain.Layer, entryID string, depth domain.SummaryDepth) string {
	return fmt.Sprintf("summary:%s:%s:%s:%s", tenantID, layer, entryID, depth)
}

type cachedEntry struct {
	Summary domain.LayerSummary `json:"summary"`
}

// Get returns the cached summary for (tenant, layer, entryID, depth),
// along with a needsRegeneration flag set when the cached source_hash
// no longer matches currentSourceHash. Behavior on staleness follows
// the configured StalenessPolicy.
func (c *Cache) Get(ctx context.Context, tenantID string, layer domain.Layer, entryID string, depth domain.SummaryDepth, currentSourceHash string) (summary domain.LayerSummary, needsRegeneration bool, err error) {
	key := cacheKey(tenantID, layer, entryID, depth)

	raw, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return c.regenerateBlocking(ctx, tenantID, layer, entryID, depth, key)
	}
	if err != nil {
		return domain.LayerSummary{}, false, fmt.Errorf("reading summary cache key %s: %w", key, err)
	}

	var entry cachedEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return domain.LayerSummary{}, false, fmt.Errorf("decoding cached summary %s: %w", key, err)
	}

	if entry.Summary.SourceHash == currentSourceHash {
		return entry.Summary, false, nil
	}

	switch c.policy {
	case RegenerateBlocking:
		return c.regenerateBlocking(ctx, tenantID, layer, entryID, depth, key)
	case RegenerateAsync:
		go c.regenerateAsync(tenantID, layer, entryID, depth, key)
		return entry.Summary, true, nil
	default: // ServeStaleWarn
		go c.regenerateAsync(tenantID, layer, entryID, depth, key)
		return entry.Summary, true, nil
	}
}

func (c *Cache) regenerateBlocking(ctx context.Context, tenantID string, layer domain.Layer, entryID string, depth domain.SummaryDepth, key string) (domain.LayerSummary, bool, error) {
	summary, err := c.generateWithSingleflight(ctx, tenantID, entryID, layer, depth)
	if err != nil {
		return domain.LayerSummary{}, false, err
	}
	if err := c.store(ctx, key, summary); err != nil {
		return summary, false, err
	}
	return summary, false, nil
}

func (c *Cache) regenerateAsync(tenantID string, layer domain.Layer, entryID string, depth domain.SummaryDepth, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summary, err := c.generateWithSingleflight(ctx, tenantID, entryID, layer, depth)
	if err != nil {
		return
	}
	_ = c.store(ctx, key, summary)
}

// generateWithSingleflight guards concurrent regeneration of the same
// (tenant, entry) with a Redis lock, per §4.4's
// "lock:summary_gen:{tenant}:{entry}" single-flight requirement.
func (c *Cache) generateWithSingleflight(ctx context.Context, tenantID, entryID string, layer domain.Layer, depth domain.SummaryDepth) (domain.LayerSummary, error) {
	lockKey := fmt.Sprintf("lock:summary_gen:%s:%s", tenantID, entryID)
	lock := resilience.NewLock(c.redis, lockKey, c.lockTTL)

	if err := lock.Acquire(ctx); err != nil {
		// Another holder is already regenerating; poll briefly for its result.
		return c.waitForPeerRegeneration(ctx, tenantID, layer, entryID, depth)
	}
	defer lock.Release(ctx)

	return c.generator.Generate(ctx, tenantID, layer, depth)
}

func (c *Cache) waitForPeerRegeneration(ctx context.Context, tenantID string, layer domain.Layer, entryID string, depth domain.SummaryDepth) (domain.LayerSummary, error) {
	key := cacheKey(tenantID, layer, entryID, depth)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; i < 25; i++ {
		select {
		case <-ctx.Done():
			return domain.LayerSummary{}, ctx.Err()
		case <-ticker.C:
			raw, err := c.redis.Get(ctx, key).Bytes()
			if err == nil {
				var entry cachedEntry
				if json.Unmarshal(raw, &entry) == nil {
					return entry.Summary, nil
				}
			}
		}
	}
	return domain.LayerSummary{}, fmt.Errorf("timed out waiting for peer regeneration of %s", key)
}

func (c *Cache) store(ctx context.Context, key string, summary domain.LayerSummary) error {
	raw, err := json.Marshal(cachedEntry{Summary: summary})
	if err != nil {
		return fmt.Errorf("encoding summary for %s: %w", key, err)
	}
	if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing summary cache key %s: %w", key, err)
	}
	return nil
}

// Invalidate marks an entry stale by deleting it outright, triggering
// the next Get to regenerate — used on full source deletion per §4.4.
func (c *Cache) Invalidate(ctx context.Context, tenantID string, layer domain.Layer, entryID string, depth domain.SummaryDepth) error {
	key := cacheKey(tenantID, layer, entryID, depth)
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("invalidating summary cache key %s: %w", key, err)
	}
	return nil
}
