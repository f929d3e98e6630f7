// Package tiered composes the in-process LRU cache with an optional fast
// remote store (tier 2) and an optional durable store (tier 3) behind a
// single cache interface.
//
// Reads probe tier 1, then tier 2, then tier 3, copying any deeper hit into
// the faster tiers (promotion). Writes land in tier 1 synchronously and are
// demoted to the deeper tiers best-effort. An external tier that fails is
// latched unavailable for the rest of the process lifetime, so a dead
// dependency costs one failed call rather than a round-trip per operation;
// operators can re-enable a tier explicitly after fixing it. No tier-2 or
// tier-3 failure ever surfaces to the caller — the worst case is plain
// tier-1-only behavior.
package tiered

import (
	"context"
	"errors"
	"time"

	"tiercache/pkg/cache"
	"tiercache/pkg/cache/bloom"
	"tiercache/pkg/cache/memory"
	"tiercache/pkg/logging"
	"tiercache/pkg/metrics"
	"tiercache/pkg/writer"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Tier labels used in logs and metrics.
const (
	TierMemory  = "tier1"
	TierRemote  = "tier2"
	TierDurable = "tier3"
)

// Cache is a multi-tier cache. Construct with New; the zero value is not
// usable.
//
// The cache owns its bookkeeping (tier-1 entries, availability latches, hit
// counters) but never the tier-2/tier-3 store handles, which stay owned by
// the caller.
type Cache struct {
	cfg    Config
	tier1  *memory.Cache
	tier2  cache.RemoteStore
	tier3  cache.DurableStore
	codec  cache.Codec
	logger *logging.Logger
	stats  metrics.Collector

	avail counters // availability latches and deep-tier hit counters

	sf *singleflight.Group

	t2Writer *writer.DemotionWriter
	t3Writer *writer.DemotionWriter

	guard *bloom.Guard
}

// New creates a tiered cache from the given configuration.
// Tiers 2 and 3 start available only if their store handles were supplied.
func New(cfg Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &Cache{
		cfg:    cfg,
		tier1:  memory.New(cfg.Tier1MaxSize),
		tier2:  cfg.Tier2,
		tier3:  cfg.Tier3,
		codec:  cfg.Codec,
		logger: cfg.Logger.Named("tiered"),
		stats:  cfg.Metrics,
	}

	c.avail.init(cfg.Tier2 != nil, cfg.Tier3 != nil)

	if cfg.SingleFlight {
		c.sf = &singleflight.Group{}
	}

	if cfg.Tier3Bloom && cfg.Tier3 != nil {
		c.guard = bloom.NewGuard(cfg.BloomExpectedItems, cfg.BloomFalsePositiveRate)
	}

	if cfg.AsyncDemotion {
		if cfg.Tier2 != nil {
			c.t2Writer = writer.NewDemotionWriterWithMetrics(writer.SinkFunc{
				Fn:       c.writeTier2,
				TierName: TierRemote,
			}, cfg.DemotionWriter, cfg.Metrics)
		}
		if cfg.Tier3 != nil {
			c.t3Writer = writer.NewDemotionWriterWithMetrics(writer.SinkFunc{
				Fn:       c.writeTier3,
				TierName: TierDurable,
			}, cfg.DemotionWriter, cfg.Metrics)
		}
	}

	return c, nil
}

// Get returns the cached value for key, probing tiers in order and promoting
// any deeper hit into the faster tiers. A full miss returns
// cache.ErrKeyNotFound. Tier-2/tier-3 failures never propagate; they latch
// the failing tier off and the lookup degrades to the remaining tiers.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, error) {
	start := time.Now()
	if value, ok := c.tier1.Get(key); ok {
		c.stats.RecordTierGet(TierMemory, true, time.Since(start))
		return value, nil
	}
	c.stats.RecordTierGet(TierMemory, false, time.Since(start))

	if value, ok := c.getTier2(ctx, key); ok {
		return value, nil
	}

	if value, ok := c.getTier3(ctx, key); ok {
		return value, nil
	}

	return nil, cache.ErrKeyNotFound
}

// getTier2 probes tier 2 and promotes a hit into tier 1.
func (c *Cache) getTier2(ctx context.Context, key string) (interface{}, bool) {
	if !c.avail.tier2Available() {
		return nil, false
	}

	start := time.Now()
	raw, err := c.tier2.Get(ctx, key)
	if err != nil {
		c.stats.RecordTierGet(TierRemote, false, time.Since(start))
		if !cache.IsNotFound(err) {
			c.disableTier2("get", err)
		}
		return nil, false
	}
	c.stats.RecordTierGet(TierRemote, true, time.Since(start))

	value, _ := c.codec.Decode(raw)
	c.tier1.Set(key, value, c.cfg.Tier2TTL)
	c.avail.tier2Hit()
	c.stats.RecordPromotion(TierRemote)
	return value, true
}

// getTier3 probes tier 3 and promotes a hit into tiers 2 and 1.
func (c *Cache) getTier3(ctx context.Context, key string) (interface{}, bool) {
	if !c.avail.tier3Available() {
		return nil, false
	}

	if c.guard != nil && !c.guard.MayContain(key) {
		return nil, false
	}

	start := time.Now()
	raw, err := c.tier3.Get(ctx, key)
	if err != nil {
		c.stats.RecordTierGet(TierDurable, false, time.Since(start))
		if cache.IsNotFound(err) {
			if c.guard != nil {
				c.guard.RecordFalsePositive()
			}
		} else {
			c.disableTier3("get", err)
		}
		return nil, false
	}
	c.stats.RecordTierGet(TierDurable, true, time.Since(start))

	value, _ := c.codec.Decode(raw)

	// Promote the serialized form into tier 2 and the decoded value into
	// tier 1. A tier-3 promotion keeps the longer tier-3 TTL in tier 1.
	if c.avail.tier2Available() {
		if err := c.writeTier2(ctx, key, raw, c.cfg.Tier2TTL); err != nil && !cache.IsUnavailable(err) {
			c.logger.Warn("tier-2 promotion failed",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
	c.tier1.Set(key, value, c.cfg.Tier3TTL)

	c.avail.tier3Hit()
	c.stats.RecordPromotion(TierDurable)
	return value, true
}

// Set stores the value in tier 1 and demotes it best-effort to the deeper
// tiers. A zero ttl uses the per-tier defaults (Tier2TTL for tiers 1 and 2,
// Tier3TTL for tier 3). Deep-tier failures are logged and latch the tier;
// they never fail the Set.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()

	tier1TTL := ttl
	if tier1TTL <= 0 {
		tier1TTL = c.cfg.Tier2TTL
	}
	c.tier1.Set(key, value, tier1TTL)
	c.stats.RecordTierSet(TierMemory, true, time.Since(start))

	if !c.avail.tier2Available() && !c.avail.tier3Available() {
		return nil
	}

	encoded, err := c.codec.Encode(value)
	if err != nil {
		// The codec falls back to a stringified form; an error here means
		// even that failed, which leaves nothing to demote.
		c.logger.Warn("value not serializable, skipping deep-tier demotion",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil
	}

	if c.avail.tier2Available() {
		tier2TTL := ttl
		if tier2TTL <= 0 {
			tier2TTL = c.cfg.Tier2TTL
		}
		c.demoteTier2(ctx, key, encoded, tier2TTL)
	}

	if c.avail.tier3Available() {
		tier3TTL := ttl
		if tier3TTL <= 0 {
			tier3TTL = c.cfg.Tier3TTL
		}
		c.demoteTier3(ctx, key, encoded, tier3TTL)
	}

	return nil
}

func (c *Cache) demoteTier2(ctx context.Context, key, encoded string, ttl time.Duration) {
	if c.t2Writer != nil {
		if err := c.t2Writer.Write(ctx, key, encoded, ttl); err != nil && !errors.Is(err, writer.ErrQueueFull) {
			c.logger.Warn("tier-2 demotion enqueue failed", zap.String("key", key), zap.Error(err))
		}
		return
	}

	start := time.Now()
	err := c.writeTier2(ctx, key, encoded, ttl)
	c.stats.RecordTierSet(TierRemote, err == nil, time.Since(start))
}

func (c *Cache) demoteTier3(ctx context.Context, key, encoded string, ttl time.Duration) {
	// Record the demotion in the guard at enqueue time so the guard never
	// rejects a key this process has written, even while the write is still
	// queued.
	if c.guard != nil {
		c.guard.Add(key)
	}

	if c.t3Writer != nil {
		if err := c.t3Writer.Write(ctx, key, encoded, ttl); err != nil && !errors.Is(err, writer.ErrQueueFull) {
			c.logger.Warn("tier-3 demotion enqueue failed", zap.String("key", key), zap.Error(err))
		}
		return
	}

	start := time.Now()
	err := c.writeTier3(ctx, key, encoded, ttl)
	c.stats.RecordTierSet(TierDurable, err == nil, time.Since(start))
}

// writeTier2 performs a tier-2 write, latching the tier on failure.
// It doubles as the async demotion sink for tier 2.
func (c *Cache) writeTier2(ctx context.Context, key, value string, ttl time.Duration) error {
	if !c.avail.tier2Available() {
		return cache.ErrTierUnavailable
	}
	if err := c.tier2.SetWithExpiry(ctx, key, value, ttl); err != nil {
		c.disableTier2("set", err)
		return err
	}
	return nil
}

// writeTier3 performs a tier-3 upsert, latching the tier on failure.
// It doubles as the async demotion sink for tier 3.
func (c *Cache) writeTier3(ctx context.Context, key, value string, ttl time.Duration) error {
	if !c.avail.tier3Available() {
		return cache.ErrTierUnavailable
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	if err := c.tier3.Upsert(ctx, key, value, expiresAt); err != nil {
		c.disableTier3("set", err)
		return err
	}
	return nil
}

// GetOrCompute returns the cached value for key, or invokes compute, stores
// its result with the given ttl, and returns it. compute runs at most once
// per call. With Config.SingleFlight enabled, concurrent callers racing on
// the same missing key share one computation; otherwise each racer computes
// independently and the last write wins, matching the reference behavior.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (interface{}, error), ttl time.Duration) (interface{}, error) {
	value, err := c.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if !cache.IsNotFound(err) {
		return nil, err
	}

	if c.sf != nil {
		value, err, _ := c.sf.Do(key, func() (interface{}, error) {
			// A racer may have populated the cache while this call waited
			// on the flight group.
			if value, err := c.Get(ctx, key); err == nil {
				return value, nil
			}
			return c.computeAndStore(ctx, key, compute, ttl)
		})
		return value, err
	}

	return c.computeAndStore(ctx, key, compute, ttl)
}

func (c *Cache) computeAndStore(ctx context.Context, key string, compute func(ctx context.Context) (interface{}, error), ttl time.Duration) (interface{}, error) {
	start := time.Now()
	value, err := compute(ctx)
	c.stats.RecordCompute(err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}

	if err := c.Set(ctx, key, value, ttl); err != nil {
		return nil, err
	}
	return value, nil
}

// Delete removes key from tier 1 unconditionally and best-effort from the
// deeper tiers. Deep-tier failures are logged, latch the tier, and do not
// fail the delete.
func (c *Cache) Delete(ctx context.Context, key string) error {
	start := time.Now()
	c.tier1.Delete(key)
	c.stats.RecordTierDelete(TierMemory, true, time.Since(start))

	if c.avail.tier2Available() {
		start := time.Now()
		err := c.tier2.Delete(ctx, key)
		c.stats.RecordTierDelete(TierRemote, err == nil, time.Since(start))
		if err != nil {
			c.disableTier2("delete", err)
		}
	}

	if c.avail.tier3Available() {
		start := time.Now()
		err := c.tier3.Delete(ctx, key)
		c.stats.RecordTierDelete(TierDurable, err == nil, time.Since(start))
		if err != nil {
			c.disableTier3("delete", err)
		}
	}

	return nil
}

// Clear empties tier 1 and issues a delete-all against tier 3. Tier 2 is
// deliberately left untouched: the remote store is commonly shared across
// processes and tenants, and flushing it programmatically is judged too
// destructive — entries there age out via their TTLs instead.
func (c *Cache) Clear(ctx context.Context) error {
	c.tier1.Clear()

	if c.tier2 != nil {
		c.logger.Warn("refusing to flush shared tier-2 store; entries expire via TTL",
			zap.String("tier", TierRemote),
		)
	}

	if c.avail.tier3Available() {
		if err := c.tier3.DeleteAll(ctx); err != nil {
			c.disableTier3("clear", err)
		}
	}

	if c.guard != nil {
		c.guard.Reset()
	}

	return nil
}

// ReenableTier2 resets the tier-2 availability latch after an operator has
// restored the dependency. No-op if tier 2 was never configured.
func (c *Cache) ReenableTier2() {
	if c.tier2 != nil && c.avail.reenableTier2() {
		c.logger.Info("tier-2 re-enabled")
	}
}

// ReenableTier3 resets the tier-3 availability latch after an operator has
// restored the dependency. No-op if tier 3 was never configured.
func (c *Cache) ReenableTier3() {
	if c.tier3 != nil && c.avail.reenableTier3() {
		c.logger.Info("tier-3 re-enabled")
	}
}

// Flush drains any pending async demotion writes. No-op when AsyncDemotion
// is off.
func (c *Cache) Flush(timeout time.Duration) error {
	if c.t2Writer != nil {
		if err := c.t2Writer.Flush(timeout); err != nil {
			return err
		}
	}
	if c.t3Writer != nil {
		if err := c.t3Writer.Flush(timeout); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the async demotion writers, draining their queues. It does not
// close the tier-2/tier-3 store handles, which the caller owns.
func (c *Cache) Close() error {
	if c.t2Writer != nil {
		if err := c.t2Writer.Close(); err != nil {
			return err
		}
	}
	if c.t3Writer != nil {
		if err := c.t3Writer.Close(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) disableTier2(operation string, err error) {
	if c.avail.disableTier2() {
		c.logger.Warn("tier-2 failed, disabling for process lifetime",
			zap.String("operation", operation),
			zap.String("store", c.tier2.Name()),
			zap.String("error_type", cache.ClassifyError(err)),
			zap.Error(err),
		)
		c.stats.RecordTierDisabled(TierRemote)
	}
}

func (c *Cache) disableTier3(operation string, err error) {
	if c.avail.disableTier3() {
		c.logger.Warn("tier-3 failed, disabling for process lifetime",
			zap.String("operation", operation),
			zap.String("store", c.tier3.Name()),
			zap.String("error_type", cache.ClassifyError(err)),
			zap.Error(err),
		)
		c.stats.RecordTierDisabled(TierDurable)
	}
}
