package tiered

import (
	"fmt"
	"strings"
	"time"

	"tiercache/pkg/cache"
	"tiercache/pkg/logging"
	"tiercache/pkg/metrics"
	"tiercache/pkg/writer"
)

// Default tier parameters.
const (
	DefaultTier1MaxSize = 1000
	DefaultTier2TTL     = 5 * time.Minute
	DefaultTier3TTL     = time.Hour
)

// EvictionLRU is the only implemented tier-1 eviction policy.
const EvictionLRU = "lru"

// Config enumerates the recognized construction options for a tiered Cache.
// The zero value is usable: a tier-1-only cache with default sizing.
type Config struct {
	// Tier1MaxSize is the capacity of the in-process tier (default 1000).
	Tier1MaxSize int

	// Tier2TTL is the default expiry for tier-2 writes and for tier-1
	// entries promoted from a tier-2 hit (default 5m).
	Tier2TTL time.Duration

	// Tier3TTL is the default expiry for tier-3 writes and for entries
	// promoted from a tier-3 hit (default 1h).
	Tier3TTL time.Duration

	// Tier2 is the fast remote store handle. Nil disables tier 2
	// permanently. The handle remains owned by the caller; the cache never
	// closes it.
	Tier2 cache.RemoteStore

	// Tier3 is the durable store handle. Nil disables tier 3 permanently.
	// Ownership rules match Tier2.
	Tier3 cache.DurableStore

	// EvictionPolicy selects the tier-1 eviction policy. Only "lru" is
	// implemented; the field is reserved for future policies.
	EvictionPolicy string

	// Codec serializes values crossing into tiers 2 and 3
	// (default cache.JSONCodec).
	Codec cache.Codec

	// SingleFlight dedupes concurrent GetOrCompute calls for the same key.
	// Off by default: the reference behavior allows redundant computation
	// when callers race on a missing key.
	SingleFlight bool

	// AsyncDemotion moves tier-2/tier-3 demotion writes onto a background
	// worker pool instead of performing them inline during Set.
	AsyncDemotion bool

	// DemotionWriter configures queue sizing when AsyncDemotion is on.
	DemotionWriter writer.Config

	// Tier3Bloom enables a bloom guard that skips tier-3 probes for keys
	// never demoted by this process. Opt-in: rows written by other
	// processes are invisible to the guard.
	Tier3Bloom bool

	// BloomExpectedItems sizes the tier-3 bloom guard (default 10000).
	BloomExpectedItems uint

	// BloomFalsePositiveRate sets the guard's target false positive rate
	// (default 0.01).
	BloomFalsePositiveRate float64

	// Logger receives tier failure warnings (default the global logger).
	Logger *logging.Logger

	// Metrics receives observability events (default no-op).
	Metrics metrics.Collector
}

// DefaultConfig returns a tier-1-only configuration with default sizing.
func DefaultConfig() Config {
	return Config{
		Tier1MaxSize:   DefaultTier1MaxSize,
		Tier2TTL:       DefaultTier2TTL,
		Tier3TTL:       DefaultTier3TTL,
		EvictionPolicy: EvictionLRU,
	}
}

// Validate checks the configuration for unsupported options.
func (c *Config) Validate() error {
	if c.EvictionPolicy != "" && strings.ToLower(c.EvictionPolicy) != EvictionLRU {
		return fmt.Errorf("tiered: unsupported eviction policy %q (only %q is implemented)", c.EvictionPolicy, EvictionLRU)
	}
	if c.Tier2TTL < 0 || c.Tier3TTL < 0 {
		return fmt.Errorf("tiered: negative tier TTL")
	}
	return nil
}

// withDefaults fills unset optional fields.
func (c Config) withDefaults() Config {
	if c.Tier1MaxSize <= 0 {
		c.Tier1MaxSize = DefaultTier1MaxSize
	}
	if c.Tier2TTL == 0 {
		c.Tier2TTL = DefaultTier2TTL
	}
	if c.Tier3TTL == 0 {
		c.Tier3TTL = DefaultTier3TTL
	}
	if c.Codec == nil {
		c.Codec = cache.JSONCodec{}
	}
	if c.Logger == nil {
		c.Logger = logging.Global()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NoOpCollector{}
	}
	return c
}
