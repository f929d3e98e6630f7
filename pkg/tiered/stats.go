package tiered

import (
	"sync/atomic"
	"time"

	"tiercache/pkg/cache/bloom"
	"tiercache/pkg/cache/memory"
)

// counters holds the per-instance availability latches and deep-tier hit
// counters. Latches are idempotent booleans: a race on the flip costs at
// most one redundant failed call, never corruption. Counters are
// approximately correct under concurrency, which is all observability needs.
type counters struct {
	tier2Up atomic.Bool
	tier3Up atomic.Bool

	tier2Hits atomic.Uint64
	tier3Hits atomic.Uint64
}

func (a *counters) init(tier2, tier3 bool) {
	a.tier2Up.Store(tier2)
	a.tier3Up.Store(tier3)
}

func (a *counters) tier2Available() bool { return a.tier2Up.Load() }
func (a *counters) tier3Available() bool { return a.tier3Up.Load() }

// disableTier2 latches tier 2 off, reporting whether this call flipped it.
func (a *counters) disableTier2() bool { return a.tier2Up.CompareAndSwap(true, false) }

// disableTier3 latches tier 3 off, reporting whether this call flipped it.
func (a *counters) disableTier3() bool { return a.tier3Up.CompareAndSwap(true, false) }

func (a *counters) reenableTier2() bool { return a.tier2Up.CompareAndSwap(false, true) }
func (a *counters) reenableTier3() bool { return a.tier3Up.CompareAndSwap(false, true) }

func (a *counters) tier2Hit() { a.tier2Hits.Add(1) }
func (a *counters) tier3Hit() { a.tier3Hits.Add(1) }

// TierStats describes an external tier's counters and availability.
type TierStats struct {
	Configured bool          `json:"configured"`
	Available  bool          `json:"available"`
	Hits       uint64        `json:"hits"`
	TTL        time.Duration `json:"ttl"`
}

// Stats is a point-in-time snapshot of the whole hierarchy.
type Stats struct {
	Tier1 memory.Stats `json:"tier1"`
	Tier2 TierStats    `json:"tier2"`
	Tier3 TierStats    `json:"tier3"`

	// Bloom is present only when the tier-3 guard is enabled.
	Bloom *bloom.Stats `json:"bloom,omitempty"`
}

// Stats returns current counters across all tiers.
func (c *Cache) Stats() Stats {
	s := Stats{
		Tier1: c.tier1.Stats(),
		Tier2: TierStats{
			Configured: c.tier2 != nil,
			Available:  c.avail.tier2Available(),
			Hits:       c.avail.tier2Hits.Load(),
			TTL:        c.cfg.Tier2TTL,
		},
		Tier3: TierStats{
			Configured: c.tier3 != nil,
			Available:  c.avail.tier3Available(),
			Hits:       c.avail.tier3Hits.Load(),
			TTL:        c.cfg.Tier3TTL,
		},
	}
	if c.guard != nil {
		gs := c.guard.Stats()
		s.Bloom = &gs
	}
	return s
}
