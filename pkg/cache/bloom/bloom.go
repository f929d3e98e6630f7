// Package bloom provides a probabilistic guard for tier-3 probes. The guard
// tracks every key this process has demoted to the durable tier; a negative
// membership test means the key was certainly never written here, so the
// database round-trip can be skipped.
//
// The filter only sees writes from this process. Rows written by other
// processes are invisible to it, which is why the guard is opt-in.
package bloom

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Guard wraps a bloom filter with query statistics.
type Guard struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter

	expectedItems uint
	fpRate        float64

	totalQueries   uint64
	rejected       uint64
	falsePositives uint64
}

// NewGuard creates a guard sized for expectedItems at the given false
// positive rate. Zero values fall back to 10000 items at 1%.
func NewGuard(expectedItems uint, falsePositiveRate float64) *Guard {
	if expectedItems == 0 {
		expectedItems = 10000
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	return &Guard{
		filter:        bloom.NewWithEstimates(expectedItems, falsePositiveRate),
		expectedItems: expectedItems,
		fpRate:        falsePositiveRate,
	}
}

// Add records that key has been written to the guarded tier.
func (g *Guard) Add(key string) {
	g.mu.Lock()
	g.filter.Add([]byte(key))
	g.mu.Unlock()
}

// MayContain reports whether key might have been written. A false result is
// definitive; a true result may be a false positive.
func (g *Guard) MayContain(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.totalQueries++
	if g.filter.Test([]byte(key)) {
		return true
	}
	g.rejected++
	return false
}

// RecordFalsePositive notes that a probe allowed by the guard still missed.
func (g *Guard) RecordFalsePositive() {
	g.mu.Lock()
	g.falsePositives++
	g.mu.Unlock()
}

// Reset clears the filter and statistics.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.filter = bloom.NewWithEstimates(g.expectedItems, g.fpRate)
	g.totalQueries = 0
	g.rejected = 0
	g.falsePositives = 0
}

// Stats holds guard counters.
type Stats struct {
	TotalQueries      uint64
	Rejected          uint64
	FalsePositives    uint64
	RejectionRate     float64
	FalsePositiveRate float64
	FilterCapacity    uint
}

// Stats returns current guard statistics.
func (g *Guard) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Stats{
		TotalQueries:   g.totalQueries,
		Rejected:       g.rejected,
		FalsePositives: g.falsePositives,
		FilterCapacity: uint(g.filter.Cap()),
	}
	if g.totalQueries > 0 {
		s.RejectionRate = float64(g.rejected) / float64(g.totalQueries)
		if allowed := g.totalQueries - g.rejected; allowed > 0 {
			s.FalsePositiveRate = float64(g.falsePositives) / float64(allowed)
		}
	}
	return s
}
