// Package metrics defines the collector interface the cache reports into.
// Implementations can export to Prometheus or stay in-process.
package metrics

import "time"

// Collector receives cache observability events.
type Collector interface {
	// Per-tier operations
	RecordTierGet(tier string, hit bool, duration time.Duration)
	RecordTierSet(tier string, success bool, duration time.Duration)
	RecordTierDelete(tier string, success bool, duration time.Duration)

	// RecordTierDisabled is called when an external tier is latched off
	// after a failure.
	RecordTierDisabled(tier string)

	// RecordPromotion is called when a deep-tier hit is copied into
	// faster tiers.
	RecordPromotion(fromTier string)

	// RecordCompute tracks GetOrCompute producer invocations.
	RecordCompute(success bool, duration time.Duration)

	// Circuit breaker (resilience wrappers)
	RecordCircuitState(tier string, state CircuitState)

	// Async demotion writer
	RecordQueueDepth(tier string, depth int)
	RecordWriteDropped(tier string)
	RecordAsyncWrite(tier string, success bool, duration time.Duration)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is testing for recovery.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector discards all events. It is the default collector.
type NoOpCollector struct{}

// RecordTierGet does nothing.
func (NoOpCollector) RecordTierGet(tier string, hit bool, duration time.Duration) {}

// RecordTierSet does nothing.
func (NoOpCollector) RecordTierSet(tier string, success bool, duration time.Duration) {}

// RecordTierDelete does nothing.
func (NoOpCollector) RecordTierDelete(tier string, success bool, duration time.Duration) {}

// RecordTierDisabled does nothing.
func (NoOpCollector) RecordTierDisabled(tier string) {}

// RecordPromotion does nothing.
func (NoOpCollector) RecordPromotion(fromTier string) {}

// RecordCompute does nothing.
func (NoOpCollector) RecordCompute(success bool, duration time.Duration) {}

// RecordCircuitState does nothing.
func (NoOpCollector) RecordCircuitState(tier string, state CircuitState) {}

// RecordQueueDepth does nothing.
func (NoOpCollector) RecordQueueDepth(tier string, depth int) {}

// RecordWriteDropped does nothing.
func (NoOpCollector) RecordWriteDropped(tier string) {}

// RecordAsyncWrite does nothing.
func (NoOpCollector) RecordAsyncWrite(tier string, success bool, duration time.Duration) {}
