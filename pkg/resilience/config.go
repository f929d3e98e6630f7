package resilience

import "time"

// Config configures resilience protection for a tier store.
type Config struct {
	// Timeout applied to each store operation
	Timeout time.Duration

	// CircuitBreaker configures the breaker behavior
	CircuitBreaker BreakerConfig
}

// BreakerConfig configures circuit breaker behavior.
type BreakerConfig struct {
	// MaxRequests is the number of requests allowed through while the
	// breaker is half-open. Default: 5
	MaxRequests uint32

	// Interval is the cyclic period of the closed state after which the
	// breaker clears its counts. Zero means never. Default: 60s
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing with a
	// half-open request. Default: 30s
	Timeout time.Duration

	// ReadyToTrip is called with a copy of Counts whenever a request
	// fails. Nil uses the default threshold.
	ReadyToTrip func(counts Counts) bool
}

// Counts holds the numbers of requests and their successes/failures.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// DefaultConfig returns sensible defaults: a 1s operation timeout and a
// breaker that trips at a 15% failure rate once 20 requests have been seen.
func DefaultConfig() Config {
	return Config{
		Timeout: time.Second,
		CircuitBreaker: BreakerConfig{
			MaxRequests: 5,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts Counts) bool {
				if counts.Requests < 20 {
					return false
				}
				failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRate >= 0.15
			},
		},
	}
}

// WithTimeout returns a copy of the config with the given operation timeout.
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}

// WithBreakerTimeout returns a copy with the given open-state duration.
func (c Config) WithBreakerTimeout(timeout time.Duration) Config {
	c.CircuitBreaker.Timeout = timeout
	return c
}
