// Package resilience wraps tier stores with circuit breaker and timeout
// protection. The tiered cache latches a failed tier off permanently;
// wrapping a store with a breaker instead gives operators automatic
// recovery probing, at the cost of the breaker's open-state rejections
// counting as ordinary store errors.
//
// Note the interaction: handing a breaker-wrapped store to the tiered cache
// means the first error still latches the tier. Use the wrappers where the
// caller manages availability itself, or re-enables tiers based on breaker
// state.
package resilience

import (
	"context"
	"time"

	"tiercache/pkg/cache"
	"tiercache/pkg/logging"
	"tiercache/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// breakerCore is the shared breaker/timeout machinery for both store kinds.
type breakerCore struct {
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	stats   metrics.Collector
	logger  *logging.Logger
	name    string
}

func newBreakerCore(name string, config Config, collector metrics.Collector) *breakerCore {
	logger := logging.Global().Named("resilience").Named(name)

	core := &breakerCore{
		timeout: config.Timeout,
		stats:   collector,
		logger:  logger,
		name:    name,
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.CircuitBreaker.MaxRequests,
		Interval:    config.CircuitBreaker.Interval,
		Timeout:     config.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if config.CircuitBreaker.ReadyToTrip != nil {
				return config.CircuitBreaker.ReadyToTrip(Counts{
					Requests:             counts.Requests,
					TotalSuccesses:       counts.TotalSuccesses,
					TotalFailures:        counts.TotalFailures,
					ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
					ConsecutiveFailures:  counts.ConsecutiveFailures,
				})
			}
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("store", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)

			var state metrics.CircuitState
			switch to {
			case gobreaker.StateClosed:
				state = metrics.CircuitClosed
			case gobreaker.StateHalfOpen:
				state = metrics.CircuitHalfOpen
			case gobreaker.StateOpen:
				state = metrics.CircuitOpen
			}
			core.stats.RecordCircuitState(name, state)
		},
	}

	core.cb = gobreaker.NewCircuitBreaker(settings)
	return core
}

// execute runs op through the breaker with the configured timeout, mapping
// breaker and deadline errors to the cache sentinels. Cache misses pass
// through the breaker as successes: a miss is an answer, not a failure.
func (bc *breakerCore) execute(ctx context.Context, operation string, op func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if bc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, bc.timeout)
		defer cancel()
	}

	result, err := bc.cb.Execute(func() (interface{}, error) {
		v, err := op(ctx)
		if cache.IsNotFound(err) {
			return notFoundSentinel{}, nil
		}
		return v, err
	})

	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			bc.logger.Warn("circuit breaker rejected request",
				zap.String("operation", operation),
			)
			return nil, cache.ErrCircuitOpen
		}
		if ctx.Err() == context.DeadlineExceeded {
			bc.logger.Warn("store operation timeout",
				zap.String("operation", operation),
				zap.Duration("timeout", bc.timeout),
			)
			return nil, cache.ErrTimeout
		}
		return nil, err
	}

	if _, miss := result.(notFoundSentinel); miss {
		return nil, cache.ErrKeyNotFound
	}
	return result, nil
}

type notFoundSentinel struct{}

// RemoteStore wraps a cache.RemoteStore with breaker and timeout protection.
type RemoteStore struct {
	inner cache.RemoteStore
	core  *breakerCore
}

// NewRemoteStore wraps inner with the given resilience config.
func NewRemoteStore(inner cache.RemoteStore, config Config) *RemoteStore {
	return NewRemoteStoreWithMetrics(inner, config, metrics.NoOpCollector{})
}

// NewRemoteStoreWithMetrics wraps inner, reporting breaker transitions into
// the collector.
func NewRemoteStoreWithMetrics(inner cache.RemoteStore, config Config, collector metrics.Collector) *RemoteStore {
	return &RemoteStore{
		inner: inner,
		core:  newBreakerCore(inner.Name(), config, collector),
	}
}

// Get implements cache.RemoteStore.
func (s *RemoteStore) Get(ctx context.Context, key string) (string, error) {
	result, err := s.core.execute(ctx, "get", func(ctx context.Context) (interface{}, error) {
		return s.inner.Get(ctx, key)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// SetWithExpiry implements cache.RemoteStore.
func (s *RemoteStore) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.core.execute(ctx, "set", func(ctx context.Context) (interface{}, error) {
		return nil, s.inner.SetWithExpiry(ctx, key, value, ttl)
	})
	return err
}

// Delete implements cache.RemoteStore.
func (s *RemoteStore) Delete(ctx context.Context, key string) error {
	_, err := s.core.execute(ctx, "delete", func(ctx context.Context) (interface{}, error) {
		return nil, s.inner.Delete(ctx, key)
	})
	return err
}

// Name implements cache.RemoteStore.
func (s *RemoteStore) Name() string {
	return s.inner.Name()
}

// State returns the current breaker state.
func (s *RemoteStore) State() gobreaker.State {
	return s.core.cb.State()
}

// DurableStore wraps a cache.DurableStore with breaker and timeout
// protection.
type DurableStore struct {
	inner cache.DurableStore
	core  *breakerCore
}

// NewDurableStore wraps inner with the given resilience config.
func NewDurableStore(inner cache.DurableStore, config Config) *DurableStore {
	return NewDurableStoreWithMetrics(inner, config, metrics.NoOpCollector{})
}

// NewDurableStoreWithMetrics wraps inner, reporting breaker transitions into
// the collector.
func NewDurableStoreWithMetrics(inner cache.DurableStore, config Config, collector metrics.Collector) *DurableStore {
	return &DurableStore{
		inner: inner,
		core:  newBreakerCore(inner.Name(), config, collector),
	}
}

// Get implements cache.DurableStore.
func (s *DurableStore) Get(ctx context.Context, key string) (string, error) {
	result, err := s.core.execute(ctx, "get", func(ctx context.Context) (interface{}, error) {
		return s.inner.Get(ctx, key)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Upsert implements cache.DurableStore.
func (s *DurableStore) Upsert(ctx context.Context, key, value string, expiresAt time.Time) error {
	_, err := s.core.execute(ctx, "upsert", func(ctx context.Context) (interface{}, error) {
		return nil, s.inner.Upsert(ctx, key, value, expiresAt)
	})
	return err
}

// Delete implements cache.DurableStore.
func (s *DurableStore) Delete(ctx context.Context, key string) error {
	_, err := s.core.execute(ctx, "delete", func(ctx context.Context) (interface{}, error) {
		return nil, s.inner.Delete(ctx, key)
	})
	return err
}

// DeleteAll implements cache.DurableStore.
func (s *DurableStore) DeleteAll(ctx context.Context) error {
	_, err := s.core.execute(ctx, "delete_all", func(ctx context.Context) (interface{}, error) {
		return nil, s.inner.DeleteAll(ctx)
	})
	return err
}

// Name implements cache.DurableStore.
func (s *DurableStore) Name() string {
	return s.inner.Name()
}

// State returns the current breaker state.
func (s *DurableStore) State() gobreaker.State {
	return s.core.cb.State()
}
