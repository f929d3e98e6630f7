// Package prometheus implements metrics.Collector on top of the Prometheus
// client library.
package prometheus

import (
	"time"

	"tiercache/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements metrics.Collector for Prometheus.
type Collector struct {
	namespace string

	tierHits     *prometheus.CounterVec
	tierMisses   *prometheus.CounterVec
	tierSets     *prometheus.CounterVec
	tierDeletes  *prometheus.CounterVec
	tierErrors   *prometheus.CounterVec
	tierDisabled *prometheus.CounterVec
	promotions   *prometheus.CounterVec
	computes     *prometheus.CounterVec

	circuitState *prometheus.GaugeVec
	circuitOpens *prometheus.CounterVec

	queueDepth    *prometheus.GaugeVec
	droppedWrites *prometheus.CounterVec
	asyncWrites   *prometheus.CounterVec

	getLatency     *prometheus.HistogramVec
	setLatency     *prometheus.HistogramVec
	deleteLatency  *prometheus.HistogramVec
	asyncLatency   *prometheus.HistogramVec
	computeLatency prometheus.Histogram
}

// NewCollector creates a Prometheus collector with all metrics under the
// given namespace.
func NewCollector(namespace string) *Collector {
	latencyBuckets := prometheus.ExponentialBuckets(0.0001, 2, 15) // 0.1ms to ~3s

	return &Collector{
		namespace: namespace,
		tierHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tier_hits_total",
				Help:      "Total number of cache hits per tier",
			},
			[]string{"tier"},
		),
		tierMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tier_misses_total",
				Help:      "Total number of cache misses per tier",
			},
			[]string{"tier"},
		),
		tierSets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tier_sets_total",
				Help:      "Total number of set operations per tier",
			},
			[]string{"tier", "status"},
		),
		tierDeletes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tier_deletes_total",
				Help:      "Total number of delete operations per tier",
			},
			[]string{"tier", "status"},
		),
		tierErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tier_errors_total",
				Help:      "Total number of tier operation errors",
			},
			[]string{"tier", "operation"},
		),
		tierDisabled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tier_disabled_total",
				Help:      "Times an external tier was latched unavailable",
			},
			[]string{"tier"},
		),
		promotions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "promotions_total",
				Help:      "Deep-tier hits promoted into faster tiers",
			},
			[]string{"from_tier"},
		),
		computes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "computes_total",
				Help:      "GetOrCompute producer invocations",
			},
			[]string{"status"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Circuit breaker state per tier (0=closed, 1=open, 2=half-open)",
			},
			[]string{"tier"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Total number of circuit breaker opens per tier",
			},
			[]string{"tier"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "demotion_queue_depth",
				Help:      "Current async demotion queue depth per tier",
			},
			[]string{"tier"},
		),
		droppedWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_writes_total",
				Help:      "Async demotion writes dropped due to backpressure",
			},
			[]string{"tier"},
		),
		asyncWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "async_writes_total",
				Help:      "Async demotion writes per tier",
			},
			[]string{"tier", "status"},
		),
		getLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "get_duration_seconds",
				Help:      "Tier get operation latency",
				Buckets:   latencyBuckets,
			},
			[]string{"tier"},
		),
		setLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "set_duration_seconds",
				Help:      "Tier set operation latency",
				Buckets:   latencyBuckets,
			},
			[]string{"tier"},
		),
		deleteLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "delete_duration_seconds",
				Help:      "Tier delete operation latency",
				Buckets:   latencyBuckets,
			},
			[]string{"tier"},
		),
		asyncLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "async_write_duration_seconds",
				Help:      "Async demotion write latency",
				Buckets:   latencyBuckets,
			},
			[]string{"tier"},
		),
		computeLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compute_duration_seconds",
				Help:      "GetOrCompute producer latency",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 18), // 1ms to ~2m
			},
		),
	}
}

// Register registers all metrics with the given registerer.
func (c *Collector) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.tierHits, c.tierMisses, c.tierSets, c.tierDeletes, c.tierErrors,
		c.tierDisabled, c.promotions, c.computes,
		c.circuitState, c.circuitOpens,
		c.queueDepth, c.droppedWrites, c.asyncWrites,
		c.getLatency, c.setLatency, c.deleteLatency, c.asyncLatency,
		c.computeLatency,
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister registers all metrics with the default registry and panics on
// failure.
func (c *Collector) MustRegister() {
	if err := c.Register(prometheus.DefaultRegisterer); err != nil {
		panic(err)
	}
}

// RecordTierGet records a tier get operation.
func (c *Collector) RecordTierGet(tier string, hit bool, duration time.Duration) {
	if hit {
		c.tierHits.WithLabelValues(tier).Inc()
	} else {
		c.tierMisses.WithLabelValues(tier).Inc()
	}
	c.getLatency.WithLabelValues(tier).Observe(duration.Seconds())
}

// RecordTierSet records a tier set operation.
func (c *Collector) RecordTierSet(tier string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
		c.tierErrors.WithLabelValues(tier, "set").Inc()
	}
	c.tierSets.WithLabelValues(tier, status).Inc()
	c.setLatency.WithLabelValues(tier).Observe(duration.Seconds())
}

// RecordTierDelete records a tier delete operation.
func (c *Collector) RecordTierDelete(tier string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
		c.tierErrors.WithLabelValues(tier, "delete").Inc()
	}
	c.tierDeletes.WithLabelValues(tier, status).Inc()
	c.deleteLatency.WithLabelValues(tier).Observe(duration.Seconds())
}

// RecordTierDisabled records a tier being latched unavailable.
func (c *Collector) RecordTierDisabled(tier string) {
	c.tierDisabled.WithLabelValues(tier).Inc()
}

// RecordPromotion records a deep-tier hit promoted into faster tiers.
func (c *Collector) RecordPromotion(fromTier string) {
	c.promotions.WithLabelValues(fromTier).Inc()
}

// RecordCompute records a GetOrCompute producer invocation.
func (c *Collector) RecordCompute(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	c.computes.WithLabelValues(status).Inc()
	c.computeLatency.Observe(duration.Seconds())
}

// RecordCircuitState records the current circuit breaker state.
func (c *Collector) RecordCircuitState(tier string, state metrics.CircuitState) {
	c.circuitState.WithLabelValues(tier).Set(float64(state))
	if state == metrics.CircuitOpen {
		c.circuitOpens.WithLabelValues(tier).Inc()
	}
}

// RecordQueueDepth records the current async demotion queue depth.
func (c *Collector) RecordQueueDepth(tier string, depth int) {
	c.queueDepth.WithLabelValues(tier).Set(float64(depth))
}

// RecordWriteDropped records a dropped async demotion write.
func (c *Collector) RecordWriteDropped(tier string) {
	c.droppedWrites.WithLabelValues(tier).Inc()
}

// RecordAsyncWrite records an async demotion write.
func (c *Collector) RecordAsyncWrite(tier string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	c.asyncWrites.WithLabelValues(tier, status).Inc()
	c.asyncLatency.WithLabelValues(tier).Observe(duration.Seconds())
}
