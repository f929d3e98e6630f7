// Package writer provides a bounded-queue worker pool for write-behind
// demotion to the external cache tiers. Demotion writes are best-effort by
// contract, so dropping under backpressure loses nothing the caller was
// promised.
package writer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tiercache/pkg/metrics"
)

// Sink is the destination for demotion writes: a serialized value bound for
// an external tier.
type Sink interface {
	Write(ctx context.Context, key, value string, ttl time.Duration) error
	Name() string
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc struct {
	Fn       func(ctx context.Context, key, value string, ttl time.Duration) error
	TierName string
}

// Write calls the wrapped function.
func (s SinkFunc) Write(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.Fn(ctx, key, value, ttl)
}

// Name returns the tier name.
func (s SinkFunc) Name() string { return s.TierName }

// DemotionWriter queues demotion writes and applies them from a worker pool.
type DemotionWriter struct {
	sink       Sink
	queue      chan writeOp
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	config     Config
	metrics    metrics.Collector
	tierName   string

	droppedWrites int64
	totalWrites   int64
	failedWrites  int64

	depthTicker *time.Ticker
	depthStop   chan struct{}
}

type writeOp struct {
	key   string
	value string
	ttl   time.Duration
}

// Config configures the demotion writer.
type Config struct {
	// QueueSize is the bounded queue size (default: 1000)
	QueueSize int

	// Workers is the number of concurrent workers (default: 2)
	Workers int

	// MaxWaitTime is the max time to wait when the queue is full before
	// dropping the write (default: 10ms)
	MaxWaitTime time.Duration
}

// NewDemotionWriter creates a writer draining into sink.
// The writer starts immediately and must be stopped with Close.
func NewDemotionWriter(sink Sink, config Config) *DemotionWriter {
	return NewDemotionWriterWithMetrics(sink, config, metrics.NoOpCollector{})
}

// NewDemotionWriterWithMetrics creates a writer reporting into the given
// collector.
func NewDemotionWriterWithMetrics(sink Sink, config Config, collector metrics.Collector) *DemotionWriter {
	if config.QueueSize <= 0 {
		config.QueueSize = 1000
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.MaxWaitTime == 0 {
		config.MaxWaitTime = 10 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &DemotionWriter{
		sink:        sink,
		queue:       make(chan writeOp, config.QueueSize),
		ctx:         ctx,
		cancelFunc:  cancel,
		config:      config,
		metrics:     collector,
		tierName:    sink.Name(),
		depthTicker: time.NewTicker(5 * time.Second),
		depthStop:   make(chan struct{}),
	}

	for i := 0; i < config.Workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}

	go w.reportDepth()

	return w
}

// Write enqueues a demotion write. If the queue stays full past MaxWaitTime
// the write is dropped and ErrQueueFull returned.
func (w *DemotionWriter) Write(ctx context.Context, key, value string, ttl time.Duration) error {
	select {
	case <-w.ctx.Done():
		return ErrWriterClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	op := writeOp{key: key, value: value, ttl: ttl}

	timer := time.NewTimer(w.config.MaxWaitTime)
	defer timer.Stop()

	select {
	case w.queue <- op:
		atomic.AddInt64(&w.totalWrites, 1)
		return nil
	case <-timer.C:
		atomic.AddInt64(&w.droppedWrites, 1)
		w.metrics.RecordWriteDropped(w.tierName)
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return ErrWriterClosed
	}
}

func (w *DemotionWriter) worker() {
	defer w.wg.Done()

	for {
		select {
		case op := <-w.queue:
			w.apply(op)
		case <-w.ctx.Done():
			// Drain what is already queued before exiting.
			for {
				select {
				case op := <-w.queue:
					w.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (w *DemotionWriter) apply(op writeOp) {
	start := time.Now()
	err := w.sink.Write(context.Background(), op.key, op.value, op.ttl)
	w.metrics.RecordAsyncWrite(w.tierName, err == nil, time.Since(start))

	if err != nil {
		atomic.AddInt64(&w.failedWrites, 1)
	}
}

// Flush waits until the queue drains or the timeout elapses.
func (w *DemotionWriter) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for len(w.queue) > 0 {
		if time.Now().After(deadline) {
			return ErrFlushTimeout
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

// Close stops accepting writes and waits for queued writes to be applied.
func (w *DemotionWriter) Close() error {
	close(w.depthStop)
	w.depthTicker.Stop()

	w.cancelFunc()
	w.wg.Wait()

	return nil
}

func (w *DemotionWriter) reportDepth() {
	for {
		select {
		case <-w.depthTicker.C:
			w.metrics.RecordQueueDepth(w.tierName, len(w.queue))
		case <-w.depthStop:
			return
		}
	}
}

// Stats returns current writer counters.
func (w *DemotionWriter) Stats() Stats {
	return Stats{
		QueueDepth:    len(w.queue),
		DroppedWrites: atomic.LoadInt64(&w.droppedWrites),
		TotalWrites:   atomic.LoadInt64(&w.totalWrites),
		FailedWrites:  atomic.LoadInt64(&w.failedWrites),
	}
}
