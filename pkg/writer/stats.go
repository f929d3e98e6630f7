package writer

import "errors"

// Stats provides counters for demotion writer activity.
type Stats struct {
	// QueueDepth is the current number of pending writes in the queue
	QueueDepth int

	// DroppedWrites is the total number of writes dropped due to backpressure
	DroppedWrites int64

	// TotalWrites is the total number of writes accepted
	TotalWrites int64

	// FailedWrites is the total number of writes the sink rejected
	FailedWrites int64
}

// Errors returned by demotion writer operations.
var (
	// ErrQueueFull is returned when the queue is full and MaxWaitTime elapsed
	ErrQueueFull = errors.New("writer: queue full, write dropped")

	// ErrWriterClosed is returned when writing to a closed writer
	ErrWriterClosed = errors.New("writer: writer is closed")

	// ErrFlushTimeout is returned when Flush times out waiting for the queue
	ErrFlushTimeout = errors.New("writer: flush timeout exceeded")
)
