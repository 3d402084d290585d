package buffer

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	"rask-log-pipeline/internal/model"
)

// ErrFull is returned by Push when the buffer has no room: immediately under
// StrategyDrop, or after the single retry of StrategyYield/StrategySleep
// still finds it full.
var ErrFull = errors.New("buffer: full, push dropped")

// ErrClosed is returned by Push/Pop once Close has been called.
var ErrClosed = errors.New("buffer: closed")

// Metrics holds the atomic counters tracked across the buffer's lifetime.
// All fields are accessed exclusively through sync/atomic; the struct is
// safe to read concurrently with Push/Pop via DetailedMetrics.
type Metrics struct {
	messagesSent        int64
	messagesReceived    int64
	messagesDropped     int64
	batchesFormed       int64
	backpressureEvents  int64
}

// Snapshot is a point-in-time copy of Metrics, safe to pass by value.
type Snapshot struct {
	MessagesSent       int64
	MessagesReceived   int64
	MessagesDropped    int64
	BatchesFormed      int64
	BackpressureEvents int64
	QueueDepth         int
	Capacity           int
	FillRatio          float64
	Level              Level
}

// Buffer is a bounded, multi-producer multi-consumer queue of enriched
// records with configurable backpressure behavior.
type Buffer struct {
	cfg     Config
	slots   chan model.EnrichedRecord
	metrics Metrics
	closed  int32
}

// New constructs a Buffer with the given configuration.
func New(cfg Config) *Buffer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	return &Buffer{
		cfg:   cfg,
		slots: make(chan model.EnrichedRecord, cfg.Capacity),
	}
}

// Capacity returns the configured maximum depth.
func (b *Buffer) Capacity() int { return b.cfg.Capacity }

// Len returns the current queue depth.
func (b *Buffer) Len() int { return len(b.slots) }

// IsEmpty reports whether the buffer currently holds no entries.
func (b *Buffer) IsEmpty() bool { return b.Len() == 0 }

// IsFull reports whether the buffer is at capacity.
func (b *Buffer) IsFull() bool { return b.Len() >= b.cfg.Capacity }

// FillRatio returns the buffer's current depth as a fraction of capacity.
func (b *Buffer) FillRatio() float64 {
	if b.cfg.Capacity == 0 {
		return 0
	}
	return float64(b.Len()) / float64(b.cfg.Capacity)
}

// NeedsBackpressure reports whether the fill ratio is at or above the
// configured backpressure threshold.
func (b *Buffer) NeedsBackpressure() bool {
	return b.cfg.EnableBackpressure && b.FillRatio() >= b.cfg.BackpressureThreshold
}

// BackpressureLevel classifies the current fill ratio: High>=0.95,
// Medium>=0.8, Low>=0.5, else None.
func (b *Buffer) BackpressureLevel() Level {
	ratio := b.FillRatio()
	switch {
	case ratio >= 0.95:
		return LevelHigh
	case ratio >= 0.8:
		return LevelMedium
	case ratio >= 0.5:
		return LevelLow
	default:
		return LevelNone
	}
}

// Push enqueues a record, applying the configured strategy only once the
// channel is genuinely full. Crossing the soft backpressure threshold never
// rejects a push by itself: it only pauses for BackpressureDelay and counts
// a backpressure event, regardless of strategy, before the enqueue attempt
// proceeds. A successful enqueue and a strategy-driven drop both count
// towards messagesSent - the counter tracks send attempts, not successful
// enqueues, matching the ported buffer's semantics.
func (b *Buffer) Push(ctx context.Context, rec model.EnrichedRecord, strategy Strategy) error {
	if atomic.LoadInt32(&b.closed) == 1 {
		return ErrClosed
	}

	if b.NeedsBackpressure() {
		atomic.AddInt64(&b.metrics.backpressureEvents, 1)
		if err := b.waitBackpressureDelay(ctx); err != nil {
			return b.countDropped(err)
		}
	}

	select {
	case b.slots <- rec:
		atomic.AddInt64(&b.metrics.messagesSent, 1)
		return nil
	default:
		return b.handleFull(ctx, rec, strategy)
	}
}

// waitBackpressureDelay pauses for BackpressureDelay when the buffer is over
// its soft threshold. It applies uniformly across every strategy and never
// itself rejects a push - only handleFull, reacting to an actually full
// channel, does that.
func (b *Buffer) waitBackpressureDelay(ctx context.Context) error {
	if b.cfg.BackpressureDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(b.cfg.BackpressureDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// handleFull decides what to do once the channel has no room at all; this
// is the only place a push can be dropped or blocked.
func (b *Buffer) handleFull(ctx context.Context, rec model.EnrichedRecord, strategy Strategy) error {
	switch strategy {
	case StrategyYield:
		runtime.Gosched()
		return b.retryOnce(rec)
	case StrategySleep:
		timer := time.NewTimer(b.cfg.BackpressureDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return b.countDropped(ctx.Err())
		case <-timer.C:
		}
		return b.retryOnce(rec)
	case StrategyBlock:
		select {
		case b.slots <- rec:
			atomic.AddInt64(&b.metrics.messagesSent, 1)
			return nil
		case <-ctx.Done():
			return b.countDropped(ctx.Err())
		}
	case StrategyDrop:
		fallthrough
	default:
		return b.countDropped(ErrFull)
	}
}

// retryOnce makes a single further non-blocking send attempt, used after a
// yield/sleep delay has given the consumer a chance to make room.
func (b *Buffer) retryOnce(rec model.EnrichedRecord) error {
	select {
	case b.slots <- rec:
		atomic.AddInt64(&b.metrics.messagesSent, 1)
		return nil
	default:
		return b.countDropped(ErrFull)
	}
}

// countDropped records a send attempt that ended in a drop and returns err.
func (b *Buffer) countDropped(err error) error {
	atomic.AddInt64(&b.metrics.messagesSent, 1)
	atomic.AddInt64(&b.metrics.messagesDropped, 1)
	return err
}

// Pop removes and returns the next record, blocking until one is available
// or ctx is cancelled.
func (b *Buffer) Pop(ctx context.Context) (model.EnrichedRecord, error) {
	select {
	case rec, ok := <-b.slots:
		if !ok {
			return model.EnrichedRecord{}, ErrClosed
		}
		atomic.AddInt64(&b.metrics.messagesReceived, 1)
		return rec, nil
	case <-ctx.Done():
		return model.EnrichedRecord{}, ctx.Err()
	}
}

// TryPop performs a non-blocking pop.
func (b *Buffer) TryPop() (model.EnrichedRecord, bool) {
	select {
	case rec, ok := <-b.slots:
		if !ok {
			return model.EnrichedRecord{}, false
		}
		atomic.AddInt64(&b.metrics.messagesReceived, 1)
		return rec, true
	default:
		return model.EnrichedRecord{}, false
	}
}

// RecordBatchFormed increments the batches-formed counter; called by the
// batcher once it flushes a batch drained from this buffer.
func (b *Buffer) RecordBatchFormed() {
	atomic.AddInt64(&b.metrics.batchesFormed, 1)
}

// Close marks the buffer closed. Any goroutine blocked in Pop waiting on a
// message sees ErrClosed once the channel drains and is closed.
func (b *Buffer) Close() {
	if atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		close(b.slots)
	}
}

// DetailedMetrics returns a point-in-time snapshot of all counters plus
// derived fill/level fields.
func (b *Buffer) DetailedMetrics() Snapshot {
	return Snapshot{
		MessagesSent:       atomic.LoadInt64(&b.metrics.messagesSent),
		MessagesReceived:   atomic.LoadInt64(&b.metrics.messagesReceived),
		MessagesDropped:    atomic.LoadInt64(&b.metrics.messagesDropped),
		BatchesFormed:      atomic.LoadInt64(&b.metrics.batchesFormed),
		BackpressureEvents: atomic.LoadInt64(&b.metrics.backpressureEvents),
		QueueDepth:         b.Len(),
		Capacity:           b.cfg.Capacity,
		FillRatio:          b.FillRatio(),
		Level:              b.BackpressureLevel(),
	}
}

// ResetMetrics zeroes all counters without affecting queued entries.
func (b *Buffer) ResetMetrics() {
	atomic.StoreInt64(&b.metrics.messagesSent, 0)
	atomic.StoreInt64(&b.metrics.messagesReceived, 0)
	atomic.StoreInt64(&b.metrics.messagesDropped, 0)
	atomic.StoreInt64(&b.metrics.batchesFormed, 0)
	atomic.StoreInt64(&b.metrics.backpressureEvents, 0)
}
