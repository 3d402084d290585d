// Package batch drives the flush policy that groups records pulled from the
// buffer into immutable model.Batch values, ready for serialization and
// transmission.
package batch

import (
	"context"
	"time"

	"rask-log-pipeline/internal/model"
)

// Config tunes the batcher's three flush triggers.
type Config struct {
	MaxSize       int
	MaxWait       time.Duration
	MaxMemorySize int64 // cumulative estimated serialized bytes; 0 disables
}

// Source is the pull side of the upstream buffer.
type Source interface {
	Pop(ctx context.Context) (model.EnrichedRecord, error)
	TryPop() (model.EnrichedRecord, bool)
}

// Batcher collects EnrichedRecords from a Source and flushes them as
// immutable Batches once any of size, age, or memory-estimate thresholds
// fire - whichever comes first.
type Batcher struct {
	cfg Config
	seq uint64
}

// New constructs a Batcher.
func New(cfg Config) *Batcher {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10_000
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 500 * time.Millisecond
	}
	return &Batcher{cfg: cfg}
}

// estimateSize approximates the on-wire footprint of one record, used only
// to evaluate the memory flush trigger - it need not be exact.
func estimateSize(rec model.EnrichedRecord) int64 {
	size := int64(len(rec.Message)) + int64(len(rec.Timestamp)) + int64(len(rec.ContainerID)) + int64(len(rec.ServiceName)) + 64
	for k, v := range rec.Fields {
		size += int64(len(k) + len(v))
	}
	return size
}

// CollectOne pulls records from src until the size, wait, or memory
// threshold fires, or the parent ctx is cancelled. It returns the collected
// records (possibly empty, if ctx was cancelled before any arrived) and
// whether the flush fired due to the wait timeout rather than size/memory
// being hit. A deadline derived from MaxWait bounds every individual Pop, so
// the timeout fires even while blocked waiting for the batch's first entry.
func (b *Batcher) CollectOne(ctx context.Context, src Source) ([]model.EnrichedRecord, bool) {
	entries := make([]model.EnrichedRecord, 0, b.cfg.MaxSize)
	var memEstimate int64

	deadline := time.Now().Add(b.cfg.MaxWait)

	for {
		waitCtx, cancel := context.WithDeadline(ctx, deadline)
		rec, err := src.Pop(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return entries, false
			}
			// Deadline reached: MaxWait elapsed without filling the batch.
			return entries, true
		}

		entries = append(entries, rec)
		memEstimate += estimateSize(rec)

		if len(entries) >= b.cfg.MaxSize {
			return entries, false
		}
		if b.cfg.MaxMemorySize > 0 && memEstimate >= b.cfg.MaxMemorySize {
			return entries, false
		}

		for len(entries) < b.cfg.MaxSize {
			rec, ok := src.TryPop()
			if !ok {
				break
			}
			entries = append(entries, rec)
			memEstimate += estimateSize(rec)
			if b.cfg.MaxMemorySize > 0 && memEstimate >= b.cfg.MaxMemorySize {
				return entries, false
			}
		}
		if len(entries) >= b.cfg.MaxSize {
			return entries, false
		}
		if time.Now().After(deadline) {
			return entries, true
		}
	}
}

// Flush forms an immutable Batch from collected entries, tagging it with
// the trigger-derived BatchType. Empty entry sets are rejected by
// model.NewBatch; callers should skip flushing when nothing was collected.
func (b *Batcher) Flush(entries []model.EnrichedRecord, timedOut bool, now time.Time) (*model.Batch, error) {
	b.seq++
	batchType := model.BatchSizeBased
	if timedOut {
		batchType = model.BatchTimeBased
	}
	return model.NewBatch(b.seq, batchType, entries, now)
}

// FlushOnShutdown drains whatever remains in src (non-blocking) and forms a
// final Batch tagged FlushOnShutdown, even if below every other threshold.
func (b *Batcher) FlushOnShutdown(src Source, now time.Time) (*model.Batch, error) {
	var entries []model.EnrichedRecord
	for {
		rec, ok := src.TryPop()
		if !ok {
			break
		}
		entries = append(entries, rec)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	b.seq++
	return model.NewBatch(b.seq, model.BatchFlushOnShutdown, entries, now)
}
