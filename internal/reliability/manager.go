package reliability

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"rask-log-pipeline/internal/model"
	"rask-log-pipeline/internal/transmit"
)

// Sender is the subset of transmit.Transmitter the manager depends on,
// narrowed to ease testing with a fake.
type Sender interface {
	Send(ctx context.Context, contentType transmit.ContentType, payload []byte, batch *model.Batch, forceCompress bool, retryCount int) (transmit.Result, error)
}

// Manager wraps a Sender with the retry schedule, disk fallback, and
// metrics described in spec §4.J.
type Manager struct {
	sender  Sender
	retry   RetryConfig
	spool   *Spool
	metrics *Metrics
	logger  *logrus.Logger
	rng     *rand.Rand
}

// NewManager constructs a Manager.
func NewManager(sender Sender, retry RetryConfig, spool *Spool, logger *logrus.Logger) *Manager {
	return &Manager{
		sender:  sender,
		retry:   retry,
		spool:   spool,
		metrics: &Metrics{},
		logger:  logger,
		rng:     rand.New(rand.NewSource(1)),
	}
}

// Metrics exposes the manager's counters for the health aggregator and
// metrics endpoint.
func (m *Manager) Metrics() *Metrics { return m.metrics }

// Send attempts to transmit a batch, retrying transient failures with
// exponential backoff per RetryConfig. On exhaustion it spills the batch to
// disk; a non-transient failure (a 4xx other than 408/429) skips the
// remaining attempts and goes to the same disk fallback. A spill failure
// (including quota exceeded) is a permanent loss, logged and counted, but
// does not panic or block the pipeline.
func (m *Manager) Send(ctx context.Context, contentType transmit.ContentType, payload []byte, batch *model.Batch) error {
	var lastErr error
	// NDJSON batches of more than 100 entries are always gzipped; the
	// transmitter applies its own byte threshold to OTLP payloads.
	forceCompress := contentType == transmit.ContentTypeNDJSON && batch.Size() > 100

	for attempt := 1; attempt <= m.retry.MaxAttempts; attempt++ {
		result, err := m.sender.Send(ctx, contentType, payload, batch, forceCompress, attempt-1)
		latencySeconds := result.Latency.Seconds()

		if err == nil && result.Success {
			m.metrics.RecordBatchSent(true, batch.Size(), result.BytesSent, latencySeconds)
			return nil
		}

		lastErr = err
		if lastErr == nil {
			lastErr = fmt.Errorf("transmit: non-success status %d", result.StatusCode)
		}
		if !IsTransient(result.StatusCode, err) {
			m.metrics.RecordBatchSent(false, batch.Size(), result.BytesSent, latencySeconds)
			return m.fallback(batch, contentType, payload, lastErr)
		}

		if attempt == m.retry.MaxAttempts {
			break
		}

		m.metrics.RecordRetryAttempt(attempt)
		delay := NextDelay(m.retry, attempt, result.RetryAfter, m.rng)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			// Cancellation mid-backoff (typically a shutdown drain deadline)
			// still gets one fallback attempt rather than dropping the
			// batch outright.
			m.metrics.RecordBatchSent(false, batch.Size(), 0, 0)
			return m.fallback(batch, contentType, payload, ctx.Err())
		case <-timer.C:
		}
	}

	m.metrics.RecordBatchSent(false, batch.Size(), 0, 0)
	return m.fallback(batch, contentType, payload, lastErr)
}

func (m *Manager) fallback(batch *model.Batch, contentType transmit.ContentType, payload []byte, cause error) error {
	if m.spool == nil || !m.spool.cfg.Enabled {
		if m.logger != nil {
			m.logger.WithError(cause).WithField("batch_id", batch.ID()).Error("batch permanently lost: disk fallback disabled")
		}
		return cause
	}

	if err := m.spool.Spill(batch, string(contentType), payload, time.Now()); err != nil {
		if m.logger != nil {
			m.logger.WithError(err).WithField("batch_id", batch.ID()).Error("batch permanently lost: disk fallback write failed")
		}
		return err
	}

	m.metrics.RecordDiskFallback()
	if m.logger != nil {
		m.logger.WithField("batch_id", batch.ID()).Warn("batch spilled to disk after exhausting retries")
	}
	return nil
}

// ReplayOnce scans the spill directory once and attempts to resend every
// discovered batch in age order, deleting each on success and leaving
// failures for the next pass.
func (m *Manager) ReplayOnce(ctx context.Context, contentType transmit.ContentType) error {
	if m.spool == nil {
		return nil
	}

	files, err := m.spool.Scan(time.Now())
	if err != nil {
		return err
	}

	for _, f := range files {
		payload, err := os.ReadFile(f.Path)
		if err != nil {
			if m.logger != nil {
				m.logger.WithError(err).WithField("path", f.Path).Warn("replay: failed to read spilled payload")
			}
			continue
		}
		batch := model.NewReplayBatch(f.Meta.BatchID, model.BatchType(f.Meta.BatchType), f.Meta.EntryCount, f.Meta.SpilledAt)

		result, sendErr := m.sender.Send(ctx, contentType, payload, batch, false, 0)
		if sendErr == nil && result.Success {
			m.spool.Remove(f)
			m.metrics.RecordBatchSent(true, batch.Size(), result.BytesSent, result.Latency.Seconds())
			continue
		}
		if m.logger != nil {
			m.logger.WithField("batch_id", batch.ID()).Debug("replay: resend failed, will retry next scan")
		}
	}
	return nil
}
