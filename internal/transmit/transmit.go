// Package transmit implements the HTTP transmitter that POSTs a serialized
// batch to the configured endpoint and reports a TransmissionResult.
package transmit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"

	"rask-log-pipeline/internal/model"
)

// ContentType selects the wire format and its associated header value.
type ContentType string

const (
	ContentTypeNDJSON ContentType = "application/x-ndjson"
	ContentTypeOTLP    ContentType = "application/x-protobuf"
)

// otlpCompressionThresholdBytes mirrors the Rust transmitter: NDJSON
// compresses once the batch crosses 100 entries (decided by the caller,
// which passes forceCompress to Send); OTLP payloads compress once their
// marshaled size exceeds this byte threshold.
const otlpCompressionThresholdBytes = 1024

// Config tunes the transmitter's HTTP client and identity headers.
type Config struct {
	Endpoint          string
	ConnectionTimeout time.Duration
	MaxConnections    int
	ForwarderVersion  string
	EnableCompression bool
}

// Result mirrors the Rust TransmissionResult: everything the reliability
// manager needs to decide whether to retry and what to log.
type Result struct {
	Success     bool
	StatusCode  int
	Latency     time.Duration
	BatchID     string
	BytesSent   int
	Compressed  bool
	RetryCount  int
	RetryAfter  time.Duration
}

// ConnectionStats are tracked purely via atomics - never under a lock - per
// spec §4.I.
type ConnectionStats struct {
	active int64
	reused int64
	total  int64
	failed int64
	bytes  int64
	errors int64
}

func (s *ConnectionStats) Snapshot() (active, reused, total, failed, bytes, errors int64) {
	return atomic.LoadInt64(&s.active),
		atomic.LoadInt64(&s.reused),
		atomic.LoadInt64(&s.total),
		atomic.LoadInt64(&s.failed),
		atomic.LoadInt64(&s.bytes),
		atomic.LoadInt64(&s.errors)
}

// Transmitter POSTs batches over a shared keep-alive HTTP client with a
// bounded connection pool.
type Transmitter struct {
	cfg    Config
	client *http.Client
	stats  ConnectionStats
}

// New constructs a Transmitter with a pooled http.Client sized by
// cfg.MaxConnections.
func New(cfg Config) *Transmitter {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 50
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxConnections,
		MaxIdleConnsPerHost: cfg.MaxConnections,
		MaxConnsPerHost:     cfg.MaxConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectionTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		DisableKeepAlives: false,
	}

	return &Transmitter{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectionTimeout,
		},
	}
}

// Stats returns the transmitter's atomically-tracked connection stats.
func (t *Transmitter) Stats() *ConnectionStats { return &t.stats }

// Send POSTs a single batch as the given content type, compressing when
// the payload crosses the format's compression threshold (or always, for
// NDJSON, when the caller's forceCompress is set - e.g. batch size > 100
// entries, the Rust transmitter's own rule, decided by the caller since
// that's a batch-shape concern, not a transmission concern).
func (t *Transmitter) Send(ctx context.Context, contentType ContentType, payload []byte, batch *model.Batch, forceCompress bool, retryCount int) (Result, error) {
	compress := forceCompress
	if contentType == ContentTypeOTLP && len(payload) > otlpCompressionThresholdBytes {
		compress = true
	}

	body := payload
	if compress {
		compressed, err := gzipCompress(payload)
		if err != nil {
			return Result{}, fmt.Errorf("transmit: gzip compress: %w", err)
		}
		body = compressed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("transmit: build request: %w", err)
	}
	t.buildHeaders(req, contentType, batch, compress)

	atomic.AddInt64(&t.stats.total, 1)
	atomic.AddInt64(&t.stats.active, 1)
	defer atomic.AddInt64(&t.stats.active, -1)

	start := time.Now()
	resp, err := t.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		atomic.AddInt64(&t.stats.failed, 1)
		atomic.AddInt64(&t.stats.errors, 1)
		return Result{
			Success:    false,
			Latency:    latency,
			BatchID:    batch.ID(),
			BytesSent:  len(body),
			Compressed: compress,
			RetryCount: retryCount,
		}, fmt.Errorf("transmit: request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	atomic.AddInt64(&t.stats.bytes, int64(len(body)))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		atomic.AddInt64(&t.stats.reused, 1)
	} else {
		atomic.AddInt64(&t.stats.failed, 1)
	}

	return Result{
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		Latency:    latency,
		BatchID:    batch.ID(),
		BytesSent:  len(body),
		Compressed: compress,
		RetryCount: retryCount,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}, nil
}

// parseRetryAfter interprets the Retry-After header as a whole number of
// seconds; an absent or malformed header yields zero, meaning "no override".
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func (t *Transmitter) buildHeaders(req *http.Request, contentType ContentType, batch *model.Batch, compressed bool) {
	req.Header.Set("Content-Type", string(contentType))
	if compressed {
		req.Header.Set("Content-Encoding", "gzip")
	}
	req.Header.Set("X-Batch-Id", batch.ID())
	req.Header.Set("X-Batch-Size", fmt.Sprintf("%d", batch.Size()))
	req.Header.Set("X-Batch-Type", string(batch.Type()))
	req.Header.Set("X-Forwarder-Version", t.cfg.ForwarderVersion)
	req.Header.Set("User-Agent", "rask-log-forwarder/"+t.cfg.ForwarderVersion)
}

func gzipCompress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
