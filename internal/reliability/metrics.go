package reliability

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rask_forwarder_batches_sent_total",
		Help: "Total batches sent, partitioned by outcome",
	}, []string{"status"})

	entriesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rask_forwarder_entries_sent_total",
		Help: "Total enriched records successfully transmitted",
	})

	bytesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rask_forwarder_bytes_sent_total",
		Help: "Total bytes transmitted on the wire",
	})

	transmissionLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rask_forwarder_transmission_latency_seconds",
		Help:    "Batch transmission latency, bucketed by batch size class",
		Buckets: prometheus.DefBuckets,
	}, []string{"size_class"})

	diskFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rask_forwarder_disk_fallback_total",
		Help: "Total batches spilled to disk after retry exhaustion",
	})

	retryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rask_forwarder_retry_attempts_total",
		Help: "Total retry attempts, partitioned by attempt number",
	}, []string{"attempt_number"})

	healthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rask_forwarder_health_checks_total",
		Help: "Total health checks performed, partitioned by outcome",
	}, []string{"status"})

	memoryUsageBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rask_forwarder_memory_usage_bytes",
		Help: "Process resident memory, sampled periodically",
	})

	activeConnectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rask_forwarder_active_connections",
		Help: "Current number of active transmission connections",
	})
)

// SizeClass buckets a batch's entry count into the three histogram labels
// the spec names: small (<=100), medium (<=1000), large (>1000).
func SizeClass(entryCount int) string {
	switch {
	case entryCount <= 100:
		return "small"
	case entryCount <= 1000:
		return "medium"
	default:
		return "large"
	}
}

// Metrics aggregates the reliability manager's atomic counters alongside
// the promauto collectors above - the atomics back MetricsSnapshot reads
// that must never block on Prometheus's internal locking, while the
// promauto collectors back the /metrics scrape endpoint.
type Metrics struct {
	batchesSuccess int64
	batchesFailure int64
	entriesSent    int64
	bytesSent      int64
	diskFallback   int64
	retryAttempts  int64
	healthSuccess  int64
	healthFailure  int64
}

// RecordBatchSent records a completed transmission attempt's outcome,
// entry/byte counts, and latency bucket.
func (m *Metrics) RecordBatchSent(success bool, entryCount int, byteCount int, latencySeconds float64) {
	if success {
		atomic.AddInt64(&m.batchesSuccess, 1)
		atomic.AddInt64(&m.entriesSent, int64(entryCount))
		atomic.AddInt64(&m.bytesSent, int64(byteCount))
		batchesSentTotal.WithLabelValues("success").Inc()
		entriesSentTotal.Add(float64(entryCount))
	} else {
		atomic.AddInt64(&m.batchesFailure, 1)
		batchesSentTotal.WithLabelValues("failure").Inc()
	}
	bytesSentTotal.Add(float64(byteCount))
	transmissionLatencySeconds.WithLabelValues(SizeClass(entryCount)).Observe(latencySeconds)
}

// RecordDiskFallback records one batch spilled to disk after exhausting retries.
func (m *Metrics) RecordDiskFallback() {
	atomic.AddInt64(&m.diskFallback, 1)
	diskFallbackTotal.Inc()
}

// RecordRetryAttempt records one retry at the given attempt number.
func (m *Metrics) RecordRetryAttempt(attempt int) {
	atomic.AddInt64(&m.retryAttempts, 1)
	retryAttemptsTotal.WithLabelValues(attemptLabel(attempt)).Inc()
}

// RecordHealthCheck records one health check outcome.
func (m *Metrics) RecordHealthCheck(success bool) {
	if success {
		atomic.AddInt64(&m.healthSuccess, 1)
		healthChecksTotal.WithLabelValues("success").Inc()
	} else {
		atomic.AddInt64(&m.healthFailure, 1)
		healthChecksTotal.WithLabelValues("failure").Inc()
	}
}

// SetMemoryUsage publishes the current resident memory sample.
func (m *Metrics) SetMemoryUsage(bytes float64) { memoryUsageBytes.Set(bytes) }

// SetActiveConnections publishes the current active-connection count.
func (m *Metrics) SetActiveConnections(n float64) { activeConnectionsGauge.Set(n) }

// Snapshot is a point-in-time copy of the atomic counters.
type Snapshot struct {
	BatchesSuccess int64
	BatchesFailure int64
	EntriesSent    int64
	BytesSent      int64
	DiskFallback   int64
	RetryAttempts  int64
	HealthSuccess  int64
	HealthFailure  int64
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		BatchesSuccess: atomic.LoadInt64(&m.batchesSuccess),
		BatchesFailure: atomic.LoadInt64(&m.batchesFailure),
		EntriesSent:    atomic.LoadInt64(&m.entriesSent),
		BytesSent:      atomic.LoadInt64(&m.bytesSent),
		DiskFallback:   atomic.LoadInt64(&m.diskFallback),
		RetryAttempts:  atomic.LoadInt64(&m.retryAttempts),
		HealthSuccess:  atomic.LoadInt64(&m.healthSuccess),
		HealthFailure:  atomic.LoadInt64(&m.healthFailure),
	}
}

func attemptLabel(attempt int) string {
	switch {
	case attempt <= 1:
		return "1"
	case attempt == 2:
		return "2"
	case attempt == 3:
		return "3"
	case attempt == 4:
		return "4"
	default:
		return "5+"
	}
}
