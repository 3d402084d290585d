// Package metrics exposes the forwarder's Prometheus scrape endpoint and the
// buffer/process gauges that don't belong to any single collaborator: queue
// depth, fill ratio, and backpressure level come from internal/buffer;
// resident memory comes from a periodic gopsutil sample. Per-batch counters
// and histograms (§4.J) live next to the collaborator that produces them, in
// internal/reliability/metrics.go.
package metrics

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
)

var (
	bufferQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rask_forwarder_buffer_queue_depth",
		Help: "Current number of enriched records queued in the shared buffer",
	})

	bufferFillRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rask_forwarder_buffer_fill_ratio",
		Help: "Current buffer depth as a fraction of capacity",
	})

	bufferBackpressureLevel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rask_forwarder_buffer_backpressure_level",
		Help: "1 if the buffer is currently at the named backpressure level, 0 otherwise",
	}, []string{"level"})

	bufferBackpressureEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rask_forwarder_buffer_backpressure_events_total",
		Help: "Total number of times the buffer crossed into a backpressure strategy",
	})

	processMemoryBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rask_forwarder_process_memory_bytes",
		Help: "Resident set size of the forwarder process",
	})
)

// BufferSnapshot is the subset of buffer.Snapshot this package reports,
// kept narrow so internal/metrics doesn't import internal/buffer directly
// and risk a cycle if buffer ever wants to report through here.
type BufferSnapshot struct {
	QueueDepth         int
	Capacity           int
	FillRatio          float64
	Level              string
	BackpressureEvents int64
}

// levels this gauge ever labels, so stale labels from a previous level
// are reset to 0 rather than left dangling at their last value.
var bufferLevels = []string{"none", "low", "medium", "high"}

// ObserveBuffer publishes one buffer snapshot to the queue depth, fill
// ratio, and backpressure level gauges, and advances the backpressure
// events counter by however much it grew since the last observation.
func ObserveBuffer(prevEvents *int64, snap BufferSnapshot) {
	bufferQueueDepth.Set(float64(snap.QueueDepth))
	bufferFillRatio.Set(snap.FillRatio)
	for _, l := range bufferLevels {
		v := 0.0
		if l == snap.Level {
			v = 1.0
		}
		bufferBackpressureLevel.WithLabelValues(l).Set(v)
	}
	if delta := snap.BackpressureEvents - *prevEvents; delta > 0 {
		bufferBackpressureEventsTotal.Add(float64(delta))
	}
	*prevEvents = snap.BackpressureEvents
}

// MemorySampler periodically samples the process's resident memory via
// gopsutil and publishes it to processMemoryBytes and an optional sink
// (the reliability manager's own memory_usage gauge), so both the
// dedicated scrape metric and the manager's health classification read
// the same sample.
type MemorySampler struct {
	interval time.Duration
	proc     *process.Process
	logger   *logrus.Logger
	sink     func(bytes float64)
}

// NewMemorySampler builds a sampler for the current process. sink may be
// nil if nothing besides the Prometheus gauge needs the reading.
func NewMemorySampler(interval time.Duration, logger *logrus.Logger, sink func(bytes float64)) (*MemorySampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &MemorySampler{interval: interval, proc: proc, logger: logger, sink: sink}, nil
}

// Run samples on a fixed interval until ctx is cancelled.
func (s *MemorySampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *MemorySampler) sampleOnce() {
	info, err := s.proc.MemoryInfo()
	if err != nil {
		s.logger.WithError(err).Debug("metrics: failed to sample process memory")
		return
	}
	rss := float64(info.RSS)
	processMemoryBytes.Set(rss)
	if s.sink != nil {
		s.sink(rss)
	}
}

// Server exposes /metrics (Prometheus exposition format) and /health (a
// bare liveness check distinct from the reliability manager's richer
// aggregated health) over HTTP.
type Server struct {
	server *http.Server
	logger *logrus.Logger
}

// NewServer builds a metrics server bound to addr. Collectors are already
// registered with the default registry at package init via promauto.
func NewServer(addr string, logger *logrus.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{Addr: addr, Handler: mux},
		logger: logger,
	}
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("metrics: starting server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("metrics: server error")
		}
	}()
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	s.logger.Info("metrics: stopping server")
	return s.server.Close()
}
