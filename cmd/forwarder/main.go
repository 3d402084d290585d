// Command forwarder runs the collector/pipeline loop of §4.K: it
// discovers running containers, tails their Docker JSON-file logs,
// parses/enriches/batches them, and transmits each batch to the configured
// aggregator endpoint over NDJSON or OTLP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"rask-log-pipeline/internal/batch"
	"rask-log-pipeline/internal/buffer"
	"rask-log-pipeline/internal/config"
	"rask-log-pipeline/internal/docker"
	"rask-log-pipeline/internal/metrics"
	"rask-log-pipeline/internal/parser"
	"rask-log-pipeline/internal/pipeline"
	"rask-log-pipeline/internal/reliability"
	"rask-log-pipeline/internal/serialize"
	"rask-log-pipeline/internal/telemetry"
	"rask-log-pipeline/internal/transmit"
)

// forwarderVersion is surfaced as telemetry.sdk.version in OTLP resource
// attributes and as the User-Agent suffix on every transmitted batch.
const forwarderVersion = "0.1.0"

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "path to YAML configuration file")
	flag.Parse()

	if configFile == "" {
		configFile = os.Getenv("RASK_CONFIG_FILE")
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "forwarder: config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("forwarder: exited with error")
		os.Exit(1)
	}
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	dockerClient, err := docker.NewHTTPDockerClient(docker.DefaultHTTPClientConfig(), logger)
	if err != nil {
		return fmt.Errorf("docker client: %w", err)
	}
	defer dockerClient.Close()
	discoverer := docker.NewDiscoverer(dockerClient, logger)
	registry := parser.NewDefaultRegistry()
	registry.LoadMappingsFromEnv(os.Getenv("RASK_SERVICE_PARSER_MAP"))

	buf := buffer.New(cfg.BufferConfig())
	batcher := batch.New(batch.Config{
		MaxSize: cfg.BatchSize,
		MaxWait: cfg.FlushInterval(),
	})
	otlpSerializer := serialize.NewOTLPSerializer(forwarderVersion)

	endpoint := cfg.Endpoint
	protocol := pipeline.ProtocolNDJSON
	if cfg.Protocol == "otlp" {
		endpoint = cfg.OTLPEndpoint
		protocol = pipeline.ProtocolOTLP
	}

	transmitter := transmit.New(transmit.Config{
		Endpoint:          endpoint,
		ConnectionTimeout: cfg.ConnectionTimeout(),
		MaxConnections:    cfg.MaxConnections,
		ForwarderVersion:  forwarderVersion,
		EnableCompression: cfg.EnableCompression,
	})

	spool := reliability.NewSpool(cfg.SpillConfig())
	manager := reliability.NewManager(transmitter, cfg.RetryManagerConfig(), spool, logger)

	p := pipeline.New(pipeline.Config{
		DockerRoot:           docker.DefaultDockerRoot,
		Protocol:             protocol,
		BackpressureStrategy: buffer.StrategySleep,
		DrainTimeout:         30 * time.Second,
		DrainPollInterval:    20 * time.Millisecond,
	}, discoverer, registry, buf, batcher, otlpSerializer, manager, logger)

	metricsAddr := os.Getenv("RASK_METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9090"
	}
	metricsServer := metrics.NewServer(metricsAddr, logger)
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("metrics server: %w", err)
	}
	defer metricsServer.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracingShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        os.Getenv("RASK_TRACING_ENABLED") == "true",
		Endpoint:       os.Getenv("RASK_TRACING_ENDPOINT"),
		ServiceName:    "rask-log-forwarder",
		ServiceVersion: forwarderVersion,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer tracingShutdown(context.Background())

	sampler, err := metrics.NewMemorySampler(15*time.Second, logger, manager.Metrics().SetMemoryUsage)
	if err != nil {
		logger.WithError(err).Warn("forwarder: memory sampler unavailable")
	} else {
		go sampler.Run(ctx)
	}
	go reportBufferMetrics(ctx, buf)
	go func() {
		if err := spool.WatchExternalRemovals(ctx, logger); err != nil {
			logger.WithError(err).Warn("forwarder: spill directory watch stopped")
		}
	}()

	logger.WithFields(logrus.Fields{
		"protocol": cfg.Protocol,
		"endpoint": endpoint,
	}).Info("forwarder: starting")

	runCtx, span := telemetry.Tracer("rask-log-forwarder").Start(ctx, "forwarder.run")
	defer span.End()

	return p.Run(runCtx)
}

// reportBufferMetrics periodically publishes the buffer's depth, fill
// ratio, and backpressure level to the Prometheus gauges until ctx is
// cancelled.
func reportBufferMetrics(ctx context.Context, buf *buffer.Buffer) {
	var prevEvents int64
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := buf.DetailedMetrics()
			metrics.ObserveBuffer(&prevEvents, metrics.BufferSnapshot{
				QueueDepth:         snap.QueueDepth,
				Capacity:           snap.Capacity,
				FillRatio:          snap.FillRatio,
				Level:              snap.Level.String(),
				BackpressureEvents: snap.BackpressureEvents,
			})
		}
	}
}
