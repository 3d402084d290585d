// Package pipeline drives the collector loop: one tail-reading producer per
// discovered container feeds a shared buffer, and a single consumer batches,
// serializes, and hands each batch to the reliability manager for
// transmission. It implements the Initialized -> Running -> Draining ->
// Stopped lifecycle: on shutdown, producers stop accepting new lines first,
// the consumer keeps draining the buffer until it is empty or a deadline
// elapses, and whatever remains goes out as one final batch through the
// reliability manager, which transmits it and spills it to disk only if
// that send fails.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"rask-log-pipeline/internal/batch"
	"rask-log-pipeline/internal/buffer"
	"rask-log-pipeline/internal/docker"
	"rask-log-pipeline/internal/model"
	"rask-log-pipeline/internal/parser"
	"rask-log-pipeline/internal/reliability"
	"rask-log-pipeline/internal/serialize"
	"rask-log-pipeline/internal/transmit"
	"rask-log-pipeline/pkg/errors"
)

// State is the pipeline's lifecycle stage.
type State int32

const (
	StateInitialized State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Protocol selects which serializer (and therefore wire content type) the
// consumer uses.
type Protocol string

const (
	ProtocolNDJSON Protocol = "ndjson"
	ProtocolOTLP   Protocol = "otlp"
)

// Config tunes discovery, shutdown draining, and backpressure behavior. The
// buffer, batcher, and reliability manager are configured independently and
// handed to New already built, since each has its own substantial config
// surface.
type Config struct {
	DockerRoot           string
	Protocol             Protocol
	BackpressureStrategy buffer.Strategy
	DrainTimeout         time.Duration
	DrainPollInterval    time.Duration
}

// DefaultConfig mirrors the documented defaults: NDJSON over the buffer's
// Sleep backpressure strategy, a 30s shutdown grace period.
func DefaultConfig() Config {
	return Config{
		DockerRoot:           docker.DefaultDockerRoot,
		Protocol:             ProtocolNDJSON,
		BackpressureStrategy: buffer.StrategySleep,
		DrainTimeout:         30 * time.Second,
		DrainPollInterval:    20 * time.Millisecond,
	}
}

// Pipeline is the collector/pipeline loop of §4.K: it owns no transport
// details itself, only the wiring between the per-container tail producers,
// the shared buffer, the batcher, and the reliability manager.
type Pipeline struct {
	cfg        Config
	discoverer *docker.Discoverer
	registry   *parser.Registry
	buf        *buffer.Buffer
	batcher    *batch.Batcher
	otlp       *serialize.OTLPSerializer
	manager    *reliability.Manager
	logger     *logrus.Logger

	state int32

	mu      sync.Mutex
	readers map[string]*docker.TailReader

	producersWG sync.WaitGroup
	consumerWG  sync.WaitGroup
}

// New wires a Pipeline from its already-constructed collaborators.
func New(cfg Config, discoverer *docker.Discoverer, registry *parser.Registry, buf *buffer.Buffer, batcher *batch.Batcher, otlp *serialize.OTLPSerializer, manager *reliability.Manager, logger *logrus.Logger) *Pipeline {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if cfg.DrainPollInterval <= 0 {
		cfg.DrainPollInterval = 20 * time.Millisecond
	}
	return &Pipeline{
		cfg:        cfg,
		discoverer: discoverer,
		registry:   registry,
		buf:        buf,
		batcher:    batcher,
		otlp:       otlp,
		manager:    manager,
		logger:     logger,
		state:      int32(StateInitialized),
		readers:    make(map[string]*docker.TailReader),
	}
}

// State reports the pipeline's current lifecycle stage.
func (p *Pipeline) State() State { return State(atomic.LoadInt32(&p.state)) }

func (p *Pipeline) setState(s State) { atomic.StoreInt32(&p.state, int32(s)) }

// Run discovers containers, starts one tail producer per container plus the
// batching consumer, and blocks until ctx is cancelled. It then drains the
// buffer (see shutdown) before returning.
func (p *Pipeline) Run(ctx context.Context) error {
	containers, err := p.discoverer.ListContainers(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: discover containers: %w", err)
	}

	producerCtx, producerCancel := context.WithCancel(context.Background())
	consumerCtx, consumerCancel := context.WithCancel(context.Background())

	for _, c := range containers {
		if err := p.startProducer(producerCtx, c); err != nil {
			p.logger.WithError(err).WithField("container_id", c.ContainerID).Warn("pipeline: failed to start tail reader")
		}
	}

	p.setState(StateRunning)
	p.consumerWG.Add(1)
	go func() {
		defer p.consumerWG.Done()
		p.consume(consumerCtx)
	}()

	<-ctx.Done()
	return p.shutdown(producerCancel, consumerCancel)
}

// startProducer spawns a tail reader for one container plus the goroutine
// that parses and enriches its decoded lines onto the shared buffer.
func (p *Pipeline) startProducer(ctx context.Context, c model.ContainerDescriptor) error {
	reader, err := docker.NewTailReader(c, p.cfg.DockerRoot, p.logger)
	if err != nil {
		return fmt.Errorf("start tail reader for %s: %w", c.ContainerID, err)
	}

	p.mu.Lock()
	p.readers[c.ContainerID] = reader
	p.mu.Unlock()

	p.producersWG.Add(2)
	go func() {
		defer p.producersWG.Done()
		reader.Run(ctx)
	}()
	go func() {
		defer p.producersWG.Done()
		p.consumeLines(ctx, c, reader.Lines)
	}()
	return nil
}

// consumeLines parses and enriches every decoded envelope line from one
// container's tail, pushing each valid record onto the shared buffer. A
// line that fails to parse or violates an Enriched Record invariant is
// logged and dropped; it never blocks the next line (§7 points 1-2).
func (p *Pipeline) consumeLines(ctx context.Context, c model.ContainerDescriptor, lines <-chan docker.Line) {
	for line := range lines {
		parsed, err := p.registry.ParseLog(c.ServiceName, line.Envelope.Log, line.Envelope.Stream)
		if err != nil {
			p.logger.WithError(err).WithField("container_id", c.ContainerID).Debug("pipeline: no parser matched, dropping line")
			continue
		}

		rec, err := model.NewEnrichedRecord(parsed, c, line.Envelope.Time)
		if err != nil {
			p.logger.WithError(err).WithField("container_id", c.ContainerID).Debug("pipeline: invariant violation, dropping record")
			continue
		}

		if err := p.buf.Push(ctx, *rec, p.cfg.BackpressureStrategy); err != nil {
			p.logger.WithError(err).WithField("container_id", c.ContainerID).Debug("pipeline: buffer push rejected")
		}
	}
}

// consume is the single batch/send loop: it collects records up to the
// batcher's size/wait/memory thresholds, flushes them into an immutable
// Batch, and hands it to the reliability manager. It keeps flushing
// whatever was already collected even after ctx is cancelled, so a
// mid-collection batch is never silently dropped.
func (p *Pipeline) consume(ctx context.Context) {
	for {
		entries, timedOut := p.batcher.CollectOne(ctx, p.buf)
		if len(entries) > 0 {
			p.flushEntries(ctx, entries, timedOut)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (p *Pipeline) flushEntries(ctx context.Context, entries []model.EnrichedRecord, timedOut bool) {
	p.buf.RecordBatchFormed()
	b, err := p.batcher.Flush(entries, timedOut, time.Now())
	if err != nil {
		p.logger.WithError(err).Warn("pipeline: failed to form batch")
		return
	}
	p.sendBatch(ctx, b)
}

func (p *Pipeline) sendBatch(ctx context.Context, b *model.Batch) {
	payload, contentType, err := p.serializeBatch(b)
	if err != nil {
		p.logger.WithError(err).WithField("batch_id", b.ID()).Warn("pipeline: serialization failed, discarding batch")
		return
	}
	if err := p.manager.Send(ctx, contentType, payload, b); err != nil {
		p.logger.WithError(err).WithField("batch_id", b.ID()).Error("pipeline: batch permanently lost")
	}
}

func (p *Pipeline) serializeBatch(b *model.Batch) ([]byte, transmit.ContentType, error) {
	if p.cfg.Protocol == ProtocolOTLP {
		payload, err := p.otlp.Serialize(b)
		return payload, transmit.ContentTypeOTLP, err
	}
	payload, err := serialize.NDJSON(b)
	return payload, transmit.ContentTypeNDJSON, err
}

// shutdown implements the Draining stage: producers are told to stop
// accepting new lines immediately, then the consumer keeps draining the
// buffer until it empties or DrainTimeout elapses, at which point the
// consumer is cancelled and any remainder is flushed as a final
// FlushOnShutdown batch.
func (p *Pipeline) shutdown(producerCancel, consumerCancel context.CancelFunc) error {
	p.setState(StateDraining)
	p.logger.Info("pipeline: draining")

	producerCancel()
	p.producersWG.Wait()

	deadline := time.Now().Add(p.cfg.DrainTimeout)
	for !p.buf.IsEmpty() && time.Now().Before(deadline) {
		time.Sleep(p.cfg.DrainPollInterval)
	}
	if !p.buf.IsEmpty() {
		err := errors.DrainTimeoutError("shutdown", "drain deadline elapsed with records remaining")
		p.logger.WithField("queue_depth", p.buf.DetailedMetrics().QueueDepth).Warn(err.Error())
	}

	consumerCancel()
	p.consumerWG.Wait()

	p.flushRemainder()

	p.setState(StateStopped)
	p.logger.Info("pipeline: stopped")
	return nil
}

// flushRemainder drains whatever is left in the buffer (non-blocking) into
// one final Batch tagged FlushOnShutdown and hands it to the reliability
// manager with a background context, since the pipeline's own context is
// already cancelled by this point.
func (p *Pipeline) flushRemainder() {
	b, err := p.batcher.FlushOnShutdown(p.buf, time.Now())
	if err != nil {
		p.logger.WithError(err).Warn("pipeline: failed to form final shutdown batch")
		return
	}
	if b == nil {
		return
	}
	p.sendBatch(context.Background(), b)
}
