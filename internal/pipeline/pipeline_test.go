package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rask-log-pipeline/internal/batch"
	"rask-log-pipeline/internal/buffer"
	"rask-log-pipeline/internal/docker"
	"rask-log-pipeline/internal/model"
	"rask-log-pipeline/internal/parser"
	"rask-log-pipeline/internal/reliability"
	"rask-log-pipeline/internal/serialize"
	"rask-log-pipeline/internal/transmit"
)

type fakeSender struct {
	sent int32
}

func (f *fakeSender) Send(ctx context.Context, contentType transmit.ContentType, payload []byte, b *model.Batch, forceCompress bool, retryCount int) (transmit.Result, error) {
	atomic.AddInt32(&f.sent, 1)
	return transmit.Result{Success: true, StatusCode: 200, BatchID: b.ID(), BytesSent: len(payload)}, nil
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func testContainer(id string) model.ContainerDescriptor {
	return model.ContainerDescriptor{ContainerID: id, ServiceName: "web", Labels: map[string]string{}}
}

func newTestPipeline(t *testing.T, sender reliability.Sender) (*Pipeline, *buffer.Buffer) {
	t.Helper()
	buf := buffer.New(buffer.Config{Capacity: 100, BackpressureThreshold: 0.99})
	batcher := batch.New(batch.Config{MaxSize: 10, MaxWait: 30 * time.Millisecond})
	manager := reliability.NewManager(sender, reliability.DefaultRetryConfig(), nil, testLogger())
	registry := parser.NewDefaultRegistry()
	otlp := serialize.NewOTLPSerializer("test")

	p := New(Config{Protocol: ProtocolNDJSON, DrainTimeout: 200 * time.Millisecond, DrainPollInterval: 5 * time.Millisecond},
		nil, registry, buf, batcher, otlp, manager, testLogger())
	return p, buf
}

func TestPipeline_ConsumeLinesParsesEnrichesAndPushes(t *testing.T) {
	p, buf := newTestPipeline(t, &fakeSender{})
	container := testContainer("c1")

	lines := make(chan docker.Line, 1)
	lines <- docker.Line{Container: container, Envelope: &docker.Envelope{Log: "plain message", Stream: "stdout", Time: "2024-01-01T00:00:00Z"}}
	close(lines)

	p.consumeLines(context.Background(), container, lines)

	rec, ok := buf.TryPop()
	require.True(t, ok)
	assert.Equal(t, "plain message", rec.Message)
	assert.Equal(t, "c1", rec.ContainerID)
}

func TestPipeline_ConsumeFlushesBatchOnTimeout(t *testing.T) {
	sender := &fakeSender{}
	p, buf := newTestPipeline(t, sender)

	rec, err := model.NewEnrichedRecord(model.ParsedRecord{Message: "m", LogType: model.LogTypePlain, Stream: "stdout"}, testContainer("c1"), "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	require.NoError(t, buf.Push(context.Background(), *rec, buffer.StrategyBlock))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	p.consume(ctx)

	assert.Equal(t, int32(1), atomic.LoadInt32(&sender.sent))
}

func TestPipeline_StateTransitionsThroughShutdown(t *testing.T) {
	sender := &fakeSender{}
	p, _ := newTestPipeline(t, sender)
	assert.Equal(t, StateInitialized, p.State())

	p.setState(StateRunning)
	producerCtx, producerCancel := context.WithCancel(context.Background())
	_ = producerCtx
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	_ = consumerCtx

	require.NoError(t, p.shutdown(producerCancel, consumerCancel))
	assert.Equal(t, StateStopped, p.State())
}

func TestPipeline_ShutdownFlushesRemainderAsFinalBatch(t *testing.T) {
	sender := &fakeSender{}
	p, buf := newTestPipeline(t, sender)

	rec, err := model.NewEnrichedRecord(model.ParsedRecord{Message: "leftover", LogType: model.LogTypePlain, Stream: "stdout"}, testContainer("c1"), "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	require.NoError(t, buf.Push(context.Background(), *rec, buffer.StrategyBlock))

	producerCtx, producerCancel := context.WithCancel(context.Background())
	_ = producerCtx
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	_ = consumerCtx

	require.NoError(t, p.shutdown(producerCancel, consumerCancel))
	assert.Equal(t, int32(1), atomic.LoadInt32(&sender.sent))
	assert.True(t, buf.IsEmpty())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "initialized", StateInitialized.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "stopped", StateStopped.String())
}
