package buffer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rask-log-pipeline/internal/model"
)

func testRecord() model.EnrichedRecord {
	return model.EnrichedRecord{ContainerID: "c1", ServiceName: "svc", Message: "hi", Timestamp: "t"}
}

func TestBuffer_PushPopRoundTrip(t *testing.T) {
	b := New(Config{Capacity: 10, BackpressureThreshold: 0.8})
	ctx := context.Background()

	require.NoError(t, b.Push(ctx, testRecord(), StrategyDrop))
	assert.Equal(t, 1, b.Len())

	rec, err := b.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hi", rec.Message)
	assert.Equal(t, 0, b.Len())
}

func TestBuffer_DropStrategyRejectsWhenFull(t *testing.T) {
	b := New(Config{Capacity: 1, EnableBackpressure: true, BackpressureThreshold: 0.99})
	ctx := context.Background()

	require.NoError(t, b.Push(ctx, testRecord(), StrategyDrop))
	err := b.Push(ctx, testRecord(), StrategyDrop)
	assert.ErrorIs(t, err, ErrFull)

	snap := b.DetailedMetrics()
	assert.Equal(t, int64(2), snap.MessagesSent, "messages_sent counts attempts, not successful enqueues")
	assert.Equal(t, int64(1), snap.MessagesDropped)
}

func TestBuffer_DropStrategyFillsToCapacityAtDefaultThreshold(t *testing.T) {
	b := New(Config{
		Capacity:              10,
		EnableBackpressure:    true,
		BackpressureThreshold: DefaultConfig().BackpressureThreshold,
		BackpressureDelay:     DefaultConfig().BackpressureDelay,
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Push(ctx, testRecord(), StrategyDrop), "push %d should land, threshold only delays", i)
	}
	assert.Equal(t, 10, b.Len(), "all 10 records land; crossing the 80%% threshold must not move the Full boundary")

	err := b.Push(ctx, testRecord(), StrategyDrop)
	assert.ErrorIs(t, err, ErrFull)

	snap := b.DetailedMetrics()
	assert.Equal(t, int64(1), snap.MessagesDropped, "dropped counted only once the channel is actually full")
	assert.Greater(t, snap.BackpressureEvents, int64(0), "pushes at/above threshold still count as backpressure events")
}

func TestBuffer_FillRatioAndLevel(t *testing.T) {
	b := New(Config{Capacity: 100, EnableBackpressure: false})
	ctx := context.Background()
	for i := 0; i < 96; i++ {
		require.NoError(t, b.Push(ctx, testRecord(), StrategyDrop))
	}
	assert.InDelta(t, 0.96, b.FillRatio(), 0.001)
	assert.Equal(t, LevelHigh, b.BackpressureLevel())
}

func TestBuffer_BackpressureLevelThresholds(t *testing.T) {
	cases := []struct {
		depth int
		want  Level
	}{
		{depth: 10, want: LevelNone},
		{depth: 55, want: LevelLow},
		{depth: 85, want: LevelMedium},
		{depth: 96, want: LevelHigh},
	}
	for _, tc := range cases {
		b := New(Config{Capacity: 100, EnableBackpressure: false})
		ctx := context.Background()
		for i := 0; i < tc.depth; i++ {
			require.NoError(t, b.Push(ctx, testRecord(), StrategyDrop))
		}
		assert.Equal(t, tc.want, b.BackpressureLevel(), "depth=%d", tc.depth)
	}
}

func TestBuffer_SleepStrategyDelaysThenSucceeds(t *testing.T) {
	b := New(Config{Capacity: 10, EnableBackpressure: true, BackpressureThreshold: 0.0, BackpressureDelay: 5 * time.Millisecond})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, b.Push(ctx, testRecord(), StrategySleep))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestBuffer_PopRespectsContextCancellation(t *testing.T) {
	b := New(Config{Capacity: 10})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := b.Pop(ctx)
	assert.Error(t, err)
}

func TestBuffer_TryPopNonBlocking(t *testing.T) {
	b := New(Config{Capacity: 10})
	_, ok := b.TryPop()
	assert.False(t, ok)

	require.NoError(t, b.Push(context.Background(), testRecord(), StrategyDrop))
	rec, ok := b.TryPop()
	require.True(t, ok)
	assert.Equal(t, "hi", rec.Message)
}

func TestBuffer_ResetMetrics(t *testing.T) {
	b := New(Config{Capacity: 10})
	require.NoError(t, b.Push(context.Background(), testRecord(), StrategyDrop))
	b.ResetMetrics()
	snap := b.DetailedMetrics()
	assert.Equal(t, int64(0), snap.MessagesSent)
}
