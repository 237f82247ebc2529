package producer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RUBclim/vpf-730/internal/handlers"
	"github.com/RUBclim/vpf-730/internal/queue"
	"github.com/RUBclim/vpf-730/internal/types"
)

type fakeSource struct {
	m   *types.Measurement
	err error
}

func (f *fakeSource) Measure() (*types.Measurement, error) { return f.m, f.err }
func (f *fakeSource) Close() error                         { return nil }

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 100}))
}

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	q, err := queue.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestDueGatesOnCadenceBoundary(t *testing.T) {
	p := New(nil, nil, silentLogger(), 5*time.Minute)

	onBoundary := time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC)
	offMinute := time.Date(2024, 1, 1, 10, 7, 0, 0, time.UTC)
	offSecond := time.Date(2024, 1, 1, 10, 5, 30, 0, time.UTC)

	require.True(t, p.due(onBoundary))
	require.False(t, p.due(offMinute))
	require.False(t, p.due(offSecond))
}

func TestDueFiresOnceWithinBoundaryMinute(t *testing.T) {
	p := New(nil, nil, silentLogger(), 5*time.Minute)
	boundary := time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC)

	require.True(t, p.due(boundary))
	p.lastFired = boundary
	require.False(t, p.due(boundary.Add(time.Millisecond)), "already fired this boundary minute")
}

func TestEnqueueProducesTwoDistinctMessagesSameBlob(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	m := types.Measurement{PrecipitationTypeMsg: types.PrecipNone, ObstructionToVision: types.ObstructionNone, Temp: 12.3}
	p := New(q, &fakeSource{m: &m}, silentLogger(), 5*time.Minute)

	require.NoError(t, p.enqueue(ctx, m))

	first, err := q.Get(ctx, queue.RouteQueue)
	require.NoError(t, err)
	require.NotNil(t, first)
	second, err := q.Get(ctx, queue.RouteQueue)
	require.NoError(t, err)
	require.NotNil(t, second)

	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, first.Blob, second.Blob)

	tasks := map[string]bool{first.Task: true, second.Task: true}
	require.True(t, tasks[handlers.TaskSaveLocally])
	require.True(t, tasks[handlers.TaskPostData])
}

func TestMaybeFireSkipsOnSensorTimeout(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	p := New(q, &fakeSource{m: nil}, silentLogger(), 5*time.Minute)
	boundary := time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC)

	p.maybeFire(ctx, boundary)

	empty, err := q.Empty(ctx)
	require.NoError(t, err)
	require.True(t, empty, "a sensor timeout must not enqueue anything")
}

func TestMaybeFireSkipsOnMeasureError(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	p := New(q, &fakeSource{err: errors.New("serial error")}, silentLogger(), 5*time.Minute)
	boundary := time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC)

	p.maybeFire(ctx, boundary)

	empty, err := q.Empty(ctx)
	require.NoError(t, err)
	require.True(t, empty)
}
