package system

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seatflow/diner/internal/core/ecs"
	"github.com/seatflow/diner/internal/core/event"
	"github.com/seatflow/diner/internal/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memWriter struct {
	batches [][]persist.Visit
	fail    error
}

func (w *memWriter) InsertVisits(_ context.Context, visits []persist.Visit) error {
	if w.fail != nil {
		return w.fail
	}
	w.batches = append(w.batches, append([]persist.Visit(nil), visits...))
	return nil
}

func (w *memWriter) total() int {
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func departure(id uint64, outcome string) event.CustomerDeparted {
	return event.CustomerDeparted{
		Customer:  ecs.EntityID(id),
		Seat:      1,
		Outcome:   outcome,
		Served:    outcome == "served",
		Waited:    1500 * time.Millisecond,
		SpawnedAt: 2 * time.Second,
		LeftAt:    9 * time.Second,
	}
}

func TestLedgerFlushesOnInterval(t *testing.T) {
	bus := event.NewBus()
	w := &memWriter{}
	l := NewLedgerSystem(bus, w, time.Second, epoch, zap.NewNop())

	event.Emit(bus, departure(1, "served"))
	event.Emit(bus, departure(2, "balked"))
	bus.SwapBuffers()
	bus.DispatchAll()
	require.Equal(t, 2, l.Buffered())

	for i := 0; i < 9; i++ {
		l.Update(step)
	}
	assert.Empty(t, w.batches, "not due yet")

	l.Update(step)
	require.Len(t, w.batches, 1)
	assert.Zero(t, l.Buffered())
	assert.Equal(t, uint64(2), l.Written())

	v := w.batches[0][0]
	assert.Equal(t, uint64(1), v.Customer)
	assert.Equal(t, "served", v.Outcome)
	assert.True(t, v.Served)
	assert.Equal(t, 1500*time.Millisecond, v.Waited)
	assert.Equal(t, epoch.Add(2*time.Second), v.SpawnedAt)
	assert.Equal(t, epoch.Add(9*time.Second), v.LeftAt)
}

func TestLedgerKeepsRecordsWhenWriteFails(t *testing.T) {
	bus := event.NewBus()
	w := &memWriter{fail: errors.New("connection refused")}
	l := NewLedgerSystem(bus, w, step, epoch, zap.NewNop())

	event.Emit(bus, departure(1, "served"))
	bus.SwapBuffers()
	bus.DispatchAll()

	l.Update(step)
	assert.Equal(t, 1, l.Buffered())
	assert.Error(t, l.Flush(context.Background()))

	w.fail = nil
	require.NoError(t, l.Flush(context.Background()))
	assert.Equal(t, 1, w.total())
	assert.Zero(t, l.Buffered())
	assert.NoError(t, l.Flush(context.Background()), "empty flush is a no-op")
	assert.Len(t, w.batches, 1)
}

func TestLedgerBoundsBuffer(t *testing.T) {
	bus := event.NewBus()
	l := NewLedgerSystem(bus, &memWriter{}, time.Hour, epoch, zap.NewNop())

	for i := 0; i < maxBufferedVisits+5; i++ {
		event.Emit(bus, departure(uint64(i+1), "balked"))
	}
	bus.SwapBuffers()
	bus.DispatchAll()

	assert.Equal(t, maxBufferedVisits, l.Buffered())
	assert.Equal(t, uint64(5), l.Dropped())
}
