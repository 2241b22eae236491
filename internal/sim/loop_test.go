package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestLoopTicksOnClock(t *testing.T) {
	cfg := testConfig()
	s, err := New(cfg, Deps{Layout: testLayout(t), Log: zap.NewNop()})
	require.NoError(t, err)

	fc := clocktesting.NewFakeClock(time.Unix(0, 0))
	loop := NewLoop(s, fc, cfg.Simulation.TickRate, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond, "ticker registered")
	for i := 1; i <= 5; i++ {
		fc.Step(cfg.Simulation.TickRate)
		want := uint64(i)
		require.Eventually(t, func() bool { return s.Snapshot().Tick == want },
			time.Second, time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}

	snap := s.Snapshot()
	assert.Equal(t, 5*cfg.Simulation.TickRate, snap.Elapsed)
	assert.Equal(t, 1, snap.Active, "first tick spawned, period not yet elapsed")
}

func TestLoopAfterTick(t *testing.T) {
	cfg := testConfig()
	s, err := New(cfg, Deps{Layout: testLayout(t), Log: zap.NewNop()})
	require.NoError(t, err)

	fc := clocktesting.NewFakeClock(time.Unix(0, 0))
	loop := NewLoop(s, fc, cfg.Simulation.TickRate, zap.NewNop())
	ticks := make(chan uint64, 4)
	loop.AfterTick = func(n uint64) { ticks <- n }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)
	fc.Step(cfg.Simulation.TickRate)
	select {
	case n := <-ticks:
		assert.Equal(t, uint64(1), n)
	case <-time.After(time.Second):
		t.Fatal("no tick observed")
	}
}
