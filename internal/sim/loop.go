package sim

import (
	"context"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// Loop drives a simulation from a ticker. Each tick advances simulated time
// by exactly the tick rate, so a slow tick delays the run but never skips
// simulated time.
type Loop struct {
	sim   *Simulation
	clock clock.WithTicker
	rate  time.Duration
	log   *zap.Logger

	// AfterTick, when set, runs on the loop goroutine after every tick.
	AfterTick func(tick uint64)
}

func NewLoop(s *Simulation, clk clock.WithTicker, rate time.Duration, log *zap.Logger) *Loop {
	return &Loop{sim: s, clock: clk, rate: rate, log: log}
}

// Run ticks until ctx is cancelled. It does not close the simulation.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.rate)
	defer ticker.Stop()

	l.log.Info("game loop started", zap.Duration("tick", l.rate))
	for {
		select {
		case <-ctx.Done():
			l.log.Info("game loop stopping", zap.Uint64("ticks", l.sim.Runner.Ticks()))
			return nil
		case <-ticker.C():
			l.sim.Tick(l.rate)
			if l.AfterTick != nil {
				l.AfterTick(l.sim.Runner.Ticks())
			}
		}
	}
}
