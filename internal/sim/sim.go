// Package sim owns one simulation run: the seat registry, the customer pool,
// the director and every tick system, wired together at construction.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/seatflow/diner/internal/config"
	"github.com/seatflow/diner/internal/core/ecs"
	"github.com/seatflow/diner/internal/core/event"
	"github.com/seatflow/diner/internal/core/pool"
	coresys "github.com/seatflow/diner/internal/core/system"
	"github.com/seatflow/diner/internal/data"
	"github.com/seatflow/diner/internal/nav"
	"github.com/seatflow/diner/internal/system"
	"github.com/seatflow/diner/internal/world"
	"go.uber.org/zap"
)

var ErrMissingCollaborator = errors.New("sim: missing collaborator")

// Navigator is a movement service that is stepped once per tick.
type Navigator interface {
	world.Navigator
	system.Advancer
}

// Deps are the collaborators a simulation is built from. Layout and Log are
// required. Nav defaults to a straight-line walker; Policy and Visits are
// optional.
type Deps struct {
	Layout *data.Layout
	Log    *zap.Logger
	Nav    Navigator
	Policy system.ServePolicy
	Visits system.VisitWriter
	Start  time.Time // wall time of simulated zero, for the ledger
	RunID  int64     // ledger run id, reported in snapshots
}

// Simulation is the single owner of all simulation state. Everything except
// Snapshot must be called from the loop goroutine.
type Simulation struct {
	cfg *config.Config
	log *zap.Logger

	Seats    *world.SeatRegistry
	Pool     *pool.Pool[*world.Customer]
	IDs      *ecs.IDPool
	Nav      Navigator
	Bus      *event.Bus
	Runner   *coresys.Runner
	Director *system.Director
	Kitchen  *system.KitchenSystem // nil when the kitchen is disabled
	Ledger   *system.LedgerSystem  // nil without a visit writer
	Stats    *system.StatsSystem

	events *system.EventSystem
	runID  int64
	snap   atomic.Pointer[Snapshot]
}

func New(cfg *config.Config, deps Deps) (*Simulation, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("%w: config", ErrMissingCollaborator)
	case deps.Layout == nil:
		return nil, fmt.Errorf("%w: seat layout", ErrMissingCollaborator)
	case deps.Log == nil:
		return nil, fmt.Errorf("%w: logger", ErrMissingCollaborator)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log := deps.Log

	s := &Simulation{
		cfg:    cfg,
		log:    log,
		IDs:    ecs.NewIDPool(),
		Bus:    event.NewBus(),
		Runner: coresys.NewRunner(),
		Nav:    deps.Nav,
		runID:  deps.RunID,
	}
	if s.Nav == nil {
		s.Nav = nav.NewLinear(cfg.Movement.Speed, cfg.Movement.ArriveDistance, deps.Layout.Obstacles)
	}

	s.Seats = world.NewSeatRegistry(deps.Layout.Seats, log)
	s.Seats.SetStrict(cfg.Simulation.Strict)
	s.Seats.OnStatusChange = func(id world.SeatID, st world.SeatStatus) {
		event.Emit(s.Bus, event.SeatStatusChanged{
			Seat:     int(id),
			Occupied: st == world.SeatOccupied,
			At:       s.Runner.Elapsed(),
		})
	}

	cc := cfg.Customer
	s.Pool = world.NewCustomerPool(s.Seats, s.Nav, s.IDs, world.CustomerConfig{
		ServiceModeled:   cc.WaitForService,
		WaitTimeout:      cc.WaitForServiceTimeout,
		ConsumeDuration:  cc.ConsumeDuration,
		SettleDuration:   cc.SettleDuration,
		RetryInterval:    cc.RetryInterval,
		RetryMaxInterval: cc.RetryMaxInterval,
		MaxMoveAttempts:  cc.MaxMoveAttempts,
	}, world.PoolConfig{
		Initial: cfg.Pool.InitialSize,
		Max:     cfg.Pool.MaxSize,
	}, log)

	s.Director = system.NewDirector(system.DirectorConfig{
		SpawnPeriod:   cfg.Director.SpawnPeriod,
		MaxConcurrent: cfg.Director.MaxConcurrent,
		Spawning:      cfg.Director.Spawning,
		Spawn:         deps.Layout.Spawn,
		Exit:          deps.Layout.Exit,
	}, s.Seats, s.Pool, s.Nav, s.Bus, s.Runner.Elapsed, log)

	// Registration order matters within a phase: movement before customers.
	s.events = system.NewEventSystem(s.Bus)
	s.Runner.Register(s.events)
	if cfg.Kitchen.Enabled && cc.WaitForService {
		s.Kitchen = system.NewKitchenSystem(s.Director, deps.Policy, cfg.Kitchen.DefaultServeDelay, log)
		s.Runner.Register(s.Kitchen)
	}
	s.Runner.Register(system.NewMovementSystem(s.Nav))
	s.Runner.Register(system.NewCustomerSystem(s.Director))
	s.Runner.Register(s.Director)
	s.Stats = system.NewStatsSystem(s.Bus, s.publish)
	s.Runner.Register(s.Stats)
	if deps.Visits != nil {
		start := deps.Start
		if start.IsZero() {
			start = time.Now()
		}
		s.Ledger = system.NewLedgerSystem(s.Bus, deps.Visits, cfg.Database.FlushInterval, start, log)
		s.Runner.Register(s.Ledger)
	}

	s.publish(system.Counters{})
	return s, nil
}

// Tick advances the simulation by one quantum. In strict mode a broken
// invariant panics.
func (s *Simulation) Tick(dt time.Duration) {
	s.Runner.Tick(dt)
	if s.cfg.Simulation.Strict {
		if err := s.CheckInvariants(); err != nil {
			panic(err)
		}
	}
}

// CheckInvariants verifies the seat bookkeeping against the active customers.
func (s *Simulation) CheckInvariants() error {
	holders := 0
	bySeat := make(map[world.SeatID]ecs.EntityID)
	var err error
	s.Director.Each(func(c *world.Customer) bool {
		// A holder of a retired seat lets go on its next tick.
		if !c.HoldsSeat() || !s.Seats.Valid(c.Seat()) {
			return true
		}
		holders++
		if other, dup := bySeat[c.Seat()]; dup {
			err = fmt.Errorf("seat %d held by customers %d and %d", c.Seat(), other, c.ID)
			return false
		}
		bySeat[c.Seat()] = c.ID
		if st, _ := s.Seats.Status(c.Seat()); st != world.SeatOccupied {
			err = fmt.Errorf("customer %d holds seat %d marked %s", c.ID, c.Seat(), st)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	if occ := s.Seats.OccupiedCount(); occ != holders {
		return fmt.Errorf("%d seats occupied but %d customers hold one", occ, holders)
	}
	if n := s.Director.ActiveCount(); n > s.cfg.Director.MaxConcurrent {
		return fmt.Errorf("%d active customers exceeds max %d", n, s.cfg.Director.MaxConcurrent)
	}
	return nil
}

// Close cancels every visit in flight, delivers the resulting events and
// flushes the ledger.
func (s *Simulation) Close(ctx context.Context) error {
	n := s.Director.Shutdown()
	s.events.Drain(4)
	s.publish(s.Stats.Counters())
	s.log.Info("simulation stopped",
		zap.Uint64("ticks", s.Runner.Ticks()),
		zap.Duration("elapsed", s.Runner.Elapsed()),
		zap.Int("cancelled", n))
	if s.Ledger == nil {
		return nil
	}
	if err := s.Ledger.Flush(ctx); err != nil {
		return fmt.Errorf("flush visit ledger: %w", err)
	}
	return nil
}

// Snapshot returns the state published after the last tick. Safe from any
// goroutine.
func (s *Simulation) Snapshot() *Snapshot {
	return s.snap.Load()
}

func (s *Simulation) Config() *config.Config { return s.cfg }
