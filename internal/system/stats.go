package system

import (
	"time"

	"github.com/seatflow/diner/internal/core/event"
	coresys "github.com/seatflow/diner/internal/core/system"
	"github.com/seatflow/diner/internal/world"
)

// Counters are the running totals of a simulation.
type Counters struct {
	Spawned     uint64 `json:"spawned"`
	Served      uint64 `json:"served"`
	Balked      uint64 `json:"balked"`
	Aborted     uint64 `json:"aborted"`
	Stranded    uint64 `json:"stranded"`
	Cancelled   uint64 `json:"cancelled"`
	Skipped     uint64 `json:"spawn_skipped"`
	PoolDenied  uint64 `json:"pool_exhausted"`
	SeatChanges uint64 `json:"seat_changes"`

	TotalWait time.Duration `json:"-"`
}

// Departed is the number of finished visits, whatever their outcome.
func (c Counters) Departed() uint64 {
	return c.Served + c.Balked + c.Aborted + c.Stranded + c.Cancelled
}

// MeanWait is the average time departed customers spent waiting for service.
func (c Counters) MeanWait() time.Duration {
	n := c.Departed()
	if n == 0 {
		return 0
	}
	return c.TotalWait / time.Duration(n)
}

// StatsSystem tallies simulation events and hands a copy of the counters to
// publish once per tick. Phase 4 (Output).
type StatsSystem struct {
	counters Counters
	publish  func(Counters)
}

func NewStatsSystem(bus *event.Bus, publish func(Counters)) *StatsSystem {
	s := &StatsSystem{publish: publish}
	event.Subscribe(bus, s.onSpawned)
	event.Subscribe(bus, s.onDeparted)
	event.Subscribe(bus, s.onSkipped)
	event.Subscribe(bus, s.onSeat)
	return s
}

func (s *StatsSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *StatsSystem) Update(_ time.Duration) {
	if s.publish != nil {
		s.publish(s.counters)
	}
}

func (s *StatsSystem) Counters() Counters { return s.counters }

func (s *StatsSystem) onSpawned(event.CustomerSpawned) { s.counters.Spawned++ }

func (s *StatsSystem) onDeparted(e event.CustomerDeparted) {
	switch e.Outcome {
	case world.OutcomeServed.String():
		s.counters.Served++
	case world.OutcomeBalked.String():
		s.counters.Balked++
	case world.OutcomeAborted.String():
		s.counters.Aborted++
	case world.OutcomeStranded.String():
		s.counters.Stranded++
	default:
		s.counters.Cancelled++
	}
	s.counters.TotalWait += e.Waited
}

func (s *StatsSystem) onSkipped(e event.SpawnSkipped) {
	s.counters.Skipped++
	if e.Reason == SkipPoolExhausted {
		s.counters.PoolDenied++
	}
}

func (s *StatsSystem) onSeat(event.SeatStatusChanged) { s.counters.SeatChanges++ }
