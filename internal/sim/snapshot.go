package sim

import (
	"time"

	"github.com/seatflow/diner/internal/system"
	"github.com/seatflow/diner/internal/world"
)

// Snapshot is an immutable view of the simulation published after each tick.
type Snapshot struct {
	Name          string          `json:"name"`
	RunID         int64           `json:"run_id,omitempty"`
	Tick          uint64          `json:"tick"`
	Elapsed       time.Duration   `json:"elapsed_ns"`
	Spawning      bool            `json:"spawning"`
	Active        int             `json:"active"`
	MaxConcurrent int             `json:"max_concurrent"`
	Seats         []SeatView      `json:"seats"`
	Customers     []CustomerView  `json:"customers"`
	Pool          PoolView        `json:"pool"`
	Orders        int             `json:"kitchen_orders"`
	Counters      system.Counters `json:"counters"`
	MeanWait      time.Duration   `json:"mean_wait_ns"`
	LedgerBacklog int             `json:"ledger_backlog"`
	PublishedAt   time.Time       `json:"published_at"`
}

type SeatView struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Occupied bool   `json:"occupied"`
	Retired  bool   `json:"retired,omitempty"`
}

type CustomerView struct {
	ID     uint64  `json:"id"`
	Seat   int     `json:"seat"`
	State  string  `json:"state"`
	Served bool    `json:"served"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type PoolView struct {
	Active  int `json:"active"`
	Free    int `json:"free"`
	Created int `json:"created"`
}

func (s *Simulation) publish(c system.Counters) {
	seats := s.Seats.Seats()
	snap := &Snapshot{
		Name:          s.cfg.Simulation.Name,
		RunID:         s.runID,
		Tick:          s.Runner.Ticks(),
		Elapsed:       s.Runner.Elapsed(),
		Spawning:      s.Director.Spawning(),
		Active:        s.Director.ActiveCount(),
		MaxConcurrent: s.cfg.Director.MaxConcurrent,
		Seats:         make([]SeatView, len(seats)),
		Customers:     make([]CustomerView, 0, s.Director.ActiveCount()),
		Pool: PoolView{
			Active:  s.Pool.Active(),
			Free:    s.Pool.Free(),
			Created: s.Pool.Created(),
		},
		Counters:    c,
		MeanWait:    c.MeanWait(),
		PublishedAt: time.Now(),
	}
	for i, st := range seats {
		snap.Seats[i] = SeatView{
			ID:       int(st.ID),
			Name:     st.Name,
			Occupied: st.Status == world.SeatOccupied,
			Retired:  st.Retired,
		}
	}
	s.Director.Each(func(cu *world.Customer) bool {
		v := CustomerView{
			ID:     uint64(cu.ID),
			Seat:   int(cu.Seat()),
			State:  cu.State().String(),
			Served: cu.Served(),
		}
		if p, ok := s.Nav.Position(cu.ID); ok {
			v.X, v.Y = p.X, p.Y
		}
		snap.Customers = append(snap.Customers, v)
		return true
	})
	if s.Kitchen != nil {
		snap.Orders = s.Kitchen.Pending()
	}
	if s.Ledger != nil {
		snap.LedgerBacklog = s.Ledger.Buffered()
	}
	s.snap.Store(snap)
}
