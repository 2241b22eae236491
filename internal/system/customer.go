package system

import (
	"time"

	coresys "github.com/seatflow/diner/internal/core/system"
	"github.com/seatflow/diner/internal/world"
)

// CustomerSystem advances every active customer's state machine.
// Phase 2 (Update), after movement.
type CustomerSystem struct {
	director *Director
	buf      []*world.Customer
}

func NewCustomerSystem(d *Director) *CustomerSystem {
	return &CustomerSystem{director: d}
}

func (s *CustomerSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

// Update ticks a snapshot of the roster: customers that finish during the
// pass are removed from the director and must not disturb the iteration.
func (s *CustomerSystem) Update(dt time.Duration) {
	s.buf = s.director.AppendActive(s.buf[:0])
	for _, c := range s.buf {
		c.Tick(dt)
	}
	clear(s.buf)
}
