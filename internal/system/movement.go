package system

import (
	"time"

	coresys "github.com/seatflow/diner/internal/core/system"
)

// Advancer is a movement service that needs a per-tick step.
type Advancer interface {
	Advance(dt time.Duration)
}

// MovementSystem steps the movement service so customers polling it later in
// the same phase see fresh positions. Phase 2 (Update), registered before
// CustomerSystem.
type MovementSystem struct {
	nav Advancer
}

func NewMovementSystem(nav Advancer) *MovementSystem {
	return &MovementSystem{nav: nav}
}

func (s *MovementSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *MovementSystem) Update(dt time.Duration) {
	s.nav.Advance(dt)
}
