package system

import (
	"time"

	"github.com/seatflow/diner/internal/core/event"
	coresys "github.com/seatflow/diner/internal/core/system"
)

// EventSystem swaps the bus buffers and delivers last tick's events.
// Phase 0 (Input).
type EventSystem struct {
	bus *event.Bus
}

func NewEventSystem(bus *event.Bus) *EventSystem {
	return &EventSystem{bus: bus}
}

func (s *EventSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *EventSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}

// Drain delivers everything still pending. Handlers that emit again are
// followed for at most rounds passes. Used at shutdown, when no more ticks run.
func (s *EventSystem) Drain(rounds int) {
	for i := 0; i < rounds && s.bus.Pending() > 0; i++ {
		s.bus.SwapBuffers()
		s.bus.DispatchAll()
	}
}
