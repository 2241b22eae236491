package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: deliver last tick's events
	PhasePreUpdate               // 1: kitchen service
	PhaseUpdate                  // 2: movement, customer state machines
	PhasePostUpdate              // 3: spawning
	PhaseOutput                  // 4: stats snapshot
	PhasePersist                 // 5: ledger flush
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre-update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post-update"
	case PhaseOutput:
		return "output"
	case PhasePersist:
		return "persist"
	}
	return "unknown"
}

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
