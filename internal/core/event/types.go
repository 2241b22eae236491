package event

import (
	"time"

	"github.com/seatflow/diner/internal/core/ecs"
)

// SeatStatusChanged is emitted whenever a seat flips occupancy.
type SeatStatusChanged struct {
	Seat     int
	Occupied bool
	At       time.Duration
}

// CustomerSpawned is emitted by the director after a successful spawn.
type CustomerSpawned struct {
	Customer ecs.EntityID
	Seat     int
	At       time.Duration
}

// CustomerDeparted is emitted once per visit when a customer terminates.
type CustomerDeparted struct {
	Customer  ecs.EntityID
	Seat      int
	Outcome   string
	Served    bool
	Waited    time.Duration
	SpawnedAt time.Duration
	LeftAt    time.Duration
}

// SpawnSkipped is emitted when a due spawn attempt hits back-pressure.
type SpawnSkipped struct {
	Reason string
	At     time.Duration
}
