package world

import (
	"github.com/seatflow/diner/internal/core/ecs"
	"github.com/seatflow/diner/internal/data"
)

// Point is a floor-plan position.
type Point = data.Point

// MoveStatus is what the movement service reports for an agent.
type MoveStatus uint8

const (
	MoveIdle    MoveStatus = iota // no request, or agent unknown
	MoveMoving                    // en route
	MoveArrived                   // reached the last requested target
	MoveNoPath                    // last request cannot be satisfied right now
)

func (s MoveStatus) String() string {
	switch s {
	case MoveMoving:
		return "moving"
	case MoveArrived:
		return "arrived"
	case MoveNoPath:
		return "no_path"
	}
	return "idle"
}

// Navigator moves agents over the floor. Requests are asynchronous: callers
// poll Status once per tick.
type Navigator interface {
	Place(id ecs.EntityID, p Point)
	MoveTo(id ecs.EntityID, target Point)
	Status(id ecs.EntityID) MoveStatus
	Position(id ecs.EntityID) (Point, bool)
	Stop(id ecs.EntityID) // forget the agent
}
