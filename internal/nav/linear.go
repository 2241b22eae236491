// Package nav is a minimal movement service: agents walk in a straight line
// at constant speed. It stands in for a real pathfinder.
package nav

import (
	"math"
	"time"

	"github.com/kamstrup/intmap"
	"github.com/seatflow/diner/internal/core/ecs"
	"github.com/seatflow/diner/internal/data"
	"github.com/seatflow/diner/internal/world"
)

type agent struct {
	pos    world.Point
	target world.Point
	status world.MoveStatus
}

// Linear implements world.Navigator. A target inside an obstacle reports
// MoveNoPath until the obstacle is cleared and the move re-requested.
type Linear struct {
	speed     float64 // floor units per second
	arrive    float64
	obstacles []data.Obstacle
	agents    *intmap.Map[ecs.EntityID, *agent]
}

var _ world.Navigator = (*Linear)(nil)

func NewLinear(speed, arriveDistance float64, obstacles []data.Obstacle) *Linear {
	return &Linear{
		speed:     speed,
		arrive:    arriveDistance,
		obstacles: append([]data.Obstacle(nil), obstacles...),
		agents:    intmap.New[ecs.EntityID, *agent](64),
	}
}

func (l *Linear) Place(id ecs.EntityID, p world.Point) {
	l.agents.Put(id, &agent{pos: p, target: p, status: world.MoveIdle})
}

func (l *Linear) MoveTo(id ecs.EntityID, target world.Point) {
	a, ok := l.agents.Get(id)
	if !ok {
		a = &agent{pos: target}
		l.agents.Put(id, a)
	}
	a.target = target
	switch {
	case data.Blocked(l.obstacles, target):
		a.status = world.MoveNoPath
	case dist(a.pos, target) <= l.arrive:
		a.pos = target
		a.status = world.MoveArrived
	default:
		a.status = world.MoveMoving
	}
}

func (l *Linear) Status(id ecs.EntityID) world.MoveStatus {
	if a, ok := l.agents.Get(id); ok {
		return a.status
	}
	return world.MoveIdle
}

func (l *Linear) Position(id ecs.EntityID) (world.Point, bool) {
	if a, ok := l.agents.Get(id); ok {
		return a.pos, true
	}
	return world.Point{}, false
}

func (l *Linear) Stop(id ecs.EntityID) {
	l.agents.Del(id)
}

// Advance moves every walking agent by speed*dt toward its target.
func (l *Linear) Advance(dt time.Duration) {
	step := l.speed * dt.Seconds()
	l.agents.ForEach(func(_ ecs.EntityID, a *agent) bool {
		if a.status != world.MoveMoving {
			return true
		}
		remaining := dist(a.pos, a.target)
		if remaining-step <= l.arrive {
			a.pos = a.target
			a.status = world.MoveArrived
			return true
		}
		f := step / remaining
		a.pos.X += (a.target.X - a.pos.X) * f
		a.pos.Y += (a.target.Y - a.pos.Y) * f
		return true
	})
}

// SetObstacles replaces the blocked areas. Agents already walking keep going;
// the check applies to new requests.
func (l *Linear) SetObstacles(obstacles []data.Obstacle) {
	l.obstacles = append(l.obstacles[:0], obstacles...)
}

// Agents returns the number of tracked agents.
func (l *Linear) Agents() int { return l.agents.Len() }

func dist(a, b world.Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
