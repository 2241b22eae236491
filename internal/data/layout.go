package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Point is a position on the floor plan.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// SeatEntry is one seat of the floor plan. Order in the file is the seat's
// identity and the registry's scan order.
type SeatEntry struct {
	Name   string `yaml:"name"`
	Anchor Point  `yaml:"anchor"`
}

// Obstacle is an axis-aligned blocked rectangle. Targets inside it cannot be
// reached.
type Obstacle struct {
	Min Point `yaml:"min"`
	Max Point `yaml:"max"`
}

// Contains reports whether p lies inside the rectangle (edges included).
func (o Obstacle) Contains(p Point) bool {
	return p.X >= o.Min.X && p.X <= o.Max.X && p.Y >= o.Min.Y && p.Y <= o.Max.Y
}

type layoutFile struct {
	Spawn     Point       `yaml:"spawn"`
	Exit      Point       `yaml:"exit"`
	Seats     []SeatEntry `yaml:"seats"`
	Obstacles []Obstacle  `yaml:"obstacles"`
}

// Layout is the static floor plan loaded at start.
type Layout struct {
	Spawn     Point
	Exit      Point
	Seats     []SeatEntry
	Obstacles []Obstacle
}

// LoadLayout loads seat_layout.yaml.
func LoadLayout(path string) (*Layout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seat layout: %w", err)
	}
	return ParseLayout(raw)
}

// ParseLayout decodes and validates a layout document.
func ParseLayout(raw []byte) (*Layout, error) {
	var f layoutFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse seat layout: %w", err)
	}
	if len(f.Seats) == 0 {
		return nil, fmt.Errorf("seat layout: no seats defined")
	}
	names := make(map[string]int, len(f.Seats))
	for i := range f.Seats {
		s := &f.Seats[i]
		if s.Name == "" {
			s.Name = fmt.Sprintf("seat-%d", i)
		}
		if prev, dup := names[s.Name]; dup {
			return nil, fmt.Errorf("seat layout: seat %d reuses name %q of seat %d", i, s.Name, prev)
		}
		names[s.Name] = i
	}
	return &Layout{
		Spawn:     f.Spawn,
		Exit:      f.Exit,
		Seats:     f.Seats,
		Obstacles: f.Obstacles,
	}, nil
}

// Blocked reports whether p falls inside any obstacle of the layout.
func (l *Layout) Blocked(p Point) bool {
	return Blocked(l.Obstacles, p)
}

// Blocked reports whether p falls inside any of the obstacles.
func Blocked(obstacles []Obstacle, p Point) bool {
	for _, o := range obstacles {
		if o.Contains(p) {
			return true
		}
	}
	return false
}

// Count returns the number of seats.
func (l *Layout) Count() int {
	return len(l.Seats)
}
