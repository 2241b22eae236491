package world

import (
	"errors"
	"fmt"

	"github.com/seatflow/diner/internal/data"
	"go.uber.org/zap"
)

// ErrUnknownSeat is returned when a seat handle does not name an in-service seat.
var ErrUnknownSeat = errors.New("world: unknown seat")

// SeatID is the stable handle of a seat: its index in the floor plan.
type SeatID int

// NoSeat marks an absent seat reference.
const NoSeat SeatID = -1

type SeatStatus uint8

const (
	SeatEmpty SeatStatus = iota
	SeatOccupied
)

func (s SeatStatus) String() string {
	if s == SeatOccupied {
		return "occupied"
	}
	return "empty"
}

// Seat is a fixed slot on the floor plan.
type Seat struct {
	ID      SeatID
	Name    string
	Anchor  Point
	Status  SeatStatus
	Retired bool // taken out of service; never handed out again
}

// SeatRegistry owns every seat and its occupancy. Accessed only from the
// game loop goroutine, so no locks.
type SeatRegistry struct {
	seats    []Seat
	occupied int
	strict   bool
	log      *zap.Logger

	// OnStatusChange, when set, observes every real occupancy flip.
	OnStatusChange func(id SeatID, status SeatStatus)
}

// NewSeatRegistry builds the registry in floor-plan order.
func NewSeatRegistry(entries []data.SeatEntry, log *zap.Logger) *SeatRegistry {
	r := &SeatRegistry{
		seats: make([]Seat, len(entries)),
		log:   log,
	}
	for i, e := range entries {
		r.seats[i] = Seat{ID: SeatID(i), Name: e.Name, Anchor: e.Anchor}
	}
	return r
}

// SetStrict makes invalid-handle writes panic instead of logging.
func (r *SeatRegistry) SetStrict(strict bool) { r.strict = strict }

// FindFreeSeat returns the first empty, in-service seat in floor-plan order.
func (r *SeatRegistry) FindFreeSeat() (SeatID, bool) {
	for i := range r.seats {
		s := &r.seats[i]
		if !s.Retired && s.Status == SeatEmpty {
			return s.ID, true
		}
	}
	return NoSeat, false
}

func (r *SeatRegistry) HasFreeSeat() bool {
	_, ok := r.FindFreeSeat()
	return ok
}

// SetStatus writes a seat's occupancy. Writing the current value changes
// nothing and notifies no one.
func (r *SeatRegistry) SetStatus(id SeatID, status SeatStatus) error {
	s, err := r.lookup(id)
	if err != nil {
		r.invalid("set seat status", id, err)
		return err
	}
	if s.Status == status {
		return nil
	}
	s.Status = status
	if status == SeatOccupied {
		r.occupied++
	} else {
		r.occupied--
	}
	if r.OnStatusChange != nil {
		r.OnStatusChange(id, status)
	}
	return nil
}

// Status returns the occupancy of an in-service seat.
func (r *SeatRegistry) Status(id SeatID) (SeatStatus, bool) {
	s, err := r.lookup(id)
	if err != nil {
		return SeatEmpty, false
	}
	return s.Status, true
}

// Anchor returns the point a customer walks to for this seat.
func (r *SeatRegistry) Anchor(id SeatID) (Point, bool) {
	s, err := r.lookup(id)
	if err != nil {
		return Point{}, false
	}
	return s.Anchor, true
}

// Name returns the floor-plan name of any seat, retired or not.
func (r *SeatRegistry) Name(id SeatID) string {
	if id < 0 || int(id) >= len(r.seats) {
		return ""
	}
	return r.seats[id].Name
}

// Valid reports whether id names an in-service seat.
func (r *SeatRegistry) Valid(id SeatID) bool {
	_, err := r.lookup(id)
	return err == nil
}

// Retire takes a seat out of service. An occupied seat is emptied first;
// its holder notices on its next tick and aborts. Until then the holder
// still reports HoldsSeat, so OccupiedCount is one lower than the number of
// holders.
func (r *SeatRegistry) Retire(id SeatID) error {
	if _, err := r.lookup(id); err != nil {
		r.invalid("retire seat", id, err)
		return err
	}
	if err := r.SetStatus(id, SeatEmpty); err != nil {
		return err
	}
	r.seats[id].Retired = true
	r.log.Info("seat retired", zap.Int("seat", int(id)), zap.String("name", r.seats[id].Name))
	return nil
}

func (r *SeatRegistry) Len() int           { return len(r.seats) }
func (r *SeatRegistry) OccupiedCount() int { return r.occupied }

// Seats returns a copy of every seat.
func (r *SeatRegistry) Seats() []Seat {
	out := make([]Seat, len(r.seats))
	copy(out, r.seats)
	return out
}

func (r *SeatRegistry) lookup(id SeatID) (*Seat, error) {
	if id < 0 || int(id) >= len(r.seats) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSeat, id)
	}
	s := &r.seats[id]
	if s.Retired {
		return nil, fmt.Errorf("%w: %d retired", ErrUnknownSeat, id)
	}
	return s, nil
}

func (r *SeatRegistry) invalid(op string, id SeatID, err error) {
	if r.strict {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	r.log.Warn("invalid seat handle", zap.String("op", op), zap.Int("seat", int(id)), zap.Error(err))
}
