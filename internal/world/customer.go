package world

import (
	"errors"
	"time"

	"github.com/seatflow/diner/internal/core/ecs"
	"go.uber.org/zap"
)

var (
	ErrAlreadyRunning = errors.New("world: customer already running")
	ErrNotIdle        = errors.New("world: customer not reset since last visit")
	ErrNoSeat         = errors.New("world: customer has no valid seat")
	ErrNoOwner        = errors.New("world: customer has no owner")
)

// State is a customer's lifecycle state.
type State uint8

const (
	StateIdle State = iota // pooled, not running
	StateMovingToSeat
	StateSettling // jump onto the seat; skipped when SettleDuration is 0
	StateWaitingForService
	StateConsuming
	StateMovingToExit
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMovingToSeat:
		return "moving_to_seat"
	case StateSettling:
		return "settling"
	case StateWaitingForService:
		return "waiting_for_service"
	case StateConsuming:
		return "consuming"
	case StateMovingToExit:
		return "moving_to_exit"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Outcome is how a visit ended.
type Outcome uint8

const (
	OutcomeNone      Outcome = iota
	OutcomeServed            // ate and left
	OutcomeBalked            // gave up waiting for service
	OutcomeAborted           // seat taken out of service mid-visit
	OutcomeStranded          // movement kept failing
	OutcomeCancelled         // force-released before finishing
)

func (o Outcome) String() string {
	switch o {
	case OutcomeServed:
		return "served"
	case OutcomeBalked:
		return "balked"
	case OutcomeAborted:
		return "aborted"
	case OutcomeStranded:
		return "stranded"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "none"
}

// Owner is notified exactly once when a customer's visit terminates.
type Owner interface {
	Remove(c *Customer) error
}

// CustomerConfig holds the visit timings shared by every customer.
type CustomerConfig struct {
	ServiceModeled   bool
	WaitTimeout      time.Duration
	ConsumeDuration  time.Duration
	SettleDuration   time.Duration
	RetryInterval    time.Duration
	RetryMaxInterval time.Duration
	MaxMoveAttempts  int // 0 = retry forever
}

// Customer walks to its seat, waits to be served, eats and leaves. Entry
// actions run synchronously on transition; Tick only polls and accumulates
// time. Accessed only from the game loop goroutine.
type Customer struct {
	ID ecs.EntityID

	cfg   CustomerConfig
	seats *SeatRegistry
	nav   Navigator
	log   *zap.Logger

	seat      SeatID
	exit      Point
	owner     Owner
	state     State
	running   bool
	holdsSeat bool
	served    bool
	outcome   Outcome

	inState time.Duration
	waited  time.Duration
	age     time.Duration

	moveTarget   Point
	moveAttempts int
	stall        time.Duration
}

func NewCustomer(seats *SeatRegistry, nav Navigator, cfg CustomerConfig, log *zap.Logger) *Customer {
	return &Customer{
		cfg:   cfg,
		seats: seats,
		nav:   nav,
		log:   log,
		seat:  NoSeat,
	}
}

// Initialize binds the customer to a seat, an exit and the owner to notify
// on termination.
func (c *Customer) Initialize(seat SeatID, exit Point, owner Owner) {
	c.seat = seat
	c.exit = exit
	c.owner = owner
}

// Start begins a visit.
func (c *Customer) Start() error {
	if c.running {
		return ErrAlreadyRunning
	}
	if c.state != StateIdle {
		return ErrNotIdle
	}
	if c.seat == NoSeat || !c.seats.Valid(c.seat) {
		return ErrNoSeat
	}
	if c.owner == nil {
		return ErrNoOwner
	}
	c.running = true
	c.enter(StateMovingToSeat)
	return nil
}

// Serve sets the served flag. It is accepted until the customer stops
// waiting; later deliveries are ignored.
func (c *Customer) Serve() bool {
	if !c.running || c.state > StateWaitingForService {
		return false
	}
	c.served = true
	return true
}

// Tick advances the visit by dt.
func (c *Customer) Tick(dt time.Duration) {
	if !c.running {
		return
	}
	c.age += dt

	if c.holdsSeat && !c.seats.Valid(c.seat) {
		c.log.Warn("seat lost mid-visit",
			zap.Uint64("customer", uint64(c.ID)),
			zap.Int("seat", int(c.seat)),
			zap.Stringer("state", c.state))
		c.holdsSeat = false
		c.finish(OutcomeAborted)
		return
	}

	switch c.state {
	case StateMovingToSeat:
		if c.stepMove(dt) {
			c.seated()
		}
	case StateSettling:
		c.inState += dt
		if c.inState >= c.cfg.SettleDuration {
			c.settled()
		}
	case StateWaitingForService:
		if c.served {
			c.enter(StateConsuming)
			return
		}
		c.inState += dt
		c.waited = c.inState
		if c.inState >= c.cfg.WaitTimeout {
			c.outcome = OutcomeBalked
			c.enter(StateMovingToExit)
		}
	case StateConsuming:
		c.inState += dt
		if c.inState >= c.cfg.ConsumeDuration {
			c.enter(StateMovingToExit)
		}
	case StateMovingToExit:
		if c.stepMove(dt) {
			c.finish(c.outcome)
		}
	}
}

// Reset cancels any visit in flight and clears every per-visit field. The
// seat, if still held, is emptied. Used when the customer returns to the pool.
func (c *Customer) Reset() {
	if c.running {
		c.running = false
		c.log.Debug("customer cancelled",
			zap.Uint64("customer", uint64(c.ID)),
			zap.Stringer("state", c.state))
	}
	if !c.ID.IsZero() {
		c.nav.Stop(c.ID)
	}
	if c.holdsSeat {
		if c.seats.Valid(c.seat) {
			_ = c.seats.SetStatus(c.seat, SeatEmpty)
		}
		c.holdsSeat = false
	}
	c.seat = NoSeat
	c.exit = Point{}
	c.owner = nil
	c.state = StateIdle
	c.served = false
	c.outcome = OutcomeNone
	c.inState = 0
	c.waited = 0
	c.age = 0
	c.moveTarget = Point{}
	c.moveAttempts = 0
	c.stall = 0
}

func (c *Customer) State() State           { return c.state }
func (c *Customer) Seat() SeatID           { return c.seat }
func (c *Customer) Exit() Point            { return c.exit }
func (c *Customer) Running() bool          { return c.running }
func (c *Customer) HoldsSeat() bool        { return c.holdsSeat }
func (c *Customer) Served() bool           { return c.served }
func (c *Customer) Outcome() Outcome       { return c.outcome }
func (c *Customer) Waited() time.Duration  { return c.waited }
func (c *Customer) Age() time.Duration     { return c.age }
func (c *Customer) InState() time.Duration { return c.inState }

// ---------- transitions ----------

func (c *Customer) enter(s State) {
	c.state = s
	c.inState = 0
	switch s {
	case StateMovingToSeat:
		_ = c.seats.SetStatus(c.seat, SeatOccupied)
		c.holdsSeat = true
		anchor, _ := c.seats.Anchor(c.seat)
		c.beginMove(anchor)
	case StateConsuming:
		c.outcome = OutcomeServed
	case StateMovingToExit:
		if c.holdsSeat {
			_ = c.seats.SetStatus(c.seat, SeatEmpty)
			c.holdsSeat = false
		}
		c.beginMove(c.exit)
	}
}

func (c *Customer) seated() {
	if c.cfg.SettleDuration > 0 {
		c.enter(StateSettling)
		return
	}
	c.settled()
}

func (c *Customer) settled() {
	if c.cfg.ServiceModeled {
		c.enter(StateWaitingForService)
		return
	}
	c.enter(StateConsuming)
}

// finish ends the visit and hands the customer back to its owner. The owner
// usually releases it to the pool, which resets every field, so nothing may
// touch c after the call.
func (c *Customer) finish(o Outcome) {
	c.outcome = o
	c.state = StateTerminated
	c.inState = 0
	c.running = false
	c.nav.Stop(c.ID)
	c.log.Debug("customer left",
		zap.Uint64("customer", uint64(c.ID)),
		zap.Int("seat", int(c.seat)),
		zap.Stringer("outcome", o),
		zap.Duration("age", c.age))
	if err := c.owner.Remove(c); err != nil {
		c.log.Error("owner refused terminated customer",
			zap.Uint64("customer", uint64(c.ID)),
			zap.Error(err))
	}
}

// ---------- movement ----------

func (c *Customer) beginMove(target Point) {
	c.moveTarget = target
	c.moveAttempts = 0
	c.stall = 0
	c.nav.MoveTo(c.ID, target)
}

// stepMove polls the navigator and reports arrival. A NoPath report stalls
// the customer for a doubling interval before the request is re-issued; too
// many consecutive failures make it give up.
func (c *Customer) stepMove(dt time.Duration) bool {
	if c.stall > 0 {
		c.stall -= dt
		if c.stall > 0 {
			return false
		}
		c.stall = 0
		c.nav.MoveTo(c.ID, c.moveTarget)
	}
	switch c.nav.Status(c.ID) {
	case MoveArrived:
		c.moveAttempts = 0
		return true
	case MoveNoPath:
		c.moveAttempts++
		if c.cfg.MaxMoveAttempts > 0 && c.moveAttempts >= c.cfg.MaxMoveAttempts {
			c.giveUp()
			return false
		}
		c.stall = c.backoff()
		c.log.Warn("customer stuck, retrying",
			zap.Uint64("customer", uint64(c.ID)),
			zap.Stringer("state", c.state),
			zap.Int("attempt", c.moveAttempts),
			zap.Duration("wait", c.stall))
	case MoveIdle:
		// Agent lost by the navigator; ask again.
		c.nav.MoveTo(c.ID, c.moveTarget)
	}
	return false
}

func (c *Customer) backoff() time.Duration {
	d := c.cfg.RetryInterval
	if d <= 0 {
		d = 500 * time.Millisecond
	}
	for i := 1; i < c.moveAttempts; i++ {
		d *= 2
		if c.cfg.RetryMaxInterval > 0 && d >= c.cfg.RetryMaxInterval {
			return c.cfg.RetryMaxInterval
		}
	}
	return d
}

func (c *Customer) giveUp() {
	c.log.Warn("customer gave up moving",
		zap.Uint64("customer", uint64(c.ID)),
		zap.Stringer("state", c.state),
		zap.Int("attempts", c.moveAttempts))
	if c.state == StateMovingToSeat {
		c.outcome = OutcomeStranded
		c.enter(StateMovingToExit)
		return
	}
	c.finish(OutcomeStranded)
}
