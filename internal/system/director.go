package system

import (
	"errors"
	"fmt"
	"time"

	"github.com/kamstrup/intmap"
	"github.com/seatflow/diner/internal/core/ecs"
	"github.com/seatflow/diner/internal/core/event"
	"github.com/seatflow/diner/internal/core/pool"
	coresys "github.com/seatflow/diner/internal/core/system"
	"github.com/seatflow/diner/internal/world"
	"go.uber.org/zap"
)

var ErrNotTracked = errors.New("system: customer not tracked by director")

// Skip reasons carried by event.SpawnSkipped.
const (
	SkipAtCapacity    = "at_capacity"
	SkipNoFreeSeat    = "no_free_seat"
	SkipPoolExhausted = "pool_exhausted"
	SkipStartFailed   = "start_failed"
)

// CustomerPool is the slice of the entity pool the director needs.
// *pool.Pool[*world.Customer] satisfies it.
type CustomerPool interface {
	Acquire() (*world.Customer, error)
	Release(c *world.Customer) error
	ReleaseAll() int
}

type DirectorConfig struct {
	SpawnPeriod   time.Duration
	MaxConcurrent int
	Spawning      bool
	Spawn         world.Point // where new customers appear
	Exit          world.Point
}

type visit struct {
	customer  *world.Customer
	spawnedAt time.Duration
}

// Director spawns customers on a fixed period while seats and capacity allow,
// and takes them back when their visit ends. It is the world.Owner of every
// customer it starts. Phase 3 (PostUpdate).
type Director struct {
	cfg   DirectorConfig
	seats *world.SeatRegistry
	pool  CustomerPool
	nav   world.Navigator
	bus   *event.Bus
	now   func() time.Duration
	log   *zap.Logger

	spawning bool
	timer    time.Duration

	active *intmap.Map[ecs.EntityID, *visit]
	roster []*world.Customer // spawn order
}

var (
	_ world.Owner    = (*Director)(nil)
	_ coresys.System = (*Director)(nil)
)

// NewDirector wires the director. now reports simulated time and stamps
// events; it is usually Runner.Elapsed.
func NewDirector(cfg DirectorConfig, seats *world.SeatRegistry, p CustomerPool, nav world.Navigator, bus *event.Bus, now func() time.Duration, log *zap.Logger) *Director {
	return &Director{
		cfg:      cfg,
		seats:    seats,
		pool:     p,
		nav:      nav,
		bus:      bus,
		now:      now,
		log:      log,
		spawning: cfg.Spawning,
		timer:    cfg.SpawnPeriod, // armed: the first tick attempts a spawn
		active:   intmap.New[ecs.EntityID, *visit](cfg.MaxConcurrent),
	}
}

func (d *Director) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (d *Director) Update(dt time.Duration) {
	if !d.spawning {
		return
	}
	d.timer += dt
	if d.timer < d.cfg.SpawnPeriod {
		return
	}
	d.timer = 0
	d.spawn()
}

// SetSpawning turns periodic spawning on or off. Turning it back on re-arms
// the timer.
func (d *Director) SetSpawning(on bool) {
	if on && !d.spawning {
		d.timer = d.cfg.SpawnPeriod
	}
	d.spawning = on
}

func (d *Director) Spawning() bool { return d.spawning }

// SpawnNow makes one spawn attempt outside the timer. Admission still applies.
func (d *Director) SpawnNow() (*world.Customer, bool) {
	c := d.spawn()
	return c, c != nil
}

// spawn runs the whole admission and start sequence without yielding, so no
// other system can observe a half-spawned customer.
func (d *Director) spawn() *world.Customer {
	if len(d.roster) >= d.cfg.MaxConcurrent {
		d.skip(SkipAtCapacity)
		return nil
	}
	seat, ok := d.seats.FindFreeSeat()
	if !ok {
		d.skip(SkipNoFreeSeat)
		return nil
	}

	c, err := d.pool.Acquire()
	if err != nil {
		if errors.Is(err, pool.ErrExhausted) {
			d.skip(SkipPoolExhausted)
			return nil
		}
		d.log.Error("acquire customer", zap.Error(err))
		return nil
	}

	d.nav.Place(c.ID, d.cfg.Spawn)
	c.Initialize(seat, d.cfg.Exit, d)
	if err := d.seats.SetStatus(seat, world.SeatOccupied); err != nil {
		d.log.Error("claim seat", zap.Int("seat", int(seat)), zap.Error(err))
		d.discard(c)
		return nil
	}
	at := d.now()
	d.track(c, at)

	if err := c.Start(); err != nil {
		d.log.Error("start customer",
			zap.Uint64("customer", uint64(c.ID)),
			zap.Int("seat", int(seat)),
			zap.Error(err))
		d.untrack(c.ID)
		_ = d.seats.SetStatus(seat, world.SeatEmpty)
		d.discard(c)
		d.skip(SkipStartFailed)
		return nil
	}

	event.Emit(d.bus, event.CustomerSpawned{Customer: c.ID, Seat: int(seat), At: at})
	d.log.Debug("customer spawned",
		zap.Uint64("customer", uint64(c.ID)),
		zap.Int("seat", int(seat)),
		zap.String("seat_name", d.seats.Name(seat)),
		zap.Int("active", len(d.roster)))
	return c
}

// Remove takes back a customer whose visit ended and returns it to the pool.
func (d *Director) Remove(c *world.Customer) error {
	if c == nil {
		d.log.Error("remove nil customer", zap.Error(ErrNotTracked))
		return ErrNotTracked
	}
	v, ok := d.active.Get(c.ID)
	if !ok || v.customer != c {
		d.log.Error("remove untracked customer",
			zap.Uint64("customer", uint64(c.ID)),
			zap.Error(ErrNotTracked))
		return ErrNotTracked
	}
	d.untrack(c.ID)
	d.depart(c, v.spawnedAt)
	if err := d.pool.Release(c); err != nil {
		return fmt.Errorf("release customer: %w", err)
	}
	return nil
}

// Shutdown cancels every visit in flight and returns all customers to the
// pool. Returns how many were cancelled.
func (d *Director) Shutdown() int {
	d.spawning = false
	roster := append([]*world.Customer(nil), d.roster...)
	for _, c := range roster {
		v, _ := d.active.Get(c.ID)
		d.untrack(c.ID)
		if v != nil {
			d.depart(c, v.spawnedAt)
		}
		if err := d.pool.Release(c); err != nil {
			d.log.Error("release on shutdown", zap.Uint64("customer", uint64(c.ID)), zap.Error(err))
		}
	}
	if n := d.pool.ReleaseAll(); n > 0 {
		d.log.Warn("released untracked pooled customers", zap.Int("count", n))
	}
	return len(roster)
}

// ActiveCount returns the number of customers currently in a visit.
func (d *Director) ActiveCount() int { return len(d.roster) }

// Each calls fn for every active customer in spawn order until fn returns
// false. fn must not spawn or remove customers.
func (d *Director) Each(fn func(c *world.Customer) bool) {
	for _, c := range d.roster {
		if !fn(c) {
			return
		}
	}
}

// Lookup returns the active customer with the given id.
func (d *Director) Lookup(id ecs.EntityID) (*world.Customer, bool) {
	v, ok := d.active.Get(id)
	if !ok {
		return nil, false
	}
	return v.customer, true
}

// AppendActive appends the active customers in spawn order to buf.
func (d *Director) AppendActive(buf []*world.Customer) []*world.Customer {
	return append(buf, d.roster...)
}

func (d *Director) track(c *world.Customer, at time.Duration) {
	d.active.Put(c.ID, &visit{customer: c, spawnedAt: at})
	d.roster = append(d.roster, c)
}

func (d *Director) untrack(id ecs.EntityID) {
	d.active.Del(id)
	for i, c := range d.roster {
		if c.ID == id {
			d.roster = append(d.roster[:i], d.roster[i+1:]...)
			return
		}
	}
}

func (d *Director) depart(c *world.Customer, spawnedAt time.Duration) {
	outcome := c.Outcome()
	if c.Running() || outcome == world.OutcomeNone {
		outcome = world.OutcomeCancelled
	}
	event.Emit(d.bus, event.CustomerDeparted{
		Customer:  c.ID,
		Seat:      int(c.Seat()),
		Outcome:   outcome.String(),
		Served:    c.Served(),
		Waited:    c.Waited(),
		SpawnedAt: spawnedAt,
		LeftAt:    d.now(),
	})
}

func (d *Director) discard(c *world.Customer) {
	if err := d.pool.Release(c); err != nil {
		d.log.Error("discard customer", zap.Uint64("customer", uint64(c.ID)), zap.Error(err))
	}
}

func (d *Director) skip(reason string) {
	event.Emit(d.bus, event.SpawnSkipped{Reason: reason, At: d.now()})
	d.log.Debug("spawn skipped", zap.String("reason", reason), zap.Int("active", len(d.roster)))
}
