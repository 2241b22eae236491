package system

import (
	"testing"
	"time"

	"github.com/seatflow/diner/internal/core/ecs"
	"github.com/seatflow/diner/internal/core/event"
	"github.com/seatflow/diner/internal/core/pool"
	coresys "github.com/seatflow/diner/internal/core/system"
	"github.com/seatflow/diner/internal/data"
	"github.com/seatflow/diner/internal/nav"
	"github.com/seatflow/diner/internal/world"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const step = 100 * time.Millisecond

var (
	spawnPoint = world.Point{X: 0, Y: 0}
	exitPoint  = world.Point{X: 0, Y: -2}
)

// harness is a small diner: fast walkers so every move completes in one tick.
type harness struct {
	seats    *world.SeatRegistry
	nav      *nav.Linear
	ids      *ecs.IDPool
	pool     *pool.Pool[*world.Customer]
	bus      *event.Bus
	runner   *coresys.Runner
	director *Director
	events   *EventSystem

	spawned  []event.CustomerSpawned
	departed []event.CustomerDeparted
	skipped  []event.SpawnSkipped
}

func newSeats(n int) *world.SeatRegistry {
	entries := make([]data.SeatEntry, n)
	for i := range entries {
		entries[i] = data.SeatEntry{Name: "seat", Anchor: data.Point{X: float64(i + 1), Y: 1}}
	}
	return world.NewSeatRegistry(entries, zap.NewNop())
}

func customerConfig() world.CustomerConfig {
	return world.CustomerConfig{
		ServiceModeled:   true,
		WaitTimeout:      2 * time.Second,
		ConsumeDuration:  time.Second,
		RetryInterval:    200 * time.Millisecond,
		RetryMaxInterval: time.Second,
		MaxMoveAttempts:  3,
	}
}

func newHarness(t *testing.T, nseats int, dc DirectorConfig, cc world.CustomerConfig, pc world.PoolConfig) *harness {
	t.Helper()
	h := &harness{
		seats:  newSeats(nseats),
		nav:    nav.NewLinear(50, 0.1, nil),
		ids:    ecs.NewIDPool(),
		bus:    event.NewBus(),
		runner: coresys.NewRunner(),
	}
	h.seats.SetStrict(true)
	h.pool = world.NewCustomerPool(h.seats, h.nav, h.ids, cc, pc, zap.NewNop())
	dc.Spawn, dc.Exit = spawnPoint, exitPoint
	h.director = NewDirector(dc, h.seats, h.pool, h.nav, h.bus, h.runner.Elapsed, zap.NewNop())
	h.events = NewEventSystem(h.bus)

	event.Subscribe(h.bus, func(e event.CustomerSpawned) { h.spawned = append(h.spawned, e) })
	event.Subscribe(h.bus, func(e event.CustomerDeparted) { h.departed = append(h.departed, e) })
	event.Subscribe(h.bus, func(e event.SpawnSkipped) { h.skipped = append(h.skipped, e) })

	h.runner.Register(h.events)
	h.runner.Register(NewMovementSystem(h.nav))
	h.runner.Register(NewCustomerSystem(h.director))
	h.runner.Register(h.director)
	return h
}

// tick runs one full tick and checks the seat invariants afterwards.
func (h *harness) tick(t *testing.T) {
	t.Helper()
	h.runner.Tick(step)
	h.checkInvariants(t)
}

func (h *harness) tickN(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		h.tick(t)
	}
}

// flush delivers events still sitting in the back buffer.
func (h *harness) flush() { h.events.Drain(2) }

func (h *harness) checkInvariants(t *testing.T) {
	t.Helper()
	holders := 0
	bySeat := make(map[world.SeatID]bool)
	h.director.Each(func(c *world.Customer) bool {
		if c.HoldsSeat() {
			holders++
			require.False(t, bySeat[c.Seat()], "seat %d shared", c.Seat())
			bySeat[c.Seat()] = true
		}
		return true
	})
	require.Equal(t, holders, h.seats.OccupiedCount(), "occupied seats match holders")
	require.LessOrEqual(t, h.director.ActiveCount(), h.director.cfg.MaxConcurrent)
	require.Equal(t, h.director.ActiveCount(), h.pool.Active(), "every leased customer is tracked")
}

func (h *harness) outcomes() map[string]int {
	out := make(map[string]int)
	for _, d := range h.departed {
		out[d.Outcome]++
	}
	return out
}

type nopOwner struct{}

func (nopOwner) Remove(*world.Customer) error { return nil }

// stubPool hands out one prepared customer.
type stubPool struct {
	next     *world.Customer
	released []*world.Customer
}

func (p *stubPool) Acquire() (*world.Customer, error) { return p.next, nil }

func (p *stubPool) Release(c *world.Customer) error {
	p.released = append(p.released, c)
	return nil
}

func (p *stubPool) ReleaseAll() int { return 0 }
