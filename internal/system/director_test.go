package system

import (
	"testing"
	"time"

	"github.com/seatflow/diner/internal/core/ecs"
	"github.com/seatflow/diner/internal/nav"
	"github.com/seatflow/diner/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDirectorSpawnsOnFirstTick(t *testing.T) {
	h := newHarness(t, 3, DirectorConfig{SpawnPeriod: time.Second, MaxConcurrent: 3, Spawning: true},
		customerConfig(), world.PoolConfig{Initial: 3})

	h.tick(t)
	assert.Equal(t, 1, h.director.ActiveCount(), "timer starts armed")
	assert.Equal(t, 1, h.seats.OccupiedCount())

	h.tickN(t, 9)
	assert.Equal(t, 1, h.director.ActiveCount(), "next attempt waits a full period")

	h.tick(t)
	assert.Equal(t, 2, h.director.ActiveCount())
}

// One seat, one slot: two attempts inside one period spawn exactly once.
func TestDirectorSingleSeatSpawnsOnce(t *testing.T) {
	h := newHarness(t, 1, DirectorConfig{SpawnPeriod: 5 * time.Second, MaxConcurrent: 1, Spawning: true},
		customerConfig(), world.PoolConfig{Initial: 1})

	h.director.Update(step)
	h.director.Update(step)
	h.flush()

	assert.Equal(t, 1, h.director.ActiveCount())
	assert.Equal(t, 1, h.seats.OccupiedCount())
	assert.Len(t, h.spawned, 1)

	_, ok := h.director.SpawnNow()
	assert.False(t, ok, "cap reached and no free seat")
	h.flush()
	require.Len(t, h.skipped, 1)
	assert.Equal(t, SkipAtCapacity, h.skipped[0].Reason)
}

func TestDirectorNoFreeSeat(t *testing.T) {
	h := newHarness(t, 1, DirectorConfig{SpawnPeriod: time.Second, MaxConcurrent: 5},
		customerConfig(), world.PoolConfig{Initial: 2})

	c, ok := h.director.SpawnNow()
	require.True(t, ok)
	assert.Equal(t, world.SeatID(0), c.Seat())

	_, ok = h.director.SpawnNow()
	assert.False(t, ok)
	h.flush()
	require.Len(t, h.skipped, 1)
	assert.Equal(t, SkipNoFreeSeat, h.skipped[0].Reason)
	assert.Equal(t, 1, h.pool.Active(), "nothing acquired for a refused spawn")
}

func TestDirectorPoolExhaustionIsBackPressure(t *testing.T) {
	h := newHarness(t, 3, DirectorConfig{SpawnPeriod: time.Second, MaxConcurrent: 3},
		customerConfig(), world.PoolConfig{Initial: 1, Max: 1})

	_, ok := h.director.SpawnNow()
	require.True(t, ok)
	_, ok = h.director.SpawnNow()
	assert.False(t, ok)
	h.flush()

	require.Len(t, h.skipped, 1)
	assert.Equal(t, SkipPoolExhausted, h.skipped[0].Reason)
	assert.Equal(t, 1, h.seats.OccupiedCount(), "no seat claimed without a customer")
	h.checkInvariants(t)
}

func TestDirectorSpawningSwitch(t *testing.T) {
	h := newHarness(t, 2, DirectorConfig{SpawnPeriod: time.Second, MaxConcurrent: 2},
		customerConfig(), world.PoolConfig{Initial: 2})

	h.tickN(t, 20)
	assert.Zero(t, h.director.ActiveCount())

	h.director.SetSpawning(true)
	assert.True(t, h.director.Spawning())
	h.tick(t)
	assert.Equal(t, 1, h.director.ActiveCount(), "re-enabling re-arms the timer")

	h.director.SetSpawning(false)
	h.tickN(t, 15)
	assert.LessOrEqual(t, h.director.ActiveCount(), 1)
	h.flush()
	assert.Len(t, h.spawned, 1)
}

func TestDirectorRemoveUntracked(t *testing.T) {
	h := newHarness(t, 1, DirectorConfig{SpawnPeriod: time.Second, MaxConcurrent: 1},
		customerConfig(), world.PoolConfig{Initial: 1})

	stray, err := h.pool.Acquire()
	require.NoError(t, err)
	assert.ErrorIs(t, h.director.Remove(stray), ErrNotTracked)
	assert.True(t, h.pool.IsActive(stray), "untracked customers are left alone")

	assert.ErrorIs(t, h.director.Remove(nil), ErrNotTracked)
	assert.Zero(t, h.director.ActiveCount())
}

func TestDirectorRollsBackFailedStart(t *testing.T) {
	seats := newSeats(1)
	walker := nav.NewLinear(50, 0.1, nil)

	// A customer that finished a visit but was never reset refuses to start.
	cc := customerConfig()
	cc.ServiceModeled = false
	cc.ConsumeDuration = 0
	used := world.NewCustomer(seats, walker, cc, zap.NewNop())
	used.ID = 7
	used.Initialize(0, exitPoint, nopOwner{})
	require.NoError(t, used.Start())
	for i := 0; i < 50 && used.Running(); i++ {
		walker.Advance(step)
		used.Tick(step)
	}
	require.Equal(t, world.StateTerminated, used.State())
	require.Zero(t, seats.OccupiedCount())

	p := &stubPool{next: used}
	h := newHarness(t, 1, DirectorConfig{SpawnPeriod: time.Second, MaxConcurrent: 1},
		customerConfig(), world.PoolConfig{})
	d := NewDirector(DirectorConfig{SpawnPeriod: time.Second, MaxConcurrent: 1, Spawn: spawnPoint, Exit: exitPoint},
		seats, p, walker, h.bus, h.runner.Elapsed, zap.NewNop())

	_, ok := d.SpawnNow()
	assert.False(t, ok)
	assert.Zero(t, d.ActiveCount())
	assert.Zero(t, seats.OccupiedCount(), "seat claim rolled back")
	assert.Equal(t, []*world.Customer{used}, p.released)

	h.flush()
	require.Len(t, h.skipped, 1)
	assert.Equal(t, SkipStartFailed, h.skipped[0].Reason)
}

func TestDirectorVisitReturnsCustomerToPool(t *testing.T) {
	h := newHarness(t, 1, DirectorConfig{SpawnPeriod: time.Hour, MaxConcurrent: 1, Spawning: true},
		customerConfig(), world.PoolConfig{Initial: 1})

	h.tick(t)
	c, ok := h.director.Lookup(h.firstActive(t))
	require.True(t, ok)
	first := c.ID

	// Never served: waits out the timeout, walks out, and is released.
	for i := 0; i < 100 && h.director.ActiveCount() > 0; i++ {
		h.tick(t)
	}
	h.flush()
	require.Zero(t, h.director.ActiveCount())
	assert.Equal(t, 1, h.pool.Free())
	assert.False(t, h.ids.Alive(first))
	assert.Zero(t, h.seats.OccupiedCount())

	require.Len(t, h.departed, 1)
	d := h.departed[0]
	assert.Equal(t, first, d.Customer)
	assert.Equal(t, "balked", d.Outcome)
	assert.False(t, d.Served)
	assert.Equal(t, 2*time.Second, d.Waited)
	assert.Greater(t, d.LeftAt, d.SpawnedAt)
}

func TestDirectorSeatRetiredMidVisit(t *testing.T) {
	h := newHarness(t, 2, DirectorConfig{SpawnPeriod: time.Hour, MaxConcurrent: 2},
		customerConfig(), world.PoolConfig{Initial: 2})

	a, ok := h.director.SpawnNow()
	require.True(t, ok)
	_, ok = h.director.SpawnNow()
	require.True(t, ok)
	h.tickN(t, 3)

	require.NoError(t, h.seats.Retire(a.Seat()))
	h.tick(t)
	h.flush()

	assert.Equal(t, 1, h.director.ActiveCount())
	assert.Equal(t, map[string]int{"aborted": 1}, h.outcomes())
	assert.Equal(t, 1, h.seats.OccupiedCount())

	// The retired seat is never handed out again.
	h.tickN(t, 60)
	_, ok = h.director.SpawnNow()
	require.True(t, ok)
	h.director.Each(func(c *world.Customer) bool {
		assert.Equal(t, world.SeatID(1), c.Seat())
		return true
	})
}

func TestDirectorShutdownCancelsVisits(t *testing.T) {
	h := newHarness(t, 3, DirectorConfig{SpawnPeriod: time.Hour, MaxConcurrent: 3, Spawning: true},
		customerConfig(), world.PoolConfig{Initial: 3})

	for i := 0; i < 3; i++ {
		_, ok := h.director.SpawnNow()
		require.True(t, ok)
	}
	h.tickN(t, 2)

	assert.Equal(t, 3, h.director.Shutdown())
	h.flush()

	assert.Zero(t, h.director.ActiveCount())
	assert.Zero(t, h.pool.Active())
	assert.Zero(t, h.seats.OccupiedCount())
	assert.Zero(t, h.nav.Agents(), "no walker left behind")
	assert.False(t, h.director.Spawning())
	assert.Equal(t, map[string]int{"cancelled": 3}, h.outcomes())
}

func TestDirectorChurnKeepsInvariants(t *testing.T) {
	cc := customerConfig()
	cc.WaitTimeout = 700 * time.Millisecond
	cc.ConsumeDuration = 300 * time.Millisecond
	cc.SettleDuration = 200 * time.Millisecond
	h := newHarness(t, 4, DirectorConfig{SpawnPeriod: 200 * time.Millisecond, MaxConcurrent: 3, Spawning: true},
		cc, world.PoolConfig{Initial: 1})

	for i := 0; i < 600; i++ {
		h.tick(t)
	}
	h.flush()

	assert.NotEmpty(t, h.departed)
	assert.Equal(t, len(h.spawned), len(h.departed)+h.director.ActiveCount())
	assert.LessOrEqual(t, h.pool.Created(), 3, "pool grows only to peak concurrency")
}

func (h *harness) firstActive(t *testing.T) ecs.EntityID {
	t.Helper()
	var out ecs.EntityID
	h.director.Each(func(c *world.Customer) bool {
		out = c.ID
		return false
	})
	require.NotZero(t, out)
	return out
}
