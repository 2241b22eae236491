package system

import (
	"time"

	"github.com/kamstrup/intmap"
	"github.com/seatflow/diner/internal/core/ecs"
	coresys "github.com/seatflow/diner/internal/core/system"
	"github.com/seatflow/diner/internal/scripting"
	"github.com/seatflow/diner/internal/world"
	"go.uber.org/zap"
)

// ServePolicy decides how long a waiting customer waits for food.
// *scripting.Engine satisfies it.
type ServePolicy interface {
	CalcServeDelay(ctx scripting.ServeContext) (scripting.ServeResult, bool)
}

type order struct {
	due   time.Duration
	never bool // kitchen declined; the customer will balk
}

// KitchenSystem serves waiting customers. An order is placed the first tick a
// customer is seen waiting; the serve delay comes from the Lua policy, or the
// default when no policy answers. Phase 1 (PreUpdate).
type KitchenSystem struct {
	director     *Director
	policy       ServePolicy // nil = always default delay
	defaultDelay time.Duration
	log          *zap.Logger

	clock  time.Duration
	orders *intmap.Map[ecs.EntityID, *order]
	stale  []ecs.EntityID
	served uint64
}

func NewKitchenSystem(d *Director, policy ServePolicy, defaultDelay time.Duration, log *zap.Logger) *KitchenSystem {
	return &KitchenSystem{
		director:     d,
		policy:       policy,
		defaultDelay: defaultDelay,
		log:          log,
		orders:       intmap.New[ecs.EntityID, *order](16),
	}
}

func (s *KitchenSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *KitchenSystem) Update(dt time.Duration) {
	s.clock += dt

	waiting := 0
	s.director.Each(func(c *world.Customer) bool {
		if c.State() == world.StateWaitingForService {
			waiting++
		}
		return true
	})

	s.director.Each(func(c *world.Customer) bool {
		if c.State() == world.StateWaitingForService && !s.orders.Has(c.ID) {
			s.orders.Put(c.ID, s.place(c, waiting))
		}
		return true
	})

	s.stale = s.stale[:0]
	s.orders.ForEach(func(id ecs.EntityID, o *order) bool {
		c, ok := s.director.Lookup(id)
		if !ok || c.State() != world.StateWaitingForService {
			s.stale = append(s.stale, id)
			return true
		}
		if o.never || s.clock < o.due {
			return true
		}
		if c.Serve() {
			s.served++
		}
		s.stale = append(s.stale, id)
		return true
	})
	for _, id := range s.stale {
		s.orders.Del(id)
	}
}

func (s *KitchenSystem) place(c *world.Customer, waiting int) *order {
	res, ok := scripting.ServeResult{}, false
	if s.policy != nil {
		res, ok = s.policy.CalcServeDelay(scripting.ServeContext{
			Seat:    int(c.Seat()),
			Waiting: waiting,
			Active:  s.director.ActiveCount(),
			Clock:   s.clock,
		})
	}
	if !ok {
		res = scripting.ServeResult{Serve: true, Delay: s.defaultDelay}
	}
	if !res.Serve || res.Delay < 0 {
		s.log.Debug("kitchen declined order",
			zap.Uint64("customer", uint64(c.ID)),
			zap.Int("seat", int(c.Seat())),
			zap.Int("waiting", waiting))
		return &order{never: true}
	}
	return &order{due: s.clock + res.Delay}
}

// Pending returns the number of open orders.
func (s *KitchenSystem) Pending() int { return s.orders.Len() }

// Served returns how many orders were delivered.
func (s *KitchenSystem) Served() uint64 { return s.served }
