package world

import (
	"github.com/seatflow/diner/internal/core/ecs"
	"github.com/seatflow/diner/internal/core/pool"
	"go.uber.org/zap"
)

// PoolConfig sizes the customer pool. Max == 0 means unbounded.
type PoolConfig struct {
	Initial int
	Max     int
}

// NewCustomerPool builds the reuse pool for customers. Each acquisition
// stamps a fresh generational id; release resets the customer (cancelling
// any visit in flight) before retiring the id.
func NewCustomerPool(seats *SeatRegistry, nav Navigator, ids *ecs.IDPool, cfg CustomerConfig, pc PoolConfig, log *zap.Logger) *pool.Pool[*Customer] {
	return pool.New(func() *Customer {
		return NewCustomer(seats, nav, cfg, log)
	}, pool.Options[*Customer]{
		Initial: pc.Initial,
		Max:     pc.Max,
		OnAcquire: func(c *Customer) {
			c.ID = ids.Create()
		},
		OnRelease: func(c *Customer) {
			c.Reset()
			ids.Destroy(c.ID)
			c.ID = 0
		},
	})
}
