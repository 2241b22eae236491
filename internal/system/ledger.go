package system

import (
	"context"
	"time"

	"github.com/seatflow/diner/internal/core/event"
	coresys "github.com/seatflow/diner/internal/core/system"
	"github.com/seatflow/diner/internal/persist"
	"go.uber.org/zap"
)

// VisitWriter stores finished visits. *persist.VisitRepo satisfies it.
type VisitWriter interface {
	InsertVisits(ctx context.Context, visits []persist.Visit) error
}

// maxBufferedVisits bounds the buffer while the database is unreachable.
const maxBufferedVisits = 10000

// LedgerSystem records every departed customer and writes the records in
// batches. Phase 5 (Persist).
type LedgerSystem struct {
	writer   VisitWriter
	interval time.Duration
	base     time.Time // wall time of simulated zero
	log      *zap.Logger

	buf     []persist.Visit
	since   time.Duration
	written uint64
	dropped uint64
}

func NewLedgerSystem(bus *event.Bus, w VisitWriter, interval time.Duration, base time.Time, log *zap.Logger) *LedgerSystem {
	s := &LedgerSystem{
		writer:   w,
		interval: interval,
		base:     base,
		log:      log,
	}
	event.Subscribe(bus, s.onDeparted)
	return s
}

func (s *LedgerSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *LedgerSystem) Update(dt time.Duration) {
	s.since += dt
	if s.since < s.interval {
		return
	}
	s.since = 0
	if len(s.buf) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		s.log.Warn("visit ledger flush failed, will retry",
			zap.Int("buffered", len(s.buf)),
			zap.Error(err))
	}
}

// Flush writes everything buffered. On failure the records stay buffered.
func (s *LedgerSystem) Flush(ctx context.Context) error {
	if len(s.buf) == 0 {
		return nil
	}
	if err := s.writer.InsertVisits(ctx, s.buf); err != nil {
		return err
	}
	s.written += uint64(len(s.buf))
	s.log.Debug("visit ledger flushed", zap.Int("visits", len(s.buf)))
	clear(s.buf)
	s.buf = s.buf[:0]
	return nil
}

func (s *LedgerSystem) onDeparted(e event.CustomerDeparted) {
	if len(s.buf) >= maxBufferedVisits {
		s.buf = append(s.buf[:0], s.buf[1:]...)
		s.dropped++
	}
	s.buf = append(s.buf, persist.Visit{
		Customer:  uint64(e.Customer),
		Seat:      e.Seat,
		Outcome:   e.Outcome,
		Served:    e.Served,
		Waited:    e.Waited,
		SpawnedAt: s.base.Add(e.SpawnedAt),
		LeftAt:    s.base.Add(e.LeftAt),
	})
}

// Buffered returns the number of records waiting to be written.
func (s *LedgerSystem) Buffered() int { return len(s.buf) }

// Written returns the number of records stored so far.
func (s *LedgerSystem) Written() uint64 { return s.written }

// Dropped returns the number of records discarded because the buffer was full.
func (s *LedgerSystem) Dropped() uint64 { return s.dropped }
