package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Visit is one finished customer visit as recorded in the ledger.
type Visit struct {
	Customer  uint64
	Seat      int
	Outcome   string
	Served    bool
	Waited    time.Duration
	SpawnedAt time.Time
	LeftAt    time.Time
}

// VisitRepo writes the visit ledger. Every visit belongs to the run opened
// by StartRun.
type VisitRepo struct {
	db    *DB
	runID int64
}

func NewVisitRepo(db *DB) *VisitRepo {
	return &VisitRepo{db: db}
}

// StartRun opens a run row for this process and remembers its id.
func (r *VisitRepo) StartRun(ctx context.Context, name, digest string, seats int) (int64, error) {
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO runs (name, config_digest, seats) VALUES ($1, $2, $3) RETURNING id`,
		name, digest, seats,
	).Scan(&r.runID)
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	return r.runID, nil
}

// FinishRun stamps the stop time and tick count on the current run.
func (r *VisitRepo) FinishRun(ctx context.Context, ticks uint64) error {
	if r.runID == 0 {
		return nil
	}
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE runs SET stopped_at = now(), ticks = $2 WHERE id = $1`,
		r.runID, int64(ticks),
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// InsertVisits writes a batch of visits in one transaction.
func (r *VisitRepo) InsertVisits(ctx context.Context, visits []Visit) error {
	if len(visits) == 0 {
		return nil
	}
	if r.runID == 0 {
		return fmt.Errorf("insert visits: no run started")
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("visits begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, v := range visits {
		batch.Queue(
			`INSERT INTO visits (run_id, customer, seat, outcome, served, waited_ms, spawned_at, left_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.runID, int64(v.Customer), v.Seat, v.Outcome, v.Served,
			v.Waited.Milliseconds(), v.SpawnedAt, v.LeftAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("visits insert: %w", err)
	}
	return tx.Commit(ctx)
}

// RunID returns the id of the current run, or 0 before StartRun.
func (r *VisitRepo) RunID() int64 { return r.runID }
