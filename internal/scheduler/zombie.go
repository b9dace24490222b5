package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/queue"
)

// ZombieThreshold is how long a running job's ping may go stale before it is
// reclaimed (§4.1, §4.9: "a job whose ping ages past a threshold is a
// zombie").
const ZombieThreshold = 30 * time.Second

// ZombieSweeper implements §4.8(d): scan v2_job_queue for rows marked
// running with a stale (or absent) v2_job_runtime.ping and fail them.
type ZombieSweeper struct {
	db    *bun.DB
	queue *queue.Queue
}

func NewZombieSweeper(db *bun.DB, q *queue.Queue) *ZombieSweeper {
	return &ZombieSweeper{db: db, queue: q}
}

// Sweep fails every zombie job it finds, returning how many it reclaimed.
// Each failure is its own queue.Complete call so one bad row can't block the
// rest of the sweep.
func (z *ZombieSweeper) Sweep(ctx context.Context) (int, error) {
	var ids []uuid.UUID
	err := z.db.NewSelect().
		Table("v2_job_queue").
		ColumnExpr("v2_job_queue.id").
		Join("LEFT JOIN v2_job_runtime ON v2_job_runtime.job_id = v2_job_queue.id").
		Where("v2_job_queue.running = true").
		Where("v2_job_runtime.ping IS NULL OR v2_job_runtime.ping < ?", time.Now().Add(-ZombieThreshold)).
		Scan(ctx, &ids)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, id := range ids {
		zombieErr := &job.ExecutionError{Name: "Zombie", Message: "worker lost heartbeat"}
		err := z.queue.Complete(ctx, id, queue.CompleteInput{
			Status: job.StatusFailure,
			Result: zombieErr.AsResult(),
		})
		if err != nil {
			continue
		}
		reclaimed++
	}
	return reclaimed, nil
}
