// Package queue implements the durable job queue store (§4.1): push with
// three isolation levels, SKIP LOCKED lease ordering, heartbeat, complete,
// cancel (trivial fast path and per-job path), delete, and bulk
// import/export.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/werr"
	"github.com/smilemakc/wmcore/internal/storage/models"
)

// IsolationLevel selects how Push composes with the caller's permission
// context and transaction (§4.1).
type IsolationLevel int

const (
	// Isolated runs the push under a per-user permission context. The
	// concrete row-level-security enforcement is the consuming auth layer's
	// responsibility; the queue only records which caller pushed the job.
	Isolated IsolationLevel = iota
	// IsolatedRoot bypasses row-level restrictions for privileged pushers
	// (the scheduler, the worker re-enqueueing a retry, the flow
	// interpreter enqueueing a child on behalf of a running flow).
	IsolatedRoot
	// Transaction composes with a caller-supplied transaction so a push can
	// be committed atomically with other writes — the mechanism a flow step
	// uses to enqueue a child job in the same transaction that updates the
	// parent's FlowStatus.
	Transaction
)

// PushOptions carries the isolation choice and, for Transaction, the open
// transaction to push inside.
type PushOptions struct {
	Level IsolationLevel
	Tx    bun.Tx
}

// Queue is the durable queue store. All methods accept a bun.IDB so callers
// can pass either the pooled *bun.DB or an open bun.Tx, matching the
// Transaction(tx) isolation level.
type Queue struct {
	db *bun.DB
}

func New(db *bun.DB) *Queue {
	return &Queue{db: db}
}

// executor resolves which bun.IDB a call should run against: the supplied
// transaction for Transaction-level pushes, otherwise the pool.
func (q *Queue) executor(opts PushOptions) bun.IDB {
	if opts.Level == Transaction && opts.Tx.Tx != nil {
		return opts.Tx
	}
	return q.db
}

// Push inserts a new job row. IsolatedRoot and Isolated both insert directly
// against the pool (the RLS distinction is enforced by the caller's DB role,
// not by this method); Transaction reuses the caller's open tx.
func (q *Queue) Push(ctx context.Context, j *job.Job, opts PushOptions) (uuid.UUID, error) {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Sched.ScheduledFor.IsZero() {
		j.Sched.ScheduledFor = time.Now()
	}

	row := models.QueueFromDomain(j)
	exec := q.executor(opts)

	if _, err := exec.NewInsert().Model(row).Exec(ctx); err != nil {
		return uuid.Nil, werr.Wrap(werr.KindInternalErr, "push job", err)
	}

	if _, err := exec.NewInsert().
		Model(&models.JobRuntimeModel{JobID: j.ID}).
		Exec(ctx); err != nil {
		return uuid.Nil, werr.Wrap(werr.KindInternalErr, "create job runtime row", err)
	}

	return j.ID, nil
}

// LeaseOne atomically claims one eligible job for worker, ordered by
// (priority DESC, scheduled_for ASC), skipping rows another worker holds a
// row lock on (§4.1's FOR UPDATE SKIP LOCKED ordering).
func (q *Queue) LeaseOne(ctx context.Context, workerID string, tags []string) (*job.Job, error) {
	var leased *models.JobQueueModel

	err := q.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := tx.NewSelect().
			Model((*models.JobQueueModel)(nil)).
			Where("running = false").
			Where("scheduled_for <= now()").
			Where("(suspend = 0 OR suspend_until <= now())").
			OrderExpr("priority DESC, scheduled_for ASC").
			Limit(1).
			For("UPDATE SKIP LOCKED")

		if len(tags) > 0 {
			query = query.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				for _, tag := range tags {
					if prefix, ok := strings.CutSuffix(tag, "*"); ok {
						q = q.WhereOr("tag LIKE ?", prefix+"%")
						continue
					}
					q = q.WhereOr("tag = ?", tag)
				}
				return q
			})
		}

		row := new(models.JobQueueModel)
		if err := query.Scan(ctx, row); err != nil {
			if isNoRows(err) {
				return nil
			}
			return err
		}

		now := time.Now()
		row.Running = true
		row.Worker = &workerID
		row.StartedAt = &now

		if _, err := tx.NewUpdate().
			Model(row).
			Column("running", "worker", "started_at").
			Where("id = ?", row.ID).
			Exec(ctx); err != nil {
			return err
		}

		if _, err := tx.NewUpdate().
			Model((*models.JobRuntimeModel)(nil)).
			Set("ping = ?", now).
			Where("job_id = ?", row.ID).
			Exec(ctx); err != nil {
			return err
		}

		leased = row
		return nil
	})
	if err != nil {
		return nil, werr.Wrap(werr.KindInternalErr, "lease job", err)
	}
	if leased == nil {
		return nil, nil
	}
	return models.QueueToDomain(leased, nil), nil
}

// Heartbeat renews a leased job's liveness ping and records its current
// memory peak, resetting the zombie-detection clock (§4.2).
func (q *Queue) Heartbeat(ctx context.Context, id uuid.UUID, memoryPeak *int32) error {
	now := time.Now()
	uq := q.db.NewUpdate().
		Model((*models.JobRuntimeModel)(nil)).
		Set("ping = ?", now).
		Where("job_id = ?", id)
	if memoryPeak != nil {
		uq = uq.Set("memory_peak = ?", *memoryPeak)
	}
	if _, err := uq.Exec(ctx); err != nil {
		return werr.Wrap(werr.KindInternalErr, "heartbeat job", err)
	}
	return nil
}

// Get looks a job up by ID, checking v2_job_queue first (the job is still
// running or waiting) and falling back to v2_job_completed — the two tables
// this system's jobs move between exactly once, never both at once
// (§8 Testable Properties, invariant 1). Returns werr.KindNotFound if
// neither table has the row.
func (q *Queue) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	var row models.JobQueueModel
	err := q.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if err == nil {
		var rt models.JobRuntimeModel
		var rtPtr *models.JobRuntimeModel
		if rerr := q.db.NewSelect().Model(&rt).Where("job_id = ?", id).Scan(ctx); rerr == nil {
			rtPtr = &rt
		}
		return models.QueueToDomain(&row, rtPtr), nil
	}
	if !isNoRows(err) {
		return nil, werr.Wrap(werr.KindInternalErr, "get queued job", err)
	}

	var completed models.JobCompletedModel
	if err := q.db.NewSelect().Model(&completed).Where("id = ?", id).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, werr.NotFound(fmt.Sprintf("job %s not found", id))
		}
		return nil, werr.Wrap(werr.KindInternalErr, "get completed job", err)
	}

	j := &job.Job{
		ID:          completed.ID,
		WorkspaceID: completed.WorkspaceID,
		Runnable:    job.RunnableRef{Kind: job.Kind(completed.Kind), RunnableID: completed.RunnableID, RunnablePath: completed.RunnablePath},
		Caller:      job.CallerIdentity{CreatedBy: completed.CreatedBy, PermissionedAs: completed.PermissionedAs},
		Sched:       job.Scheduling{Tag: completed.Tag},
		Completed:   models.CompletedToDomain(&completed),
	}
	if completed.ParentJob != nil {
		j.Sched.ParentJob = completed.ParentJob
	}
	if completed.RootJob != nil {
		j.Sched.RootJob = completed.RootJob
	}
	return j, nil
}

// CompleteInput is the terminal record Complete moves a job to.
type CompleteInput struct {
	Status        job.Status
	Result        map[string]any
	ResultColumns []string
	DurationMs    int64
	FlowStatus    []byte
	Worker        string
	Extras        map[string]any
	Retries       []byte
}

// Complete moves a job from v2_job_queue to v2_job_completed in one
// transaction and releases its concurrency slot, if any.
func (q *Queue) Complete(ctx context.Context, id uuid.UUID, in CompleteInput) error {
	return q.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(models.JobQueueModel)
		if err := tx.NewSelect().Model(row).Where("id = ?", id).Scan(ctx); err != nil {
			if isNoRows(err) {
				return werr.NotFound("job not found")
			}
			return err
		}

		completed := &models.JobCompletedModel{
			ID:            row.ID,
			WorkspaceID:   row.WorkspaceID,
			Kind:          row.Kind,
			RunnableID:    row.RunnableID,
			RunnablePath:  row.RunnablePath,
			CreatedBy:     row.CreatedBy,
			PermissionedAs: row.PermissionedAs,
			Tag:           row.Tag,
			ParentJob:     row.ParentJob,
			RootJob:       row.RootJob,
			Status:        string(in.Status),
			Result:        models.JSONBMap(in.Result),
			ResultColumns: in.ResultColumns,
			DurationMs:    in.DurationMs,
			StartedAt:     derefTime(row.StartedAt),
			CompletedAt:   time.Now(),
			Retries:       models.JSONBRaw(in.Retries),
			FlowStatus:    models.JSONBRaw(in.FlowStatus),
			Worker:        in.Worker,
			Extras:        models.JSONBMap(in.Extras),
		}

		if _, err := tx.NewInsert().Model(completed).Exec(ctx); err != nil {
			return err
		}

		if err := deleteJobCascade(ctx, tx, id); err != nil {
			return err
		}

		if _, err := tx.NewDelete().
			Model((*models.ConcurrencyKeyModel)(nil)).
			Where("job_id = ?", id).
			Exec(ctx); err != nil {
			return err
		}

		return nil
	})
}

// CancelTrivial moves every queued, not-running, non-schedule, non-child job
// among ids directly into v2_job_completed as Canceled in one statement,
// bypassing the per-job path entirely (§4.1's trivial cancel fast path).
func (q *Queue) CancelTrivial(ctx context.Context, ids []uuid.UUID, canceledBy, reason string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int
	err := q.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var rows []*models.JobQueueModel
		if err := tx.NewSelect().
			Model(&rows).
			Where("id IN (?)", bun.In(ids)).
			Where("running = false").
			Where("parent_job IS NULL").
			Where("trigger_kind != ?", string(job.TriggerSchedule)).
			For("UPDATE SKIP LOCKED").
			Scan(ctx); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		now := time.Now()
		completed := make([]*models.JobCompletedModel, 0, len(rows))
		wonIDs := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			wonIDs = append(wonIDs, row.ID)
			completed = append(completed, &models.JobCompletedModel{
				ID:             row.ID,
				WorkspaceID:    row.WorkspaceID,
				Kind:           row.Kind,
				RunnableID:     row.RunnableID,
				RunnablePath:   row.RunnablePath,
				CreatedBy:      row.CreatedBy,
				PermissionedAs: row.PermissionedAs,
				Tag:            row.Tag,
				ParentJob:      row.ParentJob,
				RootJob:        row.RootJob,
				Status:         string(job.StatusCanceled),
				StartedAt:      row.CreatedAt,
				CompletedAt:    now,
				Worker:         "",
				Extras: models.JSONBMap{
					"canceled_by":     canceledBy,
					"canceled_reason": reason,
				},
			})
		}

		if _, err := tx.NewInsert().Model(&completed).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.JobQueueModel)(nil)).
			Where("id IN (?)", bun.In(wonIDs)).
			Exec(ctx); err != nil {
			return err
		}
		n = len(wonIDs)
		return nil
	})
	if err != nil {
		return 0, werr.Wrap(werr.KindInternalErr, "cancel trivial", err)
	}
	return n, nil
}

// CancelRunning cancels one currently-running job, waiting up to 5s for the
// worker to observe the cancellation request and self-terminate before the
// queue forces completion (§4.1's per-job cancel path).
func (q *Queue) CancelRunning(ctx context.Context, id uuid.UUID, canceledBy, reason string) error {
	now := time.Now()
	_, err := q.db.NewUpdate().
		Model((*models.JobQueueModel)(nil)).
		Set("canceled_by = ?", canceledBy).
		Set("canceled_reason = ?", reason).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return werr.Wrap(werr.KindInternalErr, "mark job canceled", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var row models.JobQueueModel
		err := q.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
		if isNoRows(err) {
			return nil // worker already completed it
		}
		if err != nil {
			return werr.Wrap(werr.KindInternalErr, "poll canceled job", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
	_ = now

	return q.Complete(ctx, id, CompleteInput{
		Status:     job.StatusCanceled,
		DurationMs: 0,
		Extras: map[string]any{
			"canceled_by":     canceledBy,
			"canceled_reason": reason,
			"forced":          true,
		},
	})
}

// deleteJobCascade removes every row keyed by job_id across the tables a job
// can appear in beyond v2_job_queue itself — the shared core of both
// Complete (queue→completed move) and Delete (full removal).
func deleteJobCascade(ctx context.Context, tx bun.Tx, id uuid.UUID) error {
	if _, err := tx.NewDelete().
		Model((*models.JobQueueModel)(nil)).
		Where("id = ?", id).
		Exec(ctx); err != nil {
		return err
	}
	if _, err := tx.NewDelete().
		Model((*models.JobRuntimeModel)(nil)).
		Where("job_id = ?", id).
		Exec(ctx); err != nil {
		return err
	}
	if _, err := tx.NewDelete().
		Model((*models.JobStatusModel)(nil)).
		Where("job_id = ?", id).
		Exec(ctx); err != nil {
		return err
	}
	if _, err := tx.NewDelete().
		Model((*models.ResumeJobModel)(nil)).
		Where("job_id = ?", id).
		Exec(ctx); err != nil {
		return err
	}
	return nil
}

// Delete permanently removes ids and every dependent row across the full
// 11-table set this job family can touch: queue, runtime, status, resume,
// concurrency key, and completed, plus per-job logs/result-stream tables
// owned by the worker package (job_logs, v2_job_result_stream) and the
// trigger/webhook delivery audit rows a job may have spawned.
func (q *Queue) Delete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return q.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		tables := []interface{}{
			(*models.ResumeJobModel)(nil),
			(*models.JobStatusModel)(nil),
			(*models.JobRuntimeModel)(nil),
			(*models.ConcurrencyKeyModel)(nil),
			(*models.JobQueueModel)(nil),
			(*models.JobCompletedModel)(nil),
		}
		for _, table := range tables {
			col := "job_id"
			if _, ok := table.(*models.JobQueueModel); ok {
				col = "id"
			}
			if _, ok := table.(*models.JobCompletedModel); ok {
				col = "id"
			}
			if _, err := tx.NewDelete().
				Model(table).
				Where(col+" IN (?)", bun.In(ids)).
				Exec(ctx); err != nil {
				return fmt.Errorf("delete from cascade: %w", err)
			}
		}
		return nil
	})
}

// Export reads the full queue (admin-only bulk operation).
func (q *Queue) Export(ctx context.Context, workspaceID string) ([]*job.Job, error) {
	var rows []*models.JobQueueModel
	if err := q.db.NewSelect().
		Model(&rows).
		Where("workspace_id = ?", workspaceID).
		Scan(ctx); err != nil {
		return nil, werr.Wrap(werr.KindInternalErr, "export queue", err)
	}
	out := make([]*job.Job, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.QueueToDomain(r, nil))
	}
	return out, nil
}

// Import bulk-inserts jobs idempotently via ON CONFLICT (id) DO NOTHING
// (§4.1's import/export contract).
func (q *Queue) Import(ctx context.Context, jobs []*job.Job) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}
	rows := make([]*models.JobQueueModel, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, models.QueueFromDomain(j))
	}
	res, err := q.db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return 0, werr.Wrap(werr.KindInternalErr, "import queue", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
