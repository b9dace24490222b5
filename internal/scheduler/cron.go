package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/uptrace/bun"

	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/trigger"
	"github.com/smilemakc/wmcore/internal/queue"
)

// cronParser accepts the same field set as the teacher's
// internal/application/trigger/cron_scheduler.go: seconds through
// descriptors ("@hourly", etc).
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Repusher implements §4.8(a)/(b): for each enabled schedule trigger, ensure
// exactly one future job is sitting in the queue, and enqueue the next one
// immediately after the current one completes. Unlike the teacher's
// CronScheduler, which keeps a robfig/cron.Cron instance alive and fires a
// closure per tick, this computes the next fire time once per maintain()
// pass and pushes a job scheduled_for that time — idempotent against
// concurrent maintainer instances because ensureNextJob first checks for an
// existing future row before pushing.
type Repusher struct {
	db    *bun.DB
	queue *queue.Queue
}

func NewRepusher(db *bun.DB, q *queue.Queue) *Repusher {
	return &Repusher{db: db, queue: q}
}

// EnsureNextJob computes rec's next fire time from its ScheduleConfig and
// pushes a job for it if no future schedule-triggered job for this path
// already exists in the queue.
func (r *Repusher) EnsureNextJob(ctx context.Context, rec *trigger.Record) error {
	var cfg trigger.ScheduleConfig
	if err := json.Unmarshal(rec.Config, &cfg); err != nil {
		return fmt.Errorf("decode schedule config: %w", err)
	}
	if cfg.Paused {
		return nil
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone %s: %w", cfg.Timezone, err)
		}
		loc = l
	}

	schedule, err := cronParser.Parse(cfg.CronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %s: %w", cfg.CronExpr, err)
	}

	exists, err := r.hasFutureJob(ctx, rec)
	if err != nil {
		return fmt.Errorf("check existing scheduled job: %w", err)
	}
	if exists {
		return nil
	}

	next := schedule.Next(time.Now().In(loc))

	j := &job.Job{
		WorkspaceID: rec.WorkspaceID,
		Runnable:    job.RunnableRef{Kind: runnableKind(rec), RunnablePath: &rec.RunnablePath},
		Caller: job.CallerIdentity{
			CreatedBy:      rec.CreatedBy,
			PermissionedAs: rec.CreatedBy,
		},
		Sched: job.Scheduling{
			Tag:          "default",
			ScheduledFor: next,
			TriggerKind:  job.TriggerSchedule,
			Trigger:      rec.Path,
		},
		Args: map[string]any{},
	}

	_, err = r.queue.Push(ctx, j, queue.PushOptions{Level: queue.IsolatedRoot})
	return err
}

func runnableKind(rec *trigger.Record) job.Kind {
	if rec.IsFlow {
		return job.KindFlow
	}
	return job.KindScript
}

// hasFutureJob reports whether a not-yet-leased job already exists for this
// schedule, so EnsureNextJob is safe to call from every maintainer instance
// without double-booking.
func (r *Repusher) hasFutureJob(ctx context.Context, rec *trigger.Record) (bool, error) {
	exists, err := r.db.NewSelect().
		Table("v2_job_queue").
		Where("workspace_id = ? AND trigger_kind = ? AND trigger = ? AND running = false AND scheduled_for > now()",
			rec.WorkspaceID, string(job.TriggerSchedule), rec.Path).
		Exists(ctx)
	return exists, err
}

// OnCompletion implements §4.8(b): called after a schedule-triggered job
// reaches a terminal state, pushing that schedule's next occurrence
// immediately rather than waiting for the next maintain() tick.
func (r *Repusher) OnCompletion(ctx context.Context, store *TriggerStore, workspaceID, triggerPath string) error {
	rows, err := store.ListEnabledByFamily(ctx, trigger.FamilySchedule)
	if err != nil {
		return err
	}
	for _, rec := range rows {
		if rec.WorkspaceID == workspaceID && rec.Path == triggerPath {
			return r.EnsureNextJob(ctx, rec)
		}
	}
	return nil
}
