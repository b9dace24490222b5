// Package waitresult implements the wait-for-result path (§4.9): block an
// HTTP caller on a just-pushed job until it reaches a terminal status,
// polling the queue store with the original's fast/slow backoff
// (windmill-api-jobs/src/execution.rs's run_wait_result_internal) instead
// of a notification channel, and canceling the job if the caller goes away
// before it completes (the same file's connection-drop Guard).
package waitresult

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/werr"
)

// Queue is the narrow slice of *queue.Queue this package needs, kept as an
// interface so tests can substitute a fake store without a live database.
type Queue interface {
	Get(ctx context.Context, id uuid.UUID) (*job.Job, error)
	CancelTrivial(ctx context.Context, ids []uuid.UUID, canceledBy, reason string) (int, error)
	CancelRunning(ctx context.Context, id uuid.UUID, canceledBy, reason string) error
}

// Config tunes the adaptive poll. Zero value gets the original's defaults:
// 50ms polling for the first 2s, then 200ms, capped at a 600s overall wait.
type Config struct {
	FastPollInterval time.Duration
	FastPollDuration time.Duration
	SlowPollInterval time.Duration
	Timeout          time.Duration
}

func (c *Config) setDefaults() {
	if c.FastPollInterval <= 0 {
		c.FastPollInterval = 50 * time.Millisecond
	}
	if c.FastPollDuration <= 0 {
		c.FastPollDuration = 2 * time.Second
	}
	if c.SlowPollInterval <= 0 {
		c.SlowPollInterval = 200 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 600 * time.Second
	}
}

// ErrTimeout is returned when a job hasn't completed within cfg.Timeout.
type ErrTimeout struct{ JobID uuid.UUID }

func (e *ErrTimeout) Error() string {
	return "timed out waiting for job " + e.JobID.String() + " to complete"
}

// Await polls id until it reaches v2_job_completed or ctx is canceled
// (caller disconnect) or cfg.Timeout elapses, returning its Completion.
// On disconnect it fires a best-effort cancel against a detached context,
// mirroring the original's Drop guard that cancels a job whose HTTP
// connection broke before the result arrived, without making the caller
// wait on the cancel's own round trip.
func Await(ctx context.Context, q Queue, id uuid.UUID, cfg Config) (*job.Completion, error) {
	cfg.setDefaults()

	deadline := time.Now().Add(cfg.Timeout)
	fastUntil := time.Now().Add(cfg.FastPollDuration)
	interval := cfg.FastPollInterval

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			go detachedCancel(q, id)
			return nil, ctx.Err()
		case <-timer.C:
		}

		j, err := q.Get(ctx, id)
		if err == nil && j.Completed != nil {
			return j.Completed, nil
		}
		if err != nil && !werr.Is(err, werr.KindNotFound) {
			return nil, err
		}

		if time.Now().After(deadline) {
			return nil, &ErrTimeout{JobID: id}
		}
		if time.Now().After(fastUntil) {
			interval = cfg.SlowPollInterval
		}
		timer.Reset(interval)
	}
}

// detachedCancel runs the disconnect-triggered cancel against a fresh
// context so it survives the request context that just expired. It tries
// the trivial (queued, not yet running) path first and falls back to the
// running-job path only if the trivial cancel found nothing to do.
func detachedCancel(q Queue, id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := q.CancelTrivial(ctx, []uuid.UUID{id}, "system", "http connection broke")
	if err == nil && n > 0 {
		return
	}
	_ = q.CancelRunning(ctx, id, "system", "http connection broke")
}
