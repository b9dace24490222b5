// Package worker implements the per-node execution loop (§4.2): register,
// poll, lease, dispatch to a language handler or the flow interpreter,
// stream output, complete, and clean up scratch space.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/infrastructure/logger"
	"github.com/smilemakc/wmcore/internal/langhandler"
	"github.com/smilemakc/wmcore/internal/queue"
	"github.com/smilemakc/wmcore/internal/storage/models"
)

// FlowRunner executes a flow-kind job. The flow interpreter implements this
// to keep worker free of a dependency on the interpreter's internals; a
// worker configured without one fails any flow job it leases.
type FlowRunner interface {
	Run(ctx context.Context, j *job.Job, logs langhandler.LogSink) (map[string]any, error)
}

// Config configures one worker node.
type Config struct {
	Name              string
	Tags              []string
	Hostname          string
	ScratchDir        string
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	CancelPollInterval time.Duration
	Capacity          int
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 4 * time.Second
	}
	if c.CancelPollInterval <= 0 {
		c.CancelPollInterval = time.Second
	}
	if c.Capacity <= 0 {
		c.Capacity = 1
	}
	if c.ScratchDir == "" {
		c.ScratchDir = os.TempDir()
	}
}

// Worker polls the durable queue and executes whatever it leases.
type Worker struct {
	cfg   Config
	db    *bun.DB
	q     *queue.Queue
	langs *langhandler.Registry
	flows FlowRunner
	log   *logger.Logger

	occupancy metric.Int64UpDownCounter
	duration  metric.Float64Histogram

	sem chan struct{}

	killpill chan struct{}
	killOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a Worker. flows may be nil if this worker never handles flow
// jobs (e.g. a script-only tag pool).
func New(db *bun.DB, q *queue.Queue, langs *langhandler.Registry, flows FlowRunner, cfg Config, log *logger.Logger) (*Worker, error) {
	cfg.setDefaults()
	if log == nil {
		log = logger.Default()
	}

	meter := otel.GetMeterProvider().Meter("github.com/smilemakc/wmcore/internal/worker")
	occupancy, err := meter.Int64UpDownCounter("wmcore.worker.occupancy",
		metric.WithDescription("number of jobs currently executing on this worker"))
	if err != nil {
		return nil, fmt.Errorf("worker: create occupancy instrument: %w", err)
	}
	duration, err := meter.Float64Histogram("wmcore.worker.job_duration_seconds",
		metric.WithDescription("wall-clock duration of completed jobs"))
	if err != nil {
		return nil, fmt.Errorf("worker: create duration instrument: %w", err)
	}

	return &Worker{
		cfg:       cfg,
		db:        db,
		q:         q,
		langs:     langs,
		flows:     flows,
		log:       log,
		occupancy: occupancy,
		duration:  duration,
		sem:       make(chan struct{}, cfg.Capacity),
		killpill:  make(chan struct{}),
	}, nil
}

// Kill broadcasts the killpill: the worker stops leasing new jobs but lets
// in-flight ones finish (§4.2).
func (w *Worker) Kill() {
	w.killOnce.Do(func() { close(w.killpill) })
}

// Run blocks, polling for work until ctx is canceled or Kill is called and
// every in-flight job has drained.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker starting", "name", w.cfg.Name, "tags", w.cfg.Tags, "capacity", w.cfg.Capacity)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return ctx.Err()
		case <-w.killpill:
			w.wg.Wait()
			return nil
		case <-ticker.C:
			w.tryLeaseAndDispatch(ctx)
		}
	}
}

func (w *Worker) tryLeaseAndDispatch(ctx context.Context) {
	select {
	case w.sem <- struct{}{}:
	default:
		return // at capacity
	}

	j, err := w.q.LeaseOne(ctx, w.cfg.Name, w.cfg.Tags)
	if err != nil {
		<-w.sem
		w.log.Error("lease failed", "error", err)
		return
	}
	if j == nil {
		<-w.sem
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()
		w.execute(ctx, j)
	}()
}

func (w *Worker) execute(ctx context.Context, j *job.Job) {
	start := time.Now()
	w.occupancy.Add(ctx, 1)
	defer w.occupancy.Add(ctx, -1)

	scratchDir := filepath.Join(w.cfg.ScratchDir, j.ID.String())
	if err := os.MkdirAll(scratchDir, 0o700); err != nil {
		w.finishFailure(ctx, j, start, &job.ExecutionError{Name: "InternalErr", Message: "create scratch dir: " + err.Error()})
		return
	}
	defer os.RemoveAll(scratchDir)

	cancelToken := make(chan struct{})
	stopCancelWatch := w.watchCancellation(ctx, j.ID, cancelToken)
	defer stopCancelWatch()

	stopHeartbeat := w.startHeartbeat(ctx, j.ID)
	defer stopHeartbeat()

	logs := newDBLogSink(w.db, j.ID)
	stream := newDBStreamSink(w.db, j.ID)

	result, execErr := w.dispatch(ctx, j, scratchDir, logs, stream, cancelToken)

	duration := time.Since(start)
	w.duration.Record(ctx, duration.Seconds())

	if execErr != nil {
		w.finishFailure(ctx, j, start, execErr)
		return
	}
	w.finishSuccess(ctx, j, start, result)
}

func (w *Worker) dispatch(ctx context.Context, j *job.Job, scratchDir string, logs langhandler.LogSink, stream langhandler.StreamSink, cancelToken chan struct{}) (map[string]any, *job.ExecutionError) {
	if j.Runnable.Kind == job.KindFlow {
		if w.flows == nil {
			return nil, &job.ExecutionError{Name: "InternalErr", Message: "worker has no flow runner configured"}
		}
		result, err := w.flows.Run(ctx, j, logs)
		if err != nil {
			return nil, toExecutionError(err)
		}
		return result, nil
	}

	if j.Runnable.RawCode == nil {
		return nil, &job.ExecutionError{Name: "InternalErr", Message: "stored script lookup is not implemented; only inline raw_code jobs can run"}
	}

	handler, err := w.langs.Get(string(j.Runnable.ScriptLang))
	if err != nil {
		return nil, &job.ExecutionError{Name: "InternalErr", Message: err.Error()}
	}

	res, err := handler.Execute(ctx, langhandler.Request{
		JobID:       j.ID.String(),
		Code:        *j.Runnable.RawCode,
		Args:        j.Args,
		JobDir:      scratchDir,
		Logs:        logs,
		Stream:      stream,
		CancelToken: cancelToken,
	})
	if err != nil {
		return nil, toExecutionError(err)
	}

	return map[string]any{"result": decodeResult(res.ResultJSON)}, nil
}

// decodeResult parses a handler's result line as JSON, falling back to the
// raw string for handlers that print plain text instead of a JSON value —
// the flow interpreter and any other consumer of v2_job_completed.result
// need the structured value, not a stringified blob, to do anything with it
// (path resolution, forloop aggregation, wait-for-result field extraction).
func decodeResult(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

func toExecutionError(err error) *job.ExecutionError {
	var execErr *job.ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}
	return &job.ExecutionError{Name: "ExecutionError", Message: err.Error()}
}

func (w *Worker) finishSuccess(ctx context.Context, j *job.Job, start time.Time, result map[string]any) {
	err := w.q.Complete(ctx, j.ID, queue.CompleteInput{
		Status:     job.StatusSuccess,
		Result:     result,
		DurationMs: time.Since(start).Milliseconds(),
		Worker:     w.cfg.Name,
	})
	if err != nil {
		w.log.Error("complete (success) failed", "job_id", j.ID, "error", err)
	}
}

func (w *Worker) finishFailure(ctx context.Context, j *job.Job, start time.Time, execErr *job.ExecutionError) {
	status := job.StatusFailure
	if execErr.Name == "Canceled" {
		status = job.StatusCanceled
	}
	err := w.q.Complete(ctx, j.ID, queue.CompleteInput{
		Status:     status,
		Result:     execErr.AsResult(),
		DurationMs: time.Since(start).Milliseconds(),
		Worker:     w.cfg.Name,
	})
	if err != nil {
		w.log.Error("complete (failure) failed", "job_id", j.ID, "error", err)
	}
}

// startHeartbeat renews the job's liveness ping on HeartbeatInterval until
// stopped, resetting the zombie-detection clock (§4.2, §4.9).
func (w *Worker) startHeartbeat(ctx context.Context, id uuid.UUID) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(w.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.q.Heartbeat(ctx, id, nil); err != nil {
					w.log.Warn("heartbeat failed", "job_id", id, "error", err)
				}
			}
		}
	}()
	return func() { close(stop) }
}

// watchCancellation polls the queue row's canceled_by column every
// CancelPollInterval and closes cancelToken the moment a cancellation
// request lands (§4.2 step 7, spec's ping_job_status-polled per-job
// cancellation event). It signals only through cancelToken, never through
// ctx, so the handler's own cancellation path is the single source of
// truth for why a job ended.
func (w *Worker) watchCancellation(ctx context.Context, id uuid.UUID, cancelToken chan struct{}) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(w.cfg.CancelPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				var row models.JobQueueModel
				err := w.db.NewSelect().
					Model(&row).
					Column("canceled_by").
					Where("id = ?", id).
					Scan(ctx)
				if err != nil {
					continue // row may already be gone (racing completion)
				}
				if row.CanceledBy != nil {
					close(cancelToken)
					return
				}
			}
		}
	}()
	return func() { close(stop) }
}
