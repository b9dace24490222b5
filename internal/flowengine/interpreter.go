package flowengine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/smilemakc/wmcore/internal/domain/flow"
	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/werr"
	"github.com/smilemakc/wmcore/internal/langhandler"
	"github.com/smilemakc/wmcore/internal/queue"
	"github.com/smilemakc/wmcore/internal/storage/models"
)

// AgentRunner executes an AIAgent module. internal/agent implements this;
// flowengine only depends on the interface to avoid a direct import (the
// agent package itself dispatches local tool calls as child jobs through a
// JobRunner it owns, so the two packages never import each other's
// concrete types — the same decoupling worker uses for FlowRunner).
type AgentRunner interface {
	Run(ctx context.Context, cfg *flow.AIAgentConfig, args map[string]any, parent *job.Job, logs langhandler.LogSink) (map[string]any, error)
}

// SuspendGate blocks a module carrying a suspend block until the required
// number of approval events have arrived, the window times out, or a
// disapproval lands (§4.5). internal/suspend implements this.
type SuspendGate interface {
	Await(ctx context.Context, j *job.Job, mod flow.Module, moduleResult any) (map[string]any, error)
}

// Config tunes the interpreter's child-job dispatch and polling behavior.
// None of this is part of the flow definition itself; it governs how this
// particular process drives children toward completion.
type Config struct {
	PollIntervalMin time.Duration
	PollIntervalMax time.Duration
	ForloopParallel int
	MaxWhileIters   int
}

func (c *Config) setDefaults() {
	if c.PollIntervalMin <= 0 {
		c.PollIntervalMin = 50 * time.Millisecond
	}
	if c.PollIntervalMax <= 0 {
		c.PollIntervalMax = 500 * time.Millisecond
	}
	if c.ForloopParallel <= 0 {
		c.ForloopParallel = 8
	}
	if c.MaxWhileIters <= 0 {
		c.MaxWhileIters = 10_000
	}
}

// Interpreter runs flow-kind jobs (§4.4). It implements worker.FlowRunner:
// Run is a single blocking call for the life of the root flow job, internally
// looping module-by-module and pushing/polling child jobs for RawScript,
// Script, FlowScript, Flow, and nested-loop/branch bodies rather than
// re-entering per lease cycle. The spec's "no in-memory continuation state"
// design note describes how a multi-process fleet MUST be able to pick a
// flow back up after a worker restart; this interpreter satisfies that by
// keeping all durable state in flow_status/v2_job_queue rows exactly as
// written, while a single worker process happens to also hold the Go
// goroutine that is waiting on them. A worker crash mid-flow still leaves
// the flow resumable by a fresh interpreter instance reading the same rows;
// what is NOT reproduced is suspending this particular goroutine back to the
// scheduler between steps, which would need FlowRunner to return an
// intermediate outcome the worker re-leases. That larger rework is out of
// scope here and is recorded as a deliberate simplification.
type Interpreter struct {
	db      *bun.DB
	q       *queue.Queue
	exprs   *exprCache
	agents  AgentRunner
	suspend SuspendGate
	cfg     Config
}

func New(db *bun.DB, q *queue.Queue, agents AgentRunner, suspend SuspendGate, cfg Config) *Interpreter {
	cfg.setDefaults()
	return &Interpreter{
		db:      db,
		q:       q,
		exprs:   newExprCache(500),
		agents:  agents,
		suspend: suspend,
		cfg:     cfg,
	}
}

// execEnv is the expression environment threaded through a flow run,
// rebuilt at each module boundary (§4.4's evaluation contract). Only
// toMap's map[string]any form is ever handed to expr-lang; the struct
// exists so Go code passes the env around with named fields instead of
// raw map keys.
type execEnv struct {
	FlowInput      map[string]any
	PreviousResult any
	Results        map[string]any
	Resume         map[string]any
	Resumes        []any
	Iter           map[string]any
}

func (e execEnv) toMap() map[string]any {
	return map[string]any{
		"flow_input":      e.FlowInput,
		"previous_result": e.PreviousResult,
		"results":         e.Results,
		"resume":          e.Resume,
		"resumes":         e.Resumes,
		"iter":            e.Iter,
	}
}

// Run implements worker.FlowRunner.
func (in *Interpreter) Run(ctx context.Context, j *job.Job, logs langhandler.LogSink) (map[string]any, error) {
	var def flow.Value
	if len(j.Runnable.RawFlow) == 0 {
		return nil, werr.BadRequest("flow job carries no raw_flow definition")
	}
	if err := json.Unmarshal(j.Runnable.RawFlow, &def); err != nil {
		return nil, werr.Wrap(werr.KindBadRequest, "decode flow definition", err)
	}

	root := j.Sched.RootJob
	if root == nil {
		root = &j.ID
	}

	env := execEnv{
		FlowInput:      j.Args,
		PreviousResult: j.Args,
		Results:        map[string]any{},
	}

	result, err := in.runModules(ctx, def.Modules, env, j, *root, logs)
	if err != nil {
		if def.FailureModule != nil {
			logs.Write(fmt.Sprintf("flow step failed, invoking failure_module: %v", err))
			failEnv := env
			failEnv.PreviousResult = map[string]any{"error": err.Error()}
			fresult, ferr := in.runModule(ctx, *def.FailureModule, failEnv, j, *root, logs)
			if ferr != nil {
				return nil, ferr
			}
			return asResultMap(fresult), nil
		}
		return nil, err
	}
	return asResultMap(result), nil
}

// runModules runs a sequence of modules in order, threading previous_result
// and results forward, honoring skip_if and stopping (without a
// failure_module fallback at this level — that only applies to the root
// module list) at the first unhandled error.
func (in *Interpreter) runModules(ctx context.Context, modules []flow.Module, env execEnv, parent *job.Job, root uuid.UUID, logs langhandler.LogSink) (any, error) {
	var last any
	for _, mod := range modules {
		if mod.SkipIf != "" {
			skip, err := in.exprs.evalBool(mod.SkipIf, env.toMap())
			if err != nil {
				return nil, werr.Wrap(werr.KindBadRequest, "evaluate skip_if for module "+mod.ID, err)
			}
			if skip {
				logs.Write("module " + mod.ID + " skipped (skip_if)")
				continue
			}
		}

		res, err := in.runModuleWithRetry(ctx, mod, env, parent, root, logs)
		if err != nil {
			if mod.ContinueOnError {
				logs.Write(fmt.Sprintf("module %s failed, continuing (continue_on_error): %v", mod.ID, err))
				res = map[string]any{"error": err.Error()}
			} else {
				return nil, fmt.Errorf("module %s: %w", mod.ID, err)
			}
		}

		if mod.Suspend != nil && in.suspend != nil {
			approvalPayload, serr := in.suspend.Await(ctx, parent, mod, res)
			if serr != nil {
				return nil, fmt.Errorf("module %s suspend: %w", mod.ID, serr)
			}
			if approvalPayload != nil {
				env.Resume = approvalPayload
			}
		}

		env.Results[mod.ID] = res
		env.PreviousResult = res
		last = res
	}
	return last, nil
}

// runModuleWithRetry applies a module's RetryPolicy (exponential backoff,
// §4.4) around a single module execution.
func (in *Interpreter) runModuleWithRetry(ctx context.Context, mod flow.Module, env execEnv, parent *job.Job, root uuid.UUID, logs langhandler.LogSink) (any, error) {
	if mod.Retry == nil || mod.Retry.MaxAttempts <= 0 {
		return in.runModule(ctx, mod, env, parent, root, logs)
	}

	var lastErr error
	backoff := time.Duration(mod.Retry.BackoffBaseMs) * time.Millisecond
	for attempt := 0; attempt <= mod.Retry.MaxAttempts; attempt++ {
		res, err := in.runModule(ctx, mod, env, parent, root, logs)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if attempt == mod.Retry.MaxAttempts {
			break
		}
		logs.Write(fmt.Sprintf("module %s attempt %d failed, retrying in %s: %v", mod.ID, attempt+1, backoff, err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if mod.Retry.BackoffFactor > 0 {
			backoff = time.Duration(float64(backoff) * mod.Retry.BackoffFactor)
		}
	}
	return nil, lastErr
}

// runModule dispatches one module by kind.
func (in *Interpreter) runModule(ctx context.Context, mod flow.Module, env execEnv, parent *job.Job, root uuid.UUID, logs langhandler.LogSink) (any, error) {
	if mod.Sleep != nil {
		d, err := in.resolveSleep(*mod.Sleep, env)
		if err != nil {
			return nil, err
		}
		if d > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
		}
	}

	switch mod.Value.Kind {
	case flow.ModuleIdentity:
		return in.resolveArgs(mod.InputTransforms, env)

	case flow.ModuleRawScript:
		args, err := in.resolveArgs(mod.InputTransforms, env)
		if err != nil {
			return nil, err
		}
		return in.runChildScript(ctx, parent, root, mod, args)

	case flow.ModuleScript, flow.ModuleFlowScript, flow.ModuleFlow:
		return nil, werr.Internal("stored script/flow lookup by path is not implemented; only inline rawscript modules can run")

	case flow.ModuleForloop:
		return in.runForloop(ctx, mod, env, parent, root, logs)

	case flow.ModuleWhileloop:
		return in.runWhileloop(ctx, mod, env, parent, root, logs)

	case flow.ModuleBranchOne:
		return in.runBranchOne(ctx, mod, env, parent, root, logs)

	case flow.ModuleBranchAll:
		return in.runBranchAll(ctx, mod, env, parent, root, logs)

	case flow.ModuleAIAgent:
		if in.agents == nil {
			return nil, werr.Internal("flow has an ai-agent module but no agent runner is configured")
		}
		args, err := in.resolveArgs(mod.InputTransforms, env)
		if err != nil {
			return nil, err
		}
		return in.agents.Run(ctx, mod.Value.Agent, args, parent, logs)

	default:
		return nil, werr.BadRequest("unknown module kind: " + string(mod.Value.Kind))
	}
}

func (in *Interpreter) resolveSleep(t flow.InputTransform, env execEnv) (time.Duration, error) {
	v, err := in.resolveOne(t, env)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case float64:
		return time.Duration(x * float64(time.Second)), nil
	case int:
		return time.Duration(x) * time.Second, nil
	default:
		return 0, nil
	}
}

func asResultMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{"result": v}
}

// pollCompletion blocks until the given child job id has moved to
// v2_job_completed, applying an adaptive backoff between polls (§4.9's same
// polling shape reused here for child-job synchronization) and checking the
// flow's own job row for a cancellation request on every iteration so a
// canceled flow aborts at its next module boundary instead of waiting out
// whatever child happens to be in flight.
func (in *Interpreter) pollCompletion(ctx context.Context, parentID, childID uuid.UUID) (*models.JobCompletedModel, error) {
	interval := in.cfg.PollIntervalMin
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		var canceled models.JobQueueModel
		err := in.db.NewSelect().Model(&canceled).Column("canceled_by").Where("id = ?", parentID).Scan(ctx)
		if err == nil && canceled.CanceledBy != nil {
			return nil, werr.Canceled("flow canceled: " + *canceled.CanceledBy)
		}

		var completed models.JobCompletedModel
		err = in.db.NewSelect().Model(&completed).Where("id = ?", childID).Scan(ctx)
		if err == nil {
			return &completed, nil
		}

		interval = time.Duration(math.Min(float64(interval)*1.5, float64(in.cfg.PollIntervalMax)))
	}
}
