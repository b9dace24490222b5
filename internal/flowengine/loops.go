package flowengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/smilemakc/wmcore/internal/domain/flow"
	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/werr"
	"github.com/smilemakc/wmcore/internal/langhandler"
)

// runForloop iterates mod.Value.Iterator's resolved list, running the
// module's nested body once per element (§4.4, S4's aggregation scenario).
// Parallel iterations are bounded by a buffered-channel semaphore, the same
// pattern the dag executor uses to cap wave concurrency.
func (in *Interpreter) runForloop(ctx context.Context, mod flow.Module, env execEnv, parent *job.Job, root uuid.UUID, logs langhandler.LogSink) (any, error) {
	if mod.Value.Iterator == nil {
		return nil, werr.BadRequest("forloopflow module " + mod.ID + " has no iterator")
	}
	raw, err := in.resolveOne(*mod.Value.Iterator, env)
	if err != nil {
		return nil, err
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, werr.BadRequest("forloopflow module " + mod.ID + " iterator did not resolve to a list")
	}

	out := make([]any, len(items))

	runOne := func(i int, item any) error {
		iterEnv := env
		iterEnv.Iter = map[string]any{"index": i, "value": item}
		iterEnv.Results = map[string]any{}
		res, err := in.runModules(ctx, mod.Value.Modules, iterEnv, parent, root, logs)
		if err != nil {
			if mod.Value.SkipFailures {
				out[i] = map[string]any{"error": err.Error()}
				return nil
			}
			return fmt.Errorf("iteration %d: %w", i, err)
		}
		out[i] = res
		return nil
	}

	if !mod.Value.Parallel {
		for i, item := range items {
			if err := runOne(i, item); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	sem := make(chan struct{}, in.cfg.ForloopParallel)
	var wg sync.WaitGroup
	errs := make([]error, len(items))
	for i, item := range items {
		i, item := i, item
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = runOne(i, item)
		}()
	}
	wg.Wait()
	for _, e := range errs {
		if e != nil {
			return nil, e
		}
	}
	return out, nil
}

// runWhileloop repeatedly runs the module's nested body, binding
// iter.index each pass, until the body's result carries continue!=true or
// the configured iteration cap is hit (a safety bound this interpreter adds
// since a flow definition that never sets continue=false would otherwise
// loop forever).
func (in *Interpreter) runWhileloop(ctx context.Context, mod flow.Module, env execEnv, parent *job.Job, root uuid.UUID, logs langhandler.LogSink) (any, error) {
	var last any
	for i := 0; i < in.cfg.MaxWhileIters; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		iterEnv := env
		iterEnv.Iter = map[string]any{"index": i}
		iterEnv.Results = map[string]any{}
		res, err := in.runModules(ctx, mod.Value.Modules, iterEnv, parent, root, logs)
		if err != nil {
			if mod.Value.SkipFailures {
				last = map[string]any{"error": err.Error()}
			} else {
				return nil, fmt.Errorf("iteration %d: %w", i, err)
			}
		} else {
			last = res
		}

		cont := false
		if m, ok := last.(map[string]any); ok {
			cont, _ = m["continue"].(bool)
		}
		if !cont {
			break
		}
	}
	return last, nil
}
