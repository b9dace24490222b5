package flowengine

import (
	"sync"

	"context"

	"github.com/google/uuid"

	"github.com/smilemakc/wmcore/internal/domain/flow"
	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/langhandler"
)

// runBranchOne evaluates each branch's predicate in order and runs the
// first truthy one's nested body, falling back to Default if none match
// (§4.4, S5's first-match scenario).
func (in *Interpreter) runBranchOne(ctx context.Context, mod flow.Module, env execEnv, parent *job.Job, root uuid.UUID, logs langhandler.LogSink) (any, error) {
	for _, br := range mod.Value.Branches {
		match, err := in.exprs.evalBool(br.Expr, env.toMap())
		if err != nil {
			return nil, err
		}
		if match {
			branchEnv := env
			branchEnv.Results = map[string]any{}
			return in.runModules(ctx, br.Modules, branchEnv, parent, root, logs)
		}
	}
	branchEnv := env
	branchEnv.Results = map[string]any{}
	return in.runModules(ctx, mod.Value.Default, branchEnv, parent, root, logs)
}

// runBranchAll runs every branch's nested body concurrently and returns
// their results in branch order, honoring each branch's own SkipFailure.
func (in *Interpreter) runBranchAll(ctx context.Context, mod flow.Module, env execEnv, parent *job.Job, root uuid.UUID, logs langhandler.LogSink) (any, error) {
	out := make([]any, len(mod.Value.AllBranches))
	errs := make([]error, len(mod.Value.AllBranches))

	var wg sync.WaitGroup
	for i, branch := range mod.Value.AllBranches {
		i, branch := i, branch
		wg.Add(1)
		go func() {
			defer wg.Done()
			branchEnv := env
			branchEnv.Results = map[string]any{}
			res, err := in.runModules(ctx, branch.Modules, branchEnv, parent, root, logs)
			if err != nil {
				if branch.SkipFailure {
					out[i] = map[string]any{"error": err.Error()}
					return
				}
				errs[i] = err
				return
			}
			out[i] = res
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
