package flowengine

import (
	"context"

	"github.com/google/uuid"

	"github.com/smilemakc/wmcore/internal/domain/flow"
	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/werr"
	"github.com/smilemakc/wmcore/internal/queue"
	"github.com/smilemakc/wmcore/internal/storage/models"
)

// runChildScript pushes an inline rawscript module as a child job and blocks
// until it completes, converting its terminal status into either a result
// value or an error (§4.4's "module execution delegates to a worker via the
// queue" rule).
func (in *Interpreter) runChildScript(ctx context.Context, parent *job.Job, root uuid.UUID, mod flow.Module, args map[string]any) (any, error) {
	tag := mod.Value.Tag
	if tag == "" {
		tag = parent.Sched.Tag
	}

	child := &job.Job{
		WorkspaceID: parent.WorkspaceID,
		Runnable: job.RunnableRef{
			Kind:       job.KindScript,
			ScriptLang: job.Language(mod.Value.Language),
			RawCode:    &mod.Value.Content,
		},
		Caller: parent.Caller,
		Sched: job.Scheduling{
			Tag:        tag,
			Priority:   job.PriorityFlowStep,
			ParentJob:  &parent.ID,
			RootJob:    &root,
			FlowStepID: mod.ID,
		},
		Policy: job.Policy{
			Timeout: mod.Timeout,
		},
		Args: args,
	}

	childID, err := in.q.Push(ctx, child, queue.PushOptions{Level: queue.IsolatedRoot})
	if err != nil {
		return nil, werr.Wrap(werr.KindInternalErr, "push flow step child job", err)
	}

	completed, err := in.pollCompletion(ctx, parent.ID, childID)
	if err != nil {
		return nil, err
	}

	return in.childOutcome(completed)
}

// RunToolModule executes a single flow module as a child job and returns
// its resolved result, implementing agent.JobRunner so the AI-agent module
// can dispatch a local tool call the same way any other flow step runs a
// rawscript — without flowengine importing internal/agent (the wiring layer
// hands this method to agent.NewRunner as the JobRunner it needs).
func (in *Interpreter) RunToolModule(ctx context.Context, parent *job.Job, mod flow.Module, args map[string]any) (any, error) {
	if mod.Value.Kind != flow.ModuleRawScript {
		return nil, werr.BadRequest("agent tool runnable kind not supported: " + string(mod.Value.Kind))
	}
	root := parent.Sched.RootJob
	if root == nil {
		root = &parent.ID
	}
	return in.runChildScript(ctx, parent, *root, mod, args)
}

// childOutcome converts a completed child job row into either a success
// result or an error mirroring its structured ExecutionError shape. A
// script job's completed row always carries its value one level down,
// under a "result" key (worker.go's dispatch wraps every handler's decoded
// output that way so non-flow completions have a uniform map shape); unwrap
// it here so a module's resolved value is what the script actually
// returned, not the wrapper around it.
func (in *Interpreter) childOutcome(completed *models.JobCompletedModel) (any, error) {
	result := models.CompletedToDomain(completed)
	switch result.Status {
	case job.StatusSuccess:
		if m, ok := result.Result.(map[string]any); ok {
			if v, has := m["result"]; has {
				return v, nil
			}
		}
		return result.Result, nil
	case job.StatusCanceled:
		return nil, werr.Canceled("child job canceled")
	default:
		if m, ok := result.Result.(map[string]any); ok {
			if errBody, ok := m["error"].(map[string]any); ok {
				name, _ := errBody["name"].(string)
				message, _ := errBody["message"].(string)
				return nil, werr.Execution(name+": "+message, nil)
			}
		}
		return nil, werr.Execution("flow step failed", nil)
	}
}
