package agent

import (
	"context"
	"encoding/json"

	"github.com/expr-lang/expr"

	"github.com/smilemakc/wmcore/internal/domain/flow"
	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/werr"
)

// boundTool is a resolved callable: either a local flow module dispatched
// through JobRunner, or a remote MCP tool dispatched through an mcpClient.
type boundTool struct {
	local  *flow.AgentTool
	remote *mcpServerTool
}

func (r *Runner) collectTools(ctx context.Context, cfg *flow.AIAgentConfig) ([]ToolSpec, map[string]boundTool, error) {
	specs := make([]ToolSpec, 0, len(cfg.Tools))
	byName := make(map[string]boundTool, len(cfg.Tools))

	for i := range cfg.Tools {
		t := cfg.Tools[i]
		specs = append(specs, ToolSpec{Name: t.FunctionName, Description: t.Description, Schema: t.Schema})
		byName[t.FunctionName] = boundTool{local: &cfg.Tools[i]}
	}

	for _, server := range cfg.MCPServers {
		client, err := r.mcp.get(ctx, server)
		if err != nil {
			return nil, nil, werr.Wrap(werr.KindBadGateway, "connect mcp server "+server.Name, err)
		}
		remoteTools, err := client.listTools(ctx)
		if err != nil {
			return nil, nil, werr.Wrap(werr.KindBadGateway, "list tools for mcp server "+server.Name, err)
		}
		for _, rt := range remoteTools {
			specs = append(specs, ToolSpec{Name: rt.Name, Description: rt.Description, Schema: rt.Schema})
			byName[rt.Name] = boundTool{remote: &mcpServerTool{client: client, name: rt.Name}}
		}
	}

	if cfg.StructuredOutput != nil {
		specs = append(specs, ToolSpec{
			Name:        cfg.StructuredOutput.FunctionName,
			Description: "Return the final structured result and end the run.",
			Schema:      cfg.StructuredOutput.Schema,
		})
	}

	return specs, byName, nil
}

func (r *Runner) invokeTool(ctx context.Context, tools map[string]boundTool, call ToolCall, parent *job.Job) (any, error) {
	bound, ok := tools[call.Name]
	if !ok {
		return nil, werr.BadRequest("model called unknown tool " + call.Name)
	}

	var modelArgs map[string]any
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &modelArgs); err != nil {
			return nil, werr.Wrap(werr.KindBadRequest, "decode tool arguments", err)
		}
	}
	if modelArgs == nil {
		modelArgs = map[string]any{}
	}

	if bound.remote != nil {
		return bound.remote.client.callTool(ctx, bound.remote.name, modelArgs)
	}

	resolved, err := resolveToolArgs(bound.local.InputTransforms, modelArgs)
	if err != nil {
		return nil, err
	}
	return r.jobs.RunToolModule(ctx, parent, bound.local.Runnable, resolved)
}

// resolveToolArgs applies §4.6's argument resolution rules: an Ai transform
// always yields the model-supplied value; an empty Static ("" or null)
// yields to the model-supplied value if the model provided one; any other
// transform (non-empty Static, Javascript) wins over whatever the model
// sent, since the flow author pinned that argument explicitly.
func resolveToolArgs(transforms map[string]flow.InputTransform, modelArgs map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(transforms))
	for key, t := range transforms {
		switch t.Kind {
		case flow.TransformAI:
			out[key] = modelArgs[key]

		case flow.TransformStatic:
			if t.IsEmptyStatic() {
				if v, ok := modelArgs[key]; ok {
					out[key] = v
					continue
				}
			}
			var v any
			if len(t.Value) > 0 {
				if err := json.Unmarshal(t.Value, &v); err != nil {
					return nil, werr.Wrap(werr.KindBadRequest, "decode static tool argument "+key, err)
				}
			}
			out[key] = v

		case flow.TransformJavascript:
			v, err := evalToolExpr(t.Expr, modelArgs)
			if err != nil {
				return nil, werr.Wrap(werr.KindBadRequest, "evaluate tool argument "+key, err)
			}
			out[key] = v

		default:
			return nil, werr.BadRequest("unknown input transform kind: " + string(t.Kind))
		}
	}
	// Arguments the model supplied that the flow author never declared a
	// transform for pass straight through, so a loosely-typed tool schema
	// still receives whatever extra fields the model filled in.
	for key, v := range modelArgs {
		if _, declared := transforms[key]; !declared {
			out[key] = v
		}
	}
	return out, nil
}

func evalToolExpr(src string, args map[string]any) (any, error) {
	env := map[string]any{"args": args}
	program, err := expr.Compile(src, expr.Env(env))
	if err != nil {
		return nil, err
	}
	return expr.Run(program, env)
}
