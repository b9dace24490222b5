// Package agent implements the AI-agent module (§4.6): a bounded
// model-call loop that lets the model invoke local Windmill tools (run as
// child jobs) and remote MCP tools, terminating on plain assistant text or
// a structured-output tool call, with a full AgentAction audit trail and
// streamed tool-execution events.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smilemakc/wmcore/internal/domain/flow"
	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/werr"
	"github.com/smilemakc/wmcore/internal/langhandler"
)

// Role is a chat message's speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one function-call the model asked to make.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Message is one turn of the conversation sent to or received from a Provider.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolSpec describes one callable function offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// ModelResponse is what a Provider returns for one turn.
type ModelResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
}

// Provider abstracts one model backend (§4.6 supports multiple providers
// per AIAgentConfig.Provider; this repository ships the one the teacher's
// own multi-provider LLM executor generalizes from).
type Provider interface {
	Complete(ctx context.Context, model string, messages []Message, tools []ToolSpec) (*ModelResponse, error)
}

// JobRunner executes one local tool's underlying flow module as a child
// job. internal/flowengine's Interpreter implements this (RunToolModule),
// so agent never imports flowengine and the two packages stay decoupled
// the same way worker and flowengine do.
type JobRunner interface {
	RunToolModule(ctx context.Context, parent *job.Job, mod flow.Module, args map[string]any) (any, error)
}

// AgentAction is one audit-trail entry recorded for every model turn and
// tool invocation during a run (§4.6).
type AgentAction struct {
	Iteration int            `json:"iteration"`
	Kind      string         `json:"kind"` // "model_call" | "tool_call" | "tool_result" | "final"
	Tool      string         `json:"tool,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Runner drives the bounded AI-agent loop.
type Runner struct {
	providers map[string]Provider
	jobs      JobRunner
	mcp       *mcpPool
}

func NewRunner(jobs JobRunner) *Runner {
	return &Runner{providers: map[string]Provider{}, jobs: jobs, mcp: newMCPPool()}
}

func (r *Runner) RegisterProvider(name string, p Provider) {
	r.providers[name] = p
}

// Run executes cfg's bounded loop for one AI-agent module invocation,
// implementing flowengine.AgentRunner.
func (r *Runner) Run(ctx context.Context, cfg *flow.AIAgentConfig, args map[string]any, parent *job.Job, logs langhandler.LogSink) (map[string]any, error) {
	if cfg == nil {
		return nil, werr.BadRequest("ai-agent module has no agent config")
	}
	provider, ok := r.providers[cfg.Provider]
	if !ok {
		return nil, werr.BadRequest("no provider registered for " + cfg.Provider)
	}

	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}

	messages := []Message{}
	if cfg.SystemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: cfg.SystemPrompt})
	}
	userMsg, err := json.Marshal(args)
	if err != nil {
		return nil, werr.Wrap(werr.KindBadRequest, "marshal agent input", err)
	}
	messages = append(messages, Message{Role: RoleUser, Content: string(userMsg)})

	tools, toolByName, err := r.collectTools(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var audit []AgentAction
	for iter := 0; iter < maxIter; iter++ {
		resp, err := provider.Complete(ctx, cfg.Model, messages, tools)
		if err != nil {
			return nil, werr.Wrap(werr.KindBadGateway, "model call failed", err)
		}
		audit = append(audit, AgentAction{Iteration: iter, Kind: "model_call", Result: resp.Content, Timestamp: now()})
		logs.Write(fmt.Sprintf("agent iteration %d: %d tool call(s), finish_reason=%s", iter, len(resp.ToolCalls), resp.FinishReason))

		if len(resp.ToolCalls) == 0 {
			return map[string]any{"output": resp.Content, "actions": audit}, nil
		}

		messages = append(messages, Message{Role: RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})

		for _, call := range resp.ToolCalls {
			if cfg.StructuredOutput != nil && call.Name == cfg.StructuredOutput.FunctionName {
				var payload map[string]any
				if err := json.Unmarshal(call.Arguments, &payload); err != nil {
					return nil, werr.Wrap(werr.KindBadRequest, "decode structured output", err)
				}
				audit = append(audit, AgentAction{Iteration: iter, Kind: "final", Tool: call.Name, Result: payload, Timestamp: now()})
				return map[string]any{"output": payload, "actions": audit}, nil
			}

			logs.Write("agent tool call: " + call.Name)
			result, err := r.invokeTool(ctx, toolByName, call, parent)
			action := AgentAction{Iteration: iter, Kind: "tool_call", Tool: call.Name, Timestamp: now()}
			if err != nil {
				action.Error = err.Error()
				audit = append(audit, action)
				messages = append(messages, Message{Role: RoleTool, ToolCallID: call.ID, Name: call.Name, Content: `{"error":"` + err.Error() + `"}`})
				continue
			}
			action.Result = result
			audit = append(audit, action)

			resultJSON, _ := json.Marshal(result)
			messages = append(messages, Message{Role: RoleTool, ToolCallID: call.ID, Name: call.Name, Content: string(resultJSON)})
		}
	}

	return nil, werr.New(werr.KindExecutionErr, "ai-agent exceeded max_iterations without a final answer")
}

// now is a thin indirection so tests need not depend on wall-clock time.
var now = time.Now
