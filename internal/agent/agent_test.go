package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/wmcore/internal/domain/flow"
	"github.com/smilemakc/wmcore/internal/domain/job"
)

type testLog struct{ t *testing.T }

func (l testLog) Write(line string) { l.t.Logf("agent log: %s", line) }

type fakeJobRunner struct {
	calls []map[string]any
}

func (f *fakeJobRunner) RunToolModule(ctx context.Context, parent *job.Job, mod flow.Module, args map[string]any) (any, error) {
	f.calls = append(f.calls, args)
	return map[string]any{"doubled": args["value"]}, nil
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestRunnerStopsOnPlainAssistantText(t *testing.T) {
	provider := &fakeSingleShotProvider{resp: ModelResponse{Content: "all done", FinishReason: "stop"}}
	jobs := &fakeJobRunner{}
	r := NewRunner(jobs)
	r.RegisterProvider("fake", provider)

	cfg := &flow.AIAgentConfig{Provider: "fake", Model: "test-model", MaxIterations: 3}
	parent := &job.Job{ID: uuid.New()}

	out, err := r.Run(context.Background(), cfg, map[string]any{"question": "hi"}, parent, testLog{t})
	require.NoError(t, err)
	require.Equal(t, "all done", out["output"])
	require.Equal(t, 1, provider.calls)
}

func TestRunnerDispatchesLocalToolThenFinishes(t *testing.T) {
	toolCallArgs := mustJSON(t, map[string]any{"value": float64(4)})
	provider := &sequenceProvider{
		turns: []ModelResponse{
			{
				ToolCalls: []ToolCall{{ID: "call-1", Name: "doubler", Arguments: toolCallArgs}},
			},
			{Content: "the result is doubled", FinishReason: "stop"},
		},
	}
	jobs := &fakeJobRunner{}
	r := NewRunner(jobs)
	r.RegisterProvider("fake", provider)

	cfg := &flow.AIAgentConfig{
		Provider:      "fake",
		Model:         "test-model",
		MaxIterations: 5,
		Tools: []flow.AgentTool{
			{
				FunctionName: "doubler",
				Description: "doubles a number",
				Runnable:    flow.Module{ID: "doubler-step", Value: flow.ModuleValue{Kind: flow.ModuleRawScript, Language: "deno", Content: "ignored"}},
				InputTransforms: map[string]flow.InputTransform{
					"value": {Kind: flow.TransformAI},
				},
			},
		},
	}
	parent := &job.Job{ID: uuid.New()}

	out, err := r.Run(context.Background(), cfg, map[string]any{}, parent, testLog{t})
	require.NoError(t, err)
	require.Equal(t, "the result is doubled", out["output"])
	require.Len(t, jobs.calls, 1)
	require.Equal(t, float64(4), jobs.calls[0]["value"])

	actions, ok := out["actions"].([]AgentAction)
	require.True(t, ok)
	var sawToolCall bool
	for _, a := range actions {
		if a.Kind == "tool_call" && a.Tool == "doubler" {
			sawToolCall = true
			require.Empty(t, a.Error)
		}
	}
	require.True(t, sawToolCall)
}

func TestRunnerTerminatesOnStructuredOutput(t *testing.T) {
	finalArgs := mustJSON(t, map[string]any{"verdict": "approved"})
	provider := &sequenceProvider{
		turns: []ModelResponse{
			{ToolCalls: []ToolCall{{ID: "call-1", Name: "submit_verdict", Arguments: finalArgs}}},
		},
	}
	jobs := &fakeJobRunner{}
	r := NewRunner(jobs)
	r.RegisterProvider("fake", provider)

	cfg := &flow.AIAgentConfig{
		Provider:         "fake",
		Model:            "test-model",
		MaxIterations:    5,
		StructuredOutput: &flow.StructuredOutputSpec{FunctionName: "submit_verdict"},
	}
	parent := &job.Job{ID: uuid.New()}

	out, err := r.Run(context.Background(), cfg, map[string]any{}, parent, testLog{t})
	require.NoError(t, err)
	payload, ok := out["output"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "approved", payload["verdict"])
}

func TestRunnerExceedsMaxIterations(t *testing.T) {
	provider := &loopingProvider{}
	jobs := &fakeJobRunner{}
	r := NewRunner(jobs)
	r.RegisterProvider("fake", provider)

	cfg := &flow.AIAgentConfig{Provider: "fake", Model: "test-model", MaxIterations: 2}
	parent := &job.Job{ID: uuid.New()}

	_, err := r.Run(context.Background(), cfg, map[string]any{}, parent, testLog{t})
	require.Error(t, err)
}

type fakeSingleShotProvider struct {
	resp  ModelResponse
	calls int
}

func (p *fakeSingleShotProvider) Complete(ctx context.Context, model string, messages []Message, tools []ToolSpec) (*ModelResponse, error) {
	p.calls++
	return &p.resp, nil
}

type sequenceProvider struct {
	turns []ModelResponse
	idx   int
}

func (p *sequenceProvider) Complete(ctx context.Context, model string, messages []Message, tools []ToolSpec) (*ModelResponse, error) {
	resp := p.turns[p.idx]
	if p.idx < len(p.turns)-1 {
		p.idx++
	}
	return &resp, nil
}

// loopingProvider always asks for a tool call the model never stops
// requesting, exercising the max_iterations guard.
type loopingProvider struct{}

func (p *loopingProvider) Complete(ctx context.Context, model string, messages []Message, tools []ToolSpec) (*ModelResponse, error) {
	return &ModelResponse{ToolCalls: []ToolCall{{ID: "x", Name: "nonexistent", Arguments: json.RawMessage(`{}`)}}}, nil
}
