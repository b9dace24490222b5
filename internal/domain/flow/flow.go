// Package flow defines the FlowValue definition model and the runtime
// FlowStatus state (§3.2, §3.3 of the specification).
package flow

import "encoding/json"

// Value is a flow definition: an ordered list of modules plus optional
// failure/preprocessor modules and concurrency settings.
type Value struct {
	Modules             []Module `json:"modules"`
	FailureModule       *Module  `json:"failure_module,omitempty"`
	PreprocessorModule   *Module  `json:"preprocessor_module,omitempty"`
	ConcurrentLimit      *int32   `json:"concurrent_limit,omitempty"`
	ConcurrencyTimeWindowS *int32 `json:"concurrency_time_window_s,omitempty"`

	// Embedded script table referenced by FlowScript module values.
	Scripts map[string]EmbeddedScript `json:"scripts,omitempty"`
}

// EmbeddedScript is one entry of a flow's embedded script table.
type EmbeddedScript struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

// Module is one node in a flow.
type Module struct {
	ID               string          `json:"id"`
	Value            ModuleValue     `json:"value"`
	InputTransforms  map[string]InputTransform `json:"input_transforms,omitempty"`
	SkipIf           string          `json:"skip_if,omitempty"`
	Retry            *RetryPolicy    `json:"retry,omitempty"`
	Sleep            *InputTransform `json:"sleep,omitempty"`
	CacheTTL         *int32          `json:"cache_ttl,omitempty"`
	DeleteAfterUse   bool            `json:"delete_after_use,omitempty"`
	Timeout          *int32          `json:"timeout,omitempty"`
	Priority         *int16          `json:"priority,omitempty"`
	ContinueOnError  bool            `json:"continue_on_error,omitempty"`
	ApplyPreprocessor bool           `json:"apply_preprocessor,omitempty"`
	Suspend          *SuspendConfig  `json:"suspend,omitempty"`
}

// SuspendConfig is the suspend block attached to a module (§4.5).
type SuspendConfig struct {
	RequiredEvents       int32  `json:"required_events"`
	TimeoutS             int32  `json:"timeout_s,omitempty"`
	UserAuthRequired     bool   `json:"user_auth_required,omitempty"`
	SelfApprovalDisabled bool   `json:"self_approval_disabled,omitempty"`
	AdminBypass          bool   `json:"admin_bypass,omitempty"`
}

// RetryPolicy controls module-level retry on failure (§4.4).
type RetryPolicy struct {
	MaxAttempts   int     `json:"max_attempts"`
	BackoffBaseMs int     `json:"backoff_base_ms"`
	BackoffFactor float64 `json:"backoff_factor"`
}

// ModuleValueKind discriminates the ModuleValue tagged union.
type ModuleValueKind string

const (
	ModuleIdentity     ModuleValueKind = "identity"
	ModuleRawScript    ModuleValueKind = "rawscript"
	ModuleScript       ModuleValueKind = "script"
	ModuleFlow         ModuleValueKind = "flow"
	ModuleFlowScript   ModuleValueKind = "flowscript"
	ModuleForloop      ModuleValueKind = "forloopflow"
	ModuleWhileloop    ModuleValueKind = "whileloopflow"
	ModuleBranchOne    ModuleValueKind = "branchone"
	ModuleBranchAll    ModuleValueKind = "branchall"
	ModuleAIAgent      ModuleValueKind = "aiagent"
)

// ModuleValue is the tagged union of §3.2's FlowModuleValue.
type ModuleValue struct {
	Kind ModuleValueKind `json:"type"`

	// RawScript
	Content     string `json:"content,omitempty"`
	Language    string `json:"language,omitempty"`
	Lock        string `json:"lock,omitempty"`
	Tag         string `json:"tag,omitempty"`

	// Script
	Path        string `json:"path,omitempty"`
	Hash        string `json:"hash,omitempty"`
	TagOverride string `json:"tag_override,omitempty"`

	// FlowScript
	ScriptID string `json:"id,omitempty"`

	// ForloopFlow / WhileloopFlow
	Iterator     *InputTransform `json:"iterator,omitempty"`
	Modules      []Module        `json:"modules,omitempty"`
	SkipFailures bool            `json:"skip_failures,omitempty"`
	Parallel     bool            `json:"parallel,omitempty"`

	// BranchOne
	Branches []Branch `json:"branches,omitempty"`
	Default  []Module `json:"default,omitempty"`

	// BranchAll
	AllBranches []AllBranch `json:"all_branches,omitempty"`

	// AIAgent
	Agent *AIAgentConfig `json:"agent,omitempty"`
}

// Branch is one entry of a BranchOne module.
type Branch struct {
	Expr    string   `json:"expr"`
	Modules []Module `json:"modules"`
}

// AllBranch is one entry of a BranchAll module.
type AllBranch struct {
	Modules     []Module `json:"modules"`
	SkipFailure bool     `json:"skip_failure"`
}

// AIAgentConfig configures the AI-agent module (§4.6).
type AIAgentConfig struct {
	Provider          string        `json:"provider"`
	Model             string        `json:"model"`
	SystemPrompt      string        `json:"system_prompt,omitempty"`
	MaxIterations     int           `json:"max_iterations"`
	Tools             []AgentTool   `json:"tools"`
	MCPServers        []MCPServer   `json:"mcp_servers,omitempty"`
	StructuredOutput  *StructuredOutputSpec `json:"structured_output,omitempty"`
	ChatInputEnabled  bool          `json:"chat_input_enabled,omitempty"`
}

// AgentTool is a local Windmill tool (script or subflow) exposed to the model.
type AgentTool struct {
	ModuleID        string                    `json:"module_id"`
	FunctionName    string                    `json:"function_name"`
	Description     string                    `json:"description"`
	Runnable        Module                    `json:"runnable"`
	InputTransforms map[string]InputTransform `json:"input_transforms,omitempty"`
	Schema          json.RawMessage           `json:"schema,omitempty"`
}

// MCPServer is a remote MCP tool source reachable over stdio or SSE.
type MCPServer struct {
	Name      string `json:"name"`
	Transport string `json:"transport"` // "stdio" | "sse"
	Command   string `json:"command,omitempty"`
	Args      []string `json:"args,omitempty"`
	URL       string `json:"url,omitempty"`
}

// StructuredOutputSpec describes the sink tool call that terminates the
// AI-agent loop with a JSON payload instead of plain assistant text.
type StructuredOutputSpec struct {
	FunctionName string          `json:"function_name"`
	Schema       json.RawMessage `json:"schema"`
}

// InputTransformKind discriminates the InputTransform tagged union.
type InputTransformKind string

const (
	TransformStatic     InputTransformKind = "static"
	TransformJavascript InputTransformKind = "javascript"
	TransformAI         InputTransformKind = "ai"
)

// InputTransform is §3.2's InputTransform.
type InputTransform struct {
	Kind  InputTransformKind `json:"type"`
	Value json.RawMessage    `json:"value,omitempty"` // Static
	Expr  string              `json:"expr,omitempty"`  // Javascript
}

// IsEmptyStatic reports whether a Static transform carries "" or null — the
// case where, inside an AI-agent tool module, the model-supplied argument
// wins over the declared transform (§4.6, Argument resolution).
func (t InputTransform) IsEmptyStatic() bool {
	if t.Kind != TransformStatic {
		return false
	}
	s := string(t.Value)
	return s == "" || s == `""` || s == "null"
}
