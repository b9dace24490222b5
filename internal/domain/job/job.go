// Package job defines the core Job data model shared by the queue store,
// the worker loop, and the flow interpreter.
package job

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the runnable kind a job carries.
type Kind string

const (
	KindScript     Kind = "script"
	KindFlow       Kind = "flow"
	KindPreview    Kind = "preview"
	KindDependency Kind = "dependency"
	KindIdentity   Kind = "identity"
	KindFlowScript Kind = "flow_script"
	KindFlowNode   Kind = "flow_node"
	KindNoop       Kind = "noop"
	KindAIAgent    Kind = "ai_agent"
)

// Language enumerates the supported script languages.
type Language string

const (
	LanguageDeno   Language = "deno"
	LanguagePython Language = "python3"
	LanguageBun    Language = "bun"
	LanguageGo     Language = "go"
)

// TriggerKind enumerates the external event sources that can push a job.
type TriggerKind string

const (
	TriggerSchedule  TriggerKind = "schedule"
	TriggerHTTP      TriggerKind = "http"
	TriggerWebhook   TriggerKind = "webhook"
	TriggerWebsocket TriggerKind = "websocket"
	TriggerPostgres  TriggerKind = "postgres"
	TriggerKafka     TriggerKind = "kafka"
	TriggerNats      TriggerKind = "nats"
	TriggerMqtt      TriggerKind = "mqtt"
	TriggerGCP       TriggerKind = "gcp"
	TriggerGooglePush TriggerKind = "google_push"
	TriggerSqs       TriggerKind = "sqs"
	TriggerEmail     TriggerKind = "email"
	TriggerNative    TriggerKind = "native"
)

// Status is the terminal completion status of a job.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
	StatusCanceled Status = "canceled"
	StatusSkipped  Status = "skipped"
)

// RunnableRef identifies what a job runs: either a stored script/flow path,
// or inline preview source.
type RunnableRef struct {
	Kind         Kind     `json:"kind"`
	RunnableID   *int64   `json:"runnable_id,omitempty"`
	RunnablePath *string  `json:"runnable_path,omitempty"`
	ScriptLang   Language `json:"script_lang,omitempty"`
	RawCode      *string  `json:"raw_code,omitempty"`
	RawFlow      []byte   `json:"raw_flow,omitempty"` // serialized flow.Value
}

// CallerIdentity carries the permission context a job runs under.
type CallerIdentity struct {
	CreatedBy           string  `json:"created_by"`
	PermissionedAs      string  `json:"permissioned_as"` // "u/<user>" | "g/<group>"
	PermissionedAsEmail string  `json:"permissioned_as_email"`
	OnBehalfOfEmail     *string `json:"on_behalf_of_email,omitempty"`
	TokenPrefix         string  `json:"token_prefix"`
}

// Scheduling carries queue placement and lineage fields.
type Scheduling struct {
	Tag                   string      `json:"tag"`
	Priority              int16       `json:"priority"`
	ScheduledFor          time.Time   `json:"scheduled_for"`
	ParentJob             *uuid.UUID  `json:"parent_job,omitempty"`
	RootJob               *uuid.UUID  `json:"root_job,omitempty"`
	FlowInnermostRootJob  *uuid.UUID  `json:"flow_innermost_root_job,omitempty"`
	FlowStepID            string      `json:"flow_step_id,omitempty"`
	FlowStep              *int32      `json:"flow_step,omitempty"`
	TriggerKind           TriggerKind `json:"trigger_kind,omitempty"`
	Trigger               string      `json:"trigger,omitempty"`
}

// DefaultPriority for a flow step child job. Sub-scripts (scripts called from
// a script, not from a flow module) use PriorityNestedScript.
const (
	PriorityDefault      int16 = 0
	PriorityFlowStep     int16 = 1
	PriorityNestedScript int16 = 2
)

// Policy carries execution policy knobs.
type Policy struct {
	ConcurrentLimit        *int32        `json:"concurrent_limit,omitempty"`
	ConcurrencyTimeWindowS *int32        `json:"concurrency_time_window_s,omitempty"`
	CacheTTL               *int32        `json:"cache_ttl,omitempty"`
	Timeout                *int32        `json:"timeout,omitempty"`
	SameWorker             bool          `json:"same_worker"`
	VisibleToOwner         bool          `json:"visible_to_owner"`
	Labels                 []string      `json:"labels,omitempty"`
	Preprocessed           bool          `json:"preprocessed"`
}

// Job is the full, in-memory representation of §3.1. Storage splits this
// across the v2_job_queue / v2_job_completed / v2_job_runtime / v2_job_status
// tables (internal/storage/models); this type is the assembled view used by
// the queue, worker, and flow interpreter.
type Job struct {
	ID          uuid.UUID `json:"id"`
	WorkspaceID string    `json:"workspace_id"`

	Runnable RunnableRef    `json:"runnable"`
	Caller   CallerIdentity `json:"caller"`
	Sched    Scheduling     `json:"sched"`
	Policy   Policy         `json:"policy"`

	Args map[string]any `json:"args"`

	// Queue-phase extras, valid only while the job lives in v2_job_queue.
	Running        bool       `json:"running"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	Suspend        int32      `json:"suspend"`
	SuspendUntil   *time.Time `json:"suspend_until,omitempty"`
	CanceledBy     *string    `json:"canceled_by,omitempty"`
	CanceledReason *string    `json:"canceled_reason,omitempty"`
	Worker         *string    `json:"worker,omitempty"`
	Extras         map[string]any `json:"extras,omitempty"`

	// Runtime.
	Ping       *time.Time `json:"ping,omitempty"`
	MemoryPeak *int32     `json:"memory_peak,omitempty"`

	// Flow state, valid for flow-kind jobs.
	FlowStatus        []byte `json:"flow_status,omitempty"` // serialized flow.Status
	FlowLeafJobs       map[string]uuid.UUID `json:"flow_leaf_jobs,omitempty"`

	// Completion, valid only once the job has moved to v2_job_completed.
	Completed *Completion `json:"completed,omitempty"`
}

// Completion is the terminal record of a job (§3.1, v2_job_completed).
type Completion struct {
	Status       Status     `json:"status"`
	Result       any        `json:"result"`
	ResultColumns []string  `json:"result_columns,omitempty"`
	DurationMs   int64      `json:"duration_ms"`
	CompletedAt  time.Time  `json:"completed_at"`
	StartedAt    time.Time  `json:"started_at"`
	Retries      []Retry    `json:"retries,omitempty"`
	FlowStatus   []byte     `json:"flow_status,omitempty"`
	Worker       string     `json:"worker,omitempty"`
	Extras       map[string]any `json:"extras,omitempty"`
}

// Retry records one retry attempt of a failed module/job.
type Retry struct {
	Attempt   int       `json:"attempt"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionError is the structured error shape every language handler and
// the flow interpreter surface on failure (§7, ExecutionErr).
type ExecutionError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

func (e *ExecutionError) Error() string { return e.Name + ": " + e.Message }

// AsResult wraps an ExecutionError into the `{error: {...}}` result shape
// used throughout the completion and flow-status records.
func (e *ExecutionError) AsResult() map[string]any {
	return map[string]any{"error": map[string]any{
		"name": e.Name, "message": e.Message, "stack": e.Stack,
	}}
}
