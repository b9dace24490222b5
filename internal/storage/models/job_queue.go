package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// JobQueueModel is the v2_job_queue row: a job that has not yet reached a
// terminal state. A completed job is moved out to JobCompletedModel and
// deleted from this table (§3.1).
type JobQueueModel struct {
	bun.BaseModel `bun:"table:v2_job_queue,alias:q"`

	ID          uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	WorkspaceID string    `bun:"workspace_id,notnull" json:"workspace_id"`

	Kind         string    `bun:"kind,notnull" json:"kind"`
	RunnableID   *int64    `bun:"runnable_id" json:"runnable_id,omitempty"`
	RunnablePath *string   `bun:"runnable_path" json:"runnable_path,omitempty"`
	ScriptLang   string    `bun:"script_lang" json:"script_lang,omitempty"`
	RawCode      *string   `bun:"raw_code" json:"raw_code,omitempty"`
	RawFlow      JSONBRaw  `bun:"raw_flow,type:jsonb" json:"raw_flow,omitempty"`

	CreatedBy           string  `bun:"created_by,notnull" json:"created_by"`
	PermissionedAs      string  `bun:"permissioned_as,notnull" json:"permissioned_as"`
	PermissionedAsEmail string  `bun:"permissioned_as_email,notnull" json:"permissioned_as_email"`
	OnBehalfOfEmail     *string `bun:"on_behalf_of_email" json:"on_behalf_of_email,omitempty"`
	TokenPrefix         string  `bun:"token_prefix" json:"token_prefix,omitempty"`

	Tag                  string     `bun:"tag,notnull" json:"tag"`
	Priority             int16      `bun:"priority,notnull,default:0" json:"priority"`
	ScheduledFor         time.Time  `bun:"scheduled_for,notnull,default:current_timestamp" json:"scheduled_for"`
	ParentJob            *uuid.UUID `bun:"parent_job,type:uuid" json:"parent_job,omitempty"`
	RootJob              *uuid.UUID `bun:"root_job,type:uuid" json:"root_job,omitempty"`
	FlowInnermostRootJob *uuid.UUID `bun:"flow_innermost_root_job,type:uuid" json:"flow_innermost_root_job,omitempty"`
	FlowStepID           string     `bun:"flow_step_id" json:"flow_step_id,omitempty"`
	FlowStep             *int32     `bun:"flow_step" json:"flow_step,omitempty"`
	TriggerKind          string     `bun:"trigger_kind" json:"trigger_kind,omitempty"`
	Trigger              string     `bun:"trigger" json:"trigger,omitempty"`

	ConcurrentLimit        *int32 `bun:"concurrent_limit" json:"concurrent_limit,omitempty"`
	ConcurrencyTimeWindowS *int32 `bun:"concurrency_time_window_s" json:"concurrency_time_window_s,omitempty"`
	CacheTTL               *int32 `bun:"cache_ttl" json:"cache_ttl,omitempty"`
	Timeout                *int32 `bun:"timeout" json:"timeout,omitempty"`
	SameWorker             bool   `bun:"same_worker,notnull,default:false" json:"same_worker"`
	VisibleToOwner         bool   `bun:"visible_to_owner,notnull,default:true" json:"visible_to_owner"`
	Labels                 StringArray `bun:"labels,array" json:"labels,omitempty"`
	Preprocessed           bool   `bun:"preprocessed,notnull,default:false" json:"preprocessed"`

	Args JSONBMap `bun:"args,type:jsonb,notnull,default:'{}'" json:"args"`

	Running        bool       `bun:"running,notnull,default:false" json:"running"`
	StartedAt      *time.Time `bun:"started_at" json:"started_at,omitempty"`
	Suspend        int32      `bun:"suspend,notnull,default:0" json:"suspend"`
	SuspendUntil   *time.Time `bun:"suspend_until" json:"suspend_until,omitempty"`
	CanceledBy     *string    `bun:"canceled_by" json:"canceled_by,omitempty"`
	CanceledReason *string    `bun:"canceled_reason" json:"canceled_reason,omitempty"`
	Worker         *string    `bun:"worker" json:"worker,omitempty"`
	Extras         JSONBMap   `bun:"extras,type:jsonb" json:"extras,omitempty"`

	FlowStatus   JSONBRaw `bun:"flow_status,type:jsonb" json:"flow_status,omitempty"`
	FlowLeafJobs JSONBMap `bun:"flow_leaf_jobs,type:jsonb" json:"flow_leaf_jobs,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

func (JobQueueModel) TableName() string { return "v2_job_queue" }

// JobRuntimeModel is the v2_job_runtime row: per-job liveness state kept
// separate from the queue row so a worker's heartbeat write never contends
// with columns the interpreter writes on step transitions.
type JobRuntimeModel struct {
	bun.BaseModel `bun:"table:v2_job_runtime,alias:rt"`

	JobID      uuid.UUID `bun:"job_id,pk,type:uuid" json:"job_id"`
	Ping       *time.Time `bun:"ping" json:"ping,omitempty"`
	MemoryPeak *int32     `bun:"memory_peak" json:"memory_peak,omitempty"`
}

func (JobRuntimeModel) TableName() string { return "v2_job_runtime" }

// JobStatusModel is the v2_job_status row: the flow-status mirror kept
// queryable without decoding the v2_job_queue.flow_status blob, updated on
// every Step transition for observability endpoints.
type JobStatusModel struct {
	bun.BaseModel `bun:"table:v2_job_status,alias:st"`

	JobID        uuid.UUID `bun:"job_id,pk,type:uuid" json:"job_id"`
	Step         int32     `bun:"step,notnull,default:0" json:"step"`
	TotalModules int32     `bun:"total_modules,notnull,default:0" json:"total_modules"`
	UpdatedAt    time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

func (JobStatusModel) TableName() string { return "v2_job_status" }

// JobCompletedModel is the v2_job_completed row a job is moved to once it
// reaches a terminal status (§3.1).
type JobCompletedModel struct {
	bun.BaseModel `bun:"table:v2_job_completed,alias:c"`

	ID          uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	WorkspaceID string    `bun:"workspace_id,notnull" json:"workspace_id"`

	Kind         string  `bun:"kind,notnull" json:"kind"`
	RunnableID   *int64  `bun:"runnable_id" json:"runnable_id,omitempty"`
	RunnablePath *string `bun:"runnable_path" json:"runnable_path,omitempty"`

	CreatedBy      string     `bun:"created_by,notnull" json:"created_by"`
	PermissionedAs string     `bun:"permissioned_as,notnull" json:"permissioned_as"`
	Tag            string     `bun:"tag,notnull" json:"tag"`
	ParentJob      *uuid.UUID `bun:"parent_job,type:uuid" json:"parent_job,omitempty"`
	RootJob        *uuid.UUID `bun:"root_job,type:uuid" json:"root_job,omitempty"`

	Status        string   `bun:"status,notnull" json:"status"`
	Result        JSONBMap `bun:"result,type:jsonb" json:"result,omitempty"`
	ResultColumns StringArray `bun:"result_columns,array" json:"result_columns,omitempty"`
	DurationMs    int64    `bun:"duration_ms,notnull,default:0" json:"duration_ms"`
	StartedAt     time.Time `bun:"started_at,notnull" json:"started_at"`
	CompletedAt   time.Time `bun:"completed_at,notnull,default:current_timestamp" json:"completed_at"`

	Retries    JSONBRaw `bun:"retries,type:jsonb" json:"retries,omitempty"`
	FlowStatus JSONBRaw `bun:"flow_status,type:jsonb" json:"flow_status,omitempty"`
	Worker     string   `bun:"worker" json:"worker,omitempty"`
	Extras     JSONBMap `bun:"extras,type:jsonb" json:"extras,omitempty"`
}

func (JobCompletedModel) TableName() string { return "v2_job_completed" }
