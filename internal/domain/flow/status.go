package flow

import (
	"time"

	"github.com/google/uuid"
)

// Status is the runtime state the interpreter threads through Step calls
// (§3.3). It is serialized into job.Job.FlowStatus/Completion.FlowStatus.
type Status struct {
	Step     int32          `json:"step"`
	Modules  []ModuleStatus `json:"modules"`
	Failure  *ModuleStatus  `json:"failure_module,omitempty"`
	Preprocessor *ModuleStatus `json:"preprocessor_module,omitempty"`

	// RetryOf, when set, marks this status as a restart continuing from a
	// prior job's step rather than starting fresh (§10, restart-from-step).
	RestartedFrom *uuid.UUID `json:"restarted_from,omitempty"`
}

// ModuleStatusKind is the lifecycle state of one module within a flow.
type ModuleStatusKind string

const (
	ModuleStatusWaitingForPriorSteps ModuleStatusKind = "waiting_for_priors"
	ModuleStatusWaitingForEvents     ModuleStatusKind = "waiting_for_events"
	ModuleStatusWaitingForExecutor   ModuleStatusKind = "waiting_for_executor"
	ModuleStatusRunning              ModuleStatusKind = "running"
	ModuleStatusSuccess              ModuleStatusKind = "success"
	ModuleStatusFailure              ModuleStatusKind = "failure"
	ModuleStatusSkipped              ModuleStatusKind = "skipped"
)

// ModuleStatus is the per-module runtime record.
type ModuleStatus struct {
	ID   string           `json:"id"`
	Kind ModuleStatusKind `json:"type"`

	JobID    *uuid.UUID `json:"job,omitempty"`
	FlowJobs []uuid.UUID `json:"flow_jobs,omitempty"` // forloop/branchall parallel children

	Count      int32 `json:"count,omitempty"`      // retry attempt count
	IteratorLen *int32 `json:"iterator_len,omitempty"`

	// Suspend tracking, valid only while Kind == WaitingForEvents.
	ApprovalConditionsMet int32      `json:"approval_conditions_met,omitempty"`
	RequiredEvents        int32      `json:"required_events,omitempty"`
	SuspendUntil          *time.Time `json:"suspend_until,omitempty"`

	// BranchAll/Forloop parallel branch index, used to place a child's result
	// back into the correct slot regardless of completion order.
	BranchOrIterationN *int32 `json:"branch_or_iteration_n,omitempty"`

	ApprovalRequested bool `json:"approval_requested,omitempty"`
}

// ApprovalEvent is one resume/cancel signal recorded against a suspended
// module (§4.5).
type ApprovalEvent struct {
	ResumeID  int32     `json:"resume_id"`
	Approved  bool      `json:"approved"`
	Approver  string    `json:"approver,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
