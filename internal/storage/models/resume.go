package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ResumeJobModel is the resume_job row recording one approval/disapproval
// event delivered against a suspended flow module (§4.5).
type ResumeJobModel struct {
	bun.BaseModel `bun:"table:resume_job,alias:r"`

	JobID    uuid.UUID `bun:"job_id,pk,type:uuid" json:"job_id"`
	ResumeID int32     `bun:"resume_id,pk" json:"resume_id"`
	FlowStepID string  `bun:"flow_step_id,notnull" json:"flow_step_id"`

	Approved  bool     `bun:"approved,notnull" json:"approved"`
	Approver  string   `bun:"approver" json:"approver,omitempty"`
	Payload   JSONBMap `bun:"payload,type:jsonb" json:"payload,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

func (ResumeJobModel) TableName() string { return "resume_job" }

func (r *ResumeJobModel) BeforeInsert(ctx interface{}) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.Payload == nil {
		r.Payload = make(JSONBMap)
	}
	return nil
}

// ConcurrencyKeyModel is the concurrency_key row mapping a job to the
// resolved concurrency key string it was pushed with, so Complete/Cancel can
// release the slot without recomputing the key's input transforms.
type ConcurrencyKeyModel struct {
	bun.BaseModel `bun:"table:concurrency_key,alias:ck"`

	JobID uuid.UUID `bun:"job_id,pk,type:uuid" json:"job_id"`
	Key   string    `bun:"key,notnull" json:"key"`
}

func (ConcurrencyKeyModel) TableName() string { return "concurrency_key" }

// ConcurrencyCounterModel is the concurrency_counter row tracking, per key,
// how many jobs are currently occupying the concurrency-limited slot and
// the rolling window of their start times (§4.2).
type ConcurrencyCounterModel struct {
	bun.BaseModel `bun:"table:concurrency_counter,alias:cc"`

	Key           string    `bun:"key,pk" json:"key"`
	JobUUIDs      JSONBMap  `bun:"job_uuids,type:jsonb,notnull,default:'{}'" json:"job_uuids"`
	LastUpdatedAt time.Time `bun:"last_updated_at,notnull,default:current_timestamp" json:"last_updated_at"`
}

func (ConcurrencyCounterModel) TableName() string { return "concurrency_counter" }
