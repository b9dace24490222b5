package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// JobLogsModel is the job_logs row a worker appends to as a job's handler
// writes stdout/stderr lines (§4.2 step 4). One row per job; new output is
// appended to Logs and Offset advanced so readers can tail from a cursor.
type JobLogsModel struct {
	bun.BaseModel `bun:"table:job_logs,alias:jl"`

	JobID     uuid.UUID `bun:"job_id,pk,type:uuid" json:"job_id"`
	Logs      string    `bun:"logs,notnull,default:''" json:"logs"`
	Offset    int64     `bun:"log_offset,notnull,default:0" json:"offset"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

func (JobLogsModel) TableName() string { return "job_logs" }

// JobResultStreamModel is one ordered chunk of a job's streamed result
// (§4.2 step 5), parsed from WM_STREAM:-prefixed handler output lines.
type JobResultStreamModel struct {
	bun.BaseModel `bun:"table:v2_job_result_stream,alias:rs"`

	JobID     uuid.UUID `bun:"job_id,pk,type:uuid" json:"job_id"`
	Offset    int64     `bun:"chunk_offset,pk" json:"offset"`
	Chunk     string    `bun:"chunk,notnull" json:"chunk"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

func (JobResultStreamModel) TableName() string { return "v2_job_result_stream" }
