package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/smilemakc/wmcore/internal/storage/models"
)

// dbLogSink appends log lines to job_logs.logs, advancing offset, matching
// the append-with-offset contract of §4.2 step 4.
type dbLogSink struct {
	db    *bun.DB
	jobID uuid.UUID
	mu    sync.Mutex
}

func newDBLogSink(db *bun.DB, jobID uuid.UUID) *dbLogSink {
	return &dbLogSink{db: db, jobID: jobID}
}

func (s *dbLogSink) Write(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	row := &models.JobLogsModel{
		JobID:     s.jobID,
		Logs:      line + "\n",
		Offset:    int64(len(line) + 1),
		UpdatedAt: time.Now(),
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (job_id) DO UPDATE").
		Set("logs = job_logs.logs || EXCLUDED.logs").
		Set("log_offset = job_logs.log_offset + EXCLUDED.log_offset").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	_ = err // best-effort: a dropped log line must never fail the job
}

// dbStreamSink persists ordered WM_STREAM: chunks to v2_job_result_stream
// with a monotonically increasing offset per job (§4.2 step 5).
type dbStreamSink struct {
	db     *bun.DB
	jobID  uuid.UUID
	mu     sync.Mutex
	offset int64
}

func newDBStreamSink(db *bun.DB, jobID uuid.UUID) *dbStreamSink {
	return &dbStreamSink{db: db, jobID: jobID}
}

func (s *dbStreamSink) Emit(chunk []byte) {
	s.mu.Lock()
	offset := s.offset
	s.offset++
	s.mu.Unlock()

	ctx := context.Background()
	row := &models.JobResultStreamModel{
		JobID:     s.jobID,
		Offset:    offset,
		Chunk:     string(chunk),
		CreatedAt: time.Now(),
	}
	_, err := s.db.NewInsert().Model(row).Exec(ctx)
	_ = err
}
