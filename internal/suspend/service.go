package suspend

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/smilemakc/wmcore/internal/domain/flow"
	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/werr"
	"github.com/smilemakc/wmcore/internal/storage/models"
)

// Service is the durable half of the suspend/resume engine: recording
// approval/disapproval events and blocking a flow module until the
// module's SuspendConfig is satisfied (§4.5). It implements
// flowengine.SuspendGate without importing flowengine, the same interface
// decoupling used between worker and flowengine.
type Service struct {
	db          *bun.DB
	pollMin     time.Duration
	pollMax     time.Duration
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db, pollMin: 100 * time.Millisecond, pollMax: time.Second}
}

// NextResumeID returns the next resume_id to assign for a job, so a caller
// minting a new signed resume link knows which id to sign.
func (s *Service) NextResumeID(ctx context.Context, jobID uuid.UUID) (int32, error) {
	var max sql.NullInt32
	err := s.db.NewSelect().
		Model((*models.ResumeJobModel)(nil)).
		ColumnExpr("MAX(resume_id)").
		Where("job_id = ?", jobID).
		Scan(ctx, &max)
	if err != nil {
		return 0, werr.Wrap(werr.KindInternalErr, "next resume id", err)
	}
	if !max.Valid {
		return 1, nil
	}
	return max.Int32 + 1, nil
}

// InsertEvent records one approval or disapproval against a suspended
// module. Both the public signed-link endpoint and the authenticated owner
// endpoint call this after passing the same CanApprove check.
func (s *Service) InsertEvent(ctx context.Context, jobID uuid.UUID, resumeID int32, flowStepID string, approved bool, approver string, payload map[string]any) error {
	row := &models.ResumeJobModel{
		JobID:      jobID,
		ResumeID:   resumeID,
		FlowStepID: flowStepID,
		Approved:   approved,
		Approver:   approver,
		Payload:    models.JSONBMap(payload),
	}
	if _, err := s.db.NewInsert().Model(row).On("CONFLICT (job_id, resume_id) DO NOTHING").Exec(ctx); err != nil {
		return werr.Wrap(werr.KindInternalErr, "insert resume event", err)
	}
	return nil
}

func (s *Service) listEvents(ctx context.Context, jobID uuid.UUID, flowStepID string) ([]*models.ResumeJobModel, error) {
	var rows []*models.ResumeJobModel
	err := s.db.NewSelect().
		Model(&rows).
		Where("job_id = ? AND flow_step_id = ?", jobID, flowStepID).
		OrderExpr("resume_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Await blocks until mod's SuspendConfig has enough approvals, a
// disapproval arrives, or the suspend window times out (§4.5). It is a
// no-op for modules without a suspend block or a zero RequiredEvents.
func (s *Service) Await(ctx context.Context, j *job.Job, mod flow.Module, moduleResult any) (map[string]any, error) {
	cfg := mod.Suspend
	if cfg == nil || cfg.RequiredEvents <= 0 {
		return nil, nil
	}

	var deadline time.Time
	uq := s.db.NewUpdate().
		Model((*models.JobQueueModel)(nil)).
		Set("suspend = ?", cfg.RequiredEvents).
		Where("id = ?", j.ID)
	if cfg.TimeoutS > 0 {
		deadline = time.Now().Add(time.Duration(cfg.TimeoutS) * time.Second)
		uq = uq.Set("suspend_until = ?", deadline)
	}
	if _, err := uq.Exec(ctx); err != nil {
		return nil, werr.Wrap(werr.KindInternalErr, "mark job suspended", err)
	}

	interval := s.pollMin
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		events, err := s.listEvents(ctx, j.ID, mod.ID)
		if err != nil {
			return nil, werr.Wrap(werr.KindInternalErr, "poll resume events", err)
		}

		approved := int32(0)
		var lastPayload map[string]any
		for _, e := range events {
			if !e.Approved {
				return nil, werr.SuspendedDisapproved("flow step " + mod.ID + " disapproved by " + e.Approver)
			}
			approved++
			lastPayload = map[string]any(e.Payload)
		}

		if approved >= cfg.RequiredEvents {
			_ = s.clearSuspend(ctx, j.ID)
			return lastPayload, nil
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			_ = s.clearSuspend(ctx, j.ID)
			return nil, werr.New(werr.KindBadGateway, "suspend window for module "+mod.ID+" timed out before reaching "+"required approvals")
		}

		if interval < s.pollMax {
			interval *= 2
			if interval > s.pollMax {
				interval = s.pollMax
			}
		}
	}
}

func (s *Service) clearSuspend(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.db.NewUpdate().
		Model((*models.JobQueueModel)(nil)).
		Set("suspend = 0").
		Set("suspend_until = NULL").
		Where("id = ?", jobID).
		Exec(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return nil
}
