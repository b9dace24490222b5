// Package scheduler implements the process-wide maintainer (§4.8): cron
// job re-push, per-trigger-family listener leasing and renewal, and zombie
// recovery. It generalizes the teacher's
// internal/application/trigger/cron_scheduler.go from "run a workflow on a
// schedule" to "ensure exactly one future queued job exists per enabled
// schedule", and grounds the trigger-family lease on that same file's
// Redis-backed TriggerState, adapted here to a Postgres row lease.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/smilemakc/wmcore/internal/domain/trigger"
	"github.com/smilemakc/wmcore/internal/storage/models"
)

// TriggerStore is the scheduler's read/write access to the polymorphic
// trigger table: listing candidates per family and running the lease and
// ping updates the maintainer loop depends on.
type TriggerStore struct {
	db *bun.DB
}

func NewTriggerStore(db *bun.DB) *TriggerStore {
	return &TriggerStore{db: db}
}

// ListEnabledByFamily returns every enabled trigger row for one family,
// across all workspaces.
func (s *TriggerStore) ListEnabledByFamily(ctx context.Context, family trigger.Family) ([]*trigger.Record, error) {
	var rows []*models.TriggerModel
	err := s.db.NewSelect().
		Model(&rows).
		Where("family = ? AND enabled = true", string(family)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*trigger.Record, len(rows))
	for i, r := range rows {
		out[i] = models.TriggerToDomain(r)
	}
	return out, nil
}

// AcquireLease attempts to claim trigger id for serverID, succeeding only if
// no instance holds a live lease (last_server_ping within staleness) or this
// serverID already holds it. This is the distributed-lease UPDATE of §4.8c:
// only the winning instance should start or keep running that trigger's
// listener.
func (s *TriggerStore) AcquireLease(ctx context.Context, id uuid.UUID, serverID string, staleness time.Duration) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*models.TriggerModel)(nil)).
		Set("server_id = ?", serverID).
		Set("last_server_ping = now()").
		Where("id = ?", id).
		Where("(server_id = ? OR server_id IS NULL OR server_id = '' OR last_server_ping IS NULL OR last_server_ping < now() - ?::interval)",
			serverID, staleness.String()).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseLease clears server_id so another instance can pick the trigger up
// immediately rather than waiting out the staleness window, used when a
// listener exits voluntarily (trigger disabled, config changed).
func (s *TriggerStore) ReleaseLease(ctx context.Context, id uuid.UUID, serverID string) error {
	_, err := s.db.NewUpdate().
		Model((*models.TriggerModel)(nil)).
		Set("server_id = ''").
		Where("id = ? AND server_id = ?", id, serverID).
		Exec(ctx)
	return err
}

// MarkError records a maintain()/listener failure on the trigger row without
// disabling it, so repeated breakage is visible without crashing the loop.
func (s *TriggerStore) MarkError(ctx context.Context, id uuid.UUID, message string) error {
	_, err := s.db.NewUpdate().
		Model((*models.TriggerModel)(nil)).
		Set("error_count = error_count + 1").
		Set("last_error = ?", message).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// MarkPing resets the error counter and stamps last_server_ping on a
// successful maintain() pass, independent of lease acquisition (used for
// triggers, like Google push renewal, that don't hold a listener lease).
func (s *TriggerStore) MarkPing(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.NewUpdate().
		Model((*models.TriggerModel)(nil)).
		Set("last_server_ping = now()").
		Set("error_count = 0").
		Set("last_error = ''").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// UpdateExternalID persists the family-specific stable identifier (Google
// push channel id, replication slot name) after it changes, e.g. on renewal.
func (s *TriggerStore) UpdateExternalID(ctx context.Context, id uuid.UUID, externalID string) error {
	_, err := s.db.NewUpdate().
		Model((*models.TriggerModel)(nil)).
		Set("external_id = ?", externalID).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// UpdateConfig overwrites a trigger's opaque config blob, used by the
// Google push renewal path to persist a new resource_id/expires_at.
func (s *TriggerStore) UpdateConfig(ctx context.Context, id uuid.UUID, cfg models.JSONBMap) error {
	_, err := s.db.NewUpdate().
		Model((*models.TriggerModel)(nil)).
		Set("config = ?", cfg).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// GetByPath fetches the enabled trigger for one workspace/path/family,
// the lookup the webhook and websocket ingress handlers need to resolve an
// inbound request to its target runnable.
func (s *TriggerStore) GetByPath(ctx context.Context, workspaceID, path string, family trigger.Family) (*trigger.Record, error) {
	row := new(models.TriggerModel)
	err := s.db.NewSelect().
		Model(row).
		Where("workspace_id = ? AND path = ? AND family = ? AND enabled = true", workspaceID, path, string(family)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return models.TriggerToDomain(row), nil
}

// GetByExternalID fetches the trigger owning a family-specific stable
// identifier (Google push channel id, Pub/Sub subscription name) — the
// lookup a push-mode HTTP callback needs to route a notification back to
// its trigger.
func (s *TriggerStore) GetByExternalID(ctx context.Context, externalID string, family trigger.Family) (*trigger.Record, error) {
	row := new(models.TriggerModel)
	err := s.db.NewSelect().
		Model(row).
		Where("external_id = ? AND family = ?", externalID, string(family)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return models.TriggerToDomain(row), nil
}

// Get fetches a single trigger row by id.
func (s *TriggerStore) Get(ctx context.Context, id uuid.UUID) (*trigger.Record, error) {
	row := new(models.TriggerModel)
	err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return models.TriggerToDomain(row), nil
}
