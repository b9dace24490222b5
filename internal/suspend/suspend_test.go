package suspend

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/smilemakc/wmcore/internal/domain/flow"
	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/werr"
)

func TestSignerRoundTripAndBitFlip(t *testing.T) {
	signer := NewSigner("ws-secret-key")
	jobID := uuid.New()

	sig := signer.Sign(jobID, 3)
	require.True(t, signer.Verify(jobID, 3, sig))

	require.False(t, signer.Verify(jobID, 4, sig), "signature must not verify for a different resume id")
	require.False(t, signer.Verify(uuid.New(), 3, sig), "signature must not verify for a different job id")

	flipped := []byte(sig)
	flipped[0] ^= 1
	require.False(t, signer.Verify(jobID, 3, string(flipped)), "flipping a single bit must invalidate the signature")
}

func TestCanApprove(t *testing.T) {
	disabled := &flow.SuspendConfig{SelfApprovalDisabled: true}
	disabledWithBypass := &flow.SuspendConfig{SelfApprovalDisabled: true, AdminBypass: true}
	enabled := &flow.SuspendConfig{}

	cases := []struct {
		name        string
		triggeredBy string
		approver    string
		isAdmin     bool
		cfg         *flow.SuspendConfig
		want        bool
	}{
		{"different approver always allowed", "u/alice", "u/bob", false, disabled, true},
		{"self approval allowed by default config", "u/alice", "u/alice", false, enabled, true},
		{"self approval blocked when disabled", "u/alice", "u/alice", false, disabled, false},
		{"self approval blocked for admin without bypass flag", "u/alice", "u/alice", true, disabled, false},
		{"self approval allowed for admin with bypass flag", "u/alice", "u/alice", true, disabledWithBypass, true},
		{"non-admin cannot use bypass", "u/alice", "u/alice", false, disabledWithBypass, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, CanApprove(c.triggeredBy, c.approver, c.isAdmin, c.cfg))
		})
	}
}

const suspendSchemaDDL = `
CREATE TABLE v2_job_queue (
	id uuid PRIMARY KEY,
	workspace_id text NOT NULL,
	kind text NOT NULL,
	runnable_id bigint,
	runnable_path text,
	script_lang text,
	raw_code text,
	raw_flow jsonb,
	created_by text NOT NULL,
	permissioned_as text NOT NULL,
	permissioned_as_email text NOT NULL,
	on_behalf_of_email text,
	token_prefix text,
	tag text NOT NULL,
	priority smallint NOT NULL DEFAULT 0,
	scheduled_for timestamptz NOT NULL DEFAULT now(),
	parent_job uuid,
	root_job uuid,
	flow_innermost_root_job uuid,
	flow_step_id text,
	flow_step int,
	trigger_kind text,
	trigger text,
	concurrent_limit int,
	concurrency_time_window_s int,
	cache_ttl int,
	timeout int,
	same_worker boolean NOT NULL DEFAULT false,
	visible_to_owner boolean NOT NULL DEFAULT true,
	labels text[],
	preprocessed boolean NOT NULL DEFAULT false,
	args jsonb NOT NULL DEFAULT '{}',
	running boolean NOT NULL DEFAULT false,
	started_at timestamptz,
	suspend int NOT NULL DEFAULT 0,
	suspend_until timestamptz,
	canceled_by text,
	canceled_reason text,
	worker text,
	extras jsonb,
	flow_status jsonb,
	flow_leaf_jobs jsonb,
	created_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE resume_job (
	job_id uuid NOT NULL,
	resume_id int NOT NULL,
	flow_step_id text NOT NULL,
	approved boolean NOT NULL,
	approver text,
	payload jsonb,
	created_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (job_id, resume_id)
);
`

func setupSuspendTest(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "wmcore_suspend_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/wmcore_suspend_test?sslmode=disable", host, port.Port())
	time.Sleep(500 * time.Millisecond)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	_, err = db.ExecContext(ctx, suspendSchemaDDL)
	require.NoError(t, err)
	return db
}

func insertQueueRow(t *testing.T, db *bun.DB, id uuid.UUID) {
	t.Helper()
	_, err := db.NewInsert().Model(&struct {
		ID                  uuid.UUID `bun:"id,type:uuid"`
		WorkspaceID         string    `bun:"workspace_id"`
		Kind                string    `bun:"kind"`
		CreatedBy           string    `bun:"created_by"`
		PermissionedAs      string    `bun:"permissioned_as"`
		PermissionedAsEmail string    `bun:"permissioned_as_email"`
		Tag                 string    `bun:"tag"`
	}{
		ID: id, WorkspaceID: "ws1", Kind: "flow",
		CreatedBy: "u/alice", PermissionedAs: "u/alice", PermissionedAsEmail: "alice@example.com",
		Tag: "default",
	}).Table("v2_job_queue").Exec(context.Background())
	require.NoError(t, err)
}

func TestServiceAwaitResolvesOnEnoughApprovals(t *testing.T) {
	db := setupSuspendTest(t)
	svc := NewService(db)

	id := uuid.New()
	insertQueueRow(t, db, id)

	j := &job.Job{ID: id}
	mod := flow.Module{ID: "approve-step", Suspend: &flow.SuspendConfig{RequiredEvents: 2}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan struct{})
	var payload map[string]any
	var awaitErr error
	go func() {
		payload, awaitErr = svc.Await(ctx, j, mod, nil)
		close(done)
	}()

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, svc.InsertEvent(ctx, id, 1, "approve-step", true, "u/bob", map[string]any{"note": "lgtm"}))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, svc.InsertEvent(ctx, id, 2, "approve-step", true, "u/carol", map[string]any{"note": "ship it"}))

	<-done
	require.NoError(t, awaitErr)
	require.Equal(t, "ship it", payload["note"])
}

func TestServiceAwaitFailsOnDisapproval(t *testing.T) {
	db := setupSuspendTest(t)
	svc := NewService(db)

	id := uuid.New()
	insertQueueRow(t, db, id)

	j := &job.Job{ID: id}
	mod := flow.Module{ID: "approve-step", Suspend: &flow.SuspendConfig{RequiredEvents: 1}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan struct{})
	var awaitErr error
	go func() {
		_, awaitErr = svc.Await(ctx, j, mod, nil)
		close(done)
	}()

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, svc.InsertEvent(ctx, id, 1, "approve-step", false, "u/bob", nil))

	<-done
	require.Error(t, awaitErr)
	require.Equal(t, werr.KindSuspendedDisapproved, werr.KindOf(awaitErr))
}
