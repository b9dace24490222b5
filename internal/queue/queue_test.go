package queue

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

	"github.com/smilemakc/wmcore/internal/domain/job"
)

const schemaDDL = `
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
CREATE TABLE v2_job_runtime (
	job_id uuid PRIMARY KEY,
	ping timestamptz,
	memory_peak int
);
CREATE TABLE v2_job_status (
	job_id uuid PRIMARY KEY,
	step int NOT NULL DEFAULT 0,
	total_modules int NOT NULL DEFAULT 0,
	updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE v2_job_completed (
	id uuid PRIMARY KEY,
	workspace_id text NOT NULL,
	kind text NOT NULL,
	runnable_id bigint,
	runnable_path text,
	created_by text NOT NULL,
	permissioned_as text NOT NULL,
	tag text NOT NULL,
	parent_job uuid,
	root_job uuid,
	status text NOT NULL,
	result jsonb,
	result_columns text[],
	duration_ms bigint NOT NULL DEFAULT 0,
	started_at timestamptz NOT NULL,
	completed_at timestamptz NOT NULL DEFAULT now(),
	retries jsonb,
	flow_status jsonb,
	worker text,
	extras jsonb
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
CREATE TABLE concurrency_key (
	job_id uuid PRIMARY KEY,
	key text NOT NULL
);
CREATE TABLE concurrency_counter (
	key text PRIMARY KEY,
	job_uuids jsonb NOT NULL DEFAULT '{}',
	last_updated_at timestamptz NOT NULL DEFAULT now()
);
`

func setupQueueTest(t *testing.T) (*Queue, *bun.DB) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "wmcore_test",
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

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/wmcore_test?sslmode=disable", host, port.Port())
	time.Sleep(500 * time.Millisecond)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	_, err = db.ExecContext(ctx, schemaDDL)
	require.NoError(t, err)

	return New(db), db
}

func sampleJob(tag string) *job.Job {
	return &job.Job{
		WorkspaceID: "ws1",
		Runnable: job.RunnableRef{
			Kind:       job.KindScript,
			ScriptLang: job.LanguageDeno,
		},
		Caller: job.CallerIdentity{
			CreatedBy:           "u/alice",
			PermissionedAs:      "u/alice",
			PermissionedAsEmail: "alice@example.com",
		},
		Sched: job.Scheduling{Tag: tag},
		Args:  map[string]any{"x": 1},
	}
}

func TestPushAndLeaseOrdering(t *testing.T) {
	q, _ := setupQueueTest(t)
	ctx := context.Background()

	low := sampleJob("default")
	low.Sched.Priority = 0
	high := sampleJob("default")
	high.Sched.Priority = 10

	_, err := q.Push(ctx, low, PushOptions{Level: IsolatedRoot})
	require.NoError(t, err)
	_, err = q.Push(ctx, high, PushOptions{Level: IsolatedRoot})
	require.NoError(t, err)

	leased, err := q.LeaseOne(ctx, "worker-1", []string{"default"})
	require.NoError(t, err)
	require.NotNil(t, leased)
	require.Equal(t, high.ID, leased.ID, "higher priority job must lease first")
	require.True(t, leased.Running)
	require.NotNil(t, leased.Worker)
	require.Equal(t, "worker-1", *leased.Worker)
}

func TestLeaseRespectsTagFilter(t *testing.T) {
	q, _ := setupQueueTest(t)
	ctx := context.Background()

	j := sampleJob("reports")
	_, err := q.Push(ctx, j, PushOptions{Level: IsolatedRoot})
	require.NoError(t, err)

	leased, err := q.LeaseOne(ctx, "worker-1", []string{"default"})
	require.NoError(t, err)
	require.Nil(t, leased, "job tagged 'reports' must not lease for a 'default'-only worker")

	leased, err = q.LeaseOne(ctx, "worker-1", []string{"reports"})
	require.NoError(t, err)
	require.NotNil(t, leased)
}

func TestHeartbeatUpdatesPing(t *testing.T) {
	q, db := setupQueueTest(t)
	ctx := context.Background()

	j := sampleJob("default")
	_, err := q.Push(ctx, j, PushOptions{Level: IsolatedRoot})
	require.NoError(t, err)

	peak := int32(4096)
	require.NoError(t, q.Heartbeat(ctx, j.ID, &peak))

	var ping sql.NullTime
	var memPeak sql.NullInt32
	err = db.NewSelect().
		Table("v2_job_runtime").
		Column("ping", "memory_peak").
		Where("job_id = ?", j.ID).
		Scan(ctx, &ping, &memPeak)
	require.NoError(t, err)
	require.True(t, ping.Valid)
	require.True(t, memPeak.Valid)
	require.Equal(t, int32(4096), memPeak.Int32)
}

func TestCompleteMovesJobOutOfQueue(t *testing.T) {
	q, db := setupQueueTest(t)
	ctx := context.Background()

	j := sampleJob("default")
	_, err := q.Push(ctx, j, PushOptions{Level: IsolatedRoot})
	require.NoError(t, err)

	err = q.Complete(ctx, j.ID, CompleteInput{
		Status:     job.StatusSuccess,
		Result:     map[string]any{"ok": true},
		DurationMs: 42,
	})
	require.NoError(t, err)

	exists, err := db.NewSelect().Table("v2_job_queue").Where("id = ?", j.ID).Exists(ctx)
	require.NoError(t, err)
	require.False(t, exists, "completed job must be removed from v2_job_queue")

	exists, err = db.NewSelect().Table("v2_job_completed").Where("id = ?", j.ID).Exists(ctx)
	require.NoError(t, err)
	require.True(t, exists, "completed job must appear in v2_job_completed")
}

func TestCancelTrivialSkipsRunningAndChildJobs(t *testing.T) {
	q, _ := setupQueueTest(t)
	ctx := context.Background()

	queued := sampleJob("default")
	_, err := q.Push(ctx, queued, PushOptions{Level: IsolatedRoot})
	require.NoError(t, err)

	running := sampleJob("default")
	_, err = q.Push(ctx, running, PushOptions{Level: IsolatedRoot})
	require.NoError(t, err)
	_, err = q.LeaseOne(ctx, "worker-1", []string{"default"})
	require.NoError(t, err)

	n, err := q.CancelTrivial(ctx, []uuid.UUID{queued.ID, running.ID}, "u/admin", "cancel all")
	require.NoError(t, err)
	require.Equal(t, 1, n, "only the queued, non-running job should be trivially cancelable")
}

func TestDeleteRemovesFromEveryTable(t *testing.T) {
	q, db := setupQueueTest(t)
	ctx := context.Background()

	j := sampleJob("default")
	_, err := q.Push(ctx, j, PushOptions{Level: IsolatedRoot})
	require.NoError(t, err)

	require.NoError(t, q.Delete(ctx, []uuid.UUID{j.ID}))

	for _, table := range []string{"v2_job_queue", "v2_job_runtime"} {
		exists, err := db.NewSelect().Table(table).Where("job_id = ? OR id = ?", j.ID, j.ID).Exists(ctx)
		require.NoError(t, err)
		require.False(t, exists, "table %s should have no rows for deleted job", table)
	}
}
