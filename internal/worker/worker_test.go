package worker

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/langhandler"
	"github.com/smilemakc/wmcore/internal/queue"
)

const workerSchemaDDL = `
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
CREATE TABLE job_logs (
	job_id uuid PRIMARY KEY,
	logs text NOT NULL DEFAULT '',
	log_offset bigint NOT NULL DEFAULT 0,
	updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE v2_job_result_stream (
	job_id uuid NOT NULL,
	chunk_offset bigint NOT NULL,
	chunk text NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (job_id, chunk_offset)
);
`

func setupWorkerTest(t *testing.T) (*bun.DB, *queue.Queue) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "wmcore_worker_test",
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

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/wmcore_worker_test?sslmode=disable", host, port.Port())
	time.Sleep(500 * time.Millisecond)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	_, err = db.ExecContext(ctx, workerSchemaDDL)
	require.NoError(t, err)

	return db, queue.New(db)
}

func sampleScriptJob(code string) *job.Job {
	return &job.Job{
		WorkspaceID: "ws1",
		Runnable: job.RunnableRef{
			Kind:       job.KindScript,
			ScriptLang: job.LanguageDeno,
			RawCode:    &code,
		},
		Caller: job.CallerIdentity{
			CreatedBy:           "u/alice",
			PermissionedAs:      "u/alice",
			PermissionedAsEmail: "alice@example.com",
		},
		Sched: job.Scheduling{Tag: "default"},
		Args:  map[string]any{"x": 1},
	}
}

func TestWorkerRunsScriptJobToSuccess(t *testing.T) {
	db, q := setupWorkerTest(t)
	ctx := context.Background()

	registry := langhandler.NewRegistry()
	require.NoError(t, registry.Register(string(job.LanguageDeno),
		langhandler.NewSubprocessHandler([]string{"sh", "-c", `echo '{"sum":2}'`}, 0, nil)))

	w, err := New(db, q, registry, nil, Config{
		Name:              "worker-test-1",
		Tags:              []string{"default"},
		ScratchDir:        t.TempDir(),
		PollInterval:      50 * time.Millisecond,
		HeartbeatInterval: time.Second,
		Capacity:          2,
	}, nil)
	require.NoError(t, err)

	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() { _ = w.Run(runCtx); close(done) }()

	j := sampleScriptJob("return 1+1")
	_, err = q.Push(ctx, j, queue.PushOptions{Level: queue.IsolatedRoot})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		exists, err := db.NewSelect().
			Table("v2_job_completed").
			Where("id = ? AND status = 'success'", j.ID).
			Exists(ctx)
		return err == nil && exists
	}, 8*time.Second, 100*time.Millisecond, "job should complete successfully")

	cancel()
	<-done
}

func TestWorkerCancelsRunningJob(t *testing.T) {
	db, q := setupWorkerTest(t)
	ctx := context.Background()

	registry := langhandler.NewRegistry()
	require.NoError(t, registry.Register(string(job.LanguageDeno),
		langhandler.NewSubprocessHandler([]string{"sh", "-c", `sleep 30`}, 0, nil)))

	w, err := New(db, q, registry, nil, Config{
		Name:               "worker-test-2",
		Tags:               []string{"default"},
		ScratchDir:         t.TempDir(),
		PollInterval:       50 * time.Millisecond,
		HeartbeatInterval:  time.Second,
		CancelPollInterval: 100 * time.Millisecond,
		Capacity:           1,
	}, nil)
	require.NoError(t, err)

	runCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() { _ = w.Run(runCtx); close(done) }()

	j := sampleScriptJob("sleep forever")
	_, err = q.Push(ctx, j, queue.PushOptions{Level: queue.IsolatedRoot})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		exists, err := db.NewSelect().Table("v2_job_queue").Where("id = ? AND running = true", j.ID).Exists(ctx)
		return err == nil && exists
	}, 5*time.Second, 100*time.Millisecond, "job should be picked up and running")

	_, err = db.NewUpdate().
		Table("v2_job_queue").
		Set("canceled_by = ?", "u/admin").
		Set("canceled_reason = ?", "stop it").
		Where("id = ?", j.ID).
		Exec(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var status string
		err := db.NewSelect().
			Table("v2_job_completed").
			Column("status").
			Where("id = ?", j.ID).
			Scan(ctx, &status)
		return err == nil && status == "canceled"
	}, 10*time.Second, 200*time.Millisecond, "job should be completed as canceled")

	cancel()
	<-done
}
