package flowengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/smilemakc/wmcore/internal/domain/flow"
	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/langhandler"
	"github.com/smilemakc/wmcore/internal/queue"
	"github.com/smilemakc/wmcore/internal/worker"
)

const flowengineSchemaDDL = `
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

type testLog struct{ t *testing.T }

func (l testLog) Write(line string) { l.t.Logf("flow log: %s", line) }

func setupFlowengineTest(t *testing.T) (*bun.DB, *queue.Queue) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "wmcore_flowengine_test",
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

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/wmcore_flowengine_test?sslmode=disable", host, port.Port())
	time.Sleep(500 * time.Millisecond)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	_, err = db.ExecContext(ctx, flowengineSchemaDDL)
	require.NoError(t, err)

	return db, queue.New(db)
}

// startEchoWorker runs a worker whose single registered language handler
// echoes back the job's args.json verbatim as its result, letting a test
// assert exactly which arguments the interpreter resolved for a child job.
func startEchoWorker(t *testing.T, db *bun.DB, q *queue.Queue) {
	t.Helper()
	registry := langhandler.NewRegistry()
	require.NoError(t, registry.Register("deno",
		langhandler.NewSubprocessHandler([]string{"sh", "-c", `cat "$1"`}, 0, nil)))

	w, err := worker.New(db, q, registry, nil, worker.Config{
		Name:              "flowengine-test-worker",
		Tags:              []string{"default"},
		ScratchDir:        t.TempDir(),
		PollInterval:      30 * time.Millisecond,
		HeartbeatInterval: time.Second,
		Capacity:          8,
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = w.Run(ctx); close(done) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func staticTransform(t *testing.T, v any) flow.InputTransform {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return flow.InputTransform{Kind: flow.TransformStatic, Value: raw}
}

func jsTransform(expr string) flow.InputTransform {
	return flow.InputTransform{Kind: flow.TransformJavascript, Expr: expr}
}

func flowJob(t *testing.T, def flow.Value, args map[string]any) *job.Job {
	t.Helper()
	raw, err := json.Marshal(def)
	require.NoError(t, err)
	return &job.Job{
		WorkspaceID: "ws1",
		Runnable: job.RunnableRef{
			Kind:    job.KindFlow,
			RawFlow: raw,
		},
		Caller: job.CallerIdentity{
			CreatedBy:           "u/alice",
			PermissionedAs:      "u/alice",
			PermissionedAsEmail: "alice@example.com",
		},
		Sched: job.Scheduling{Tag: "default"},
		Args:  args,
	}
}

func TestInterpreterForloopAggregatesResults(t *testing.T) {
	db, q := setupFlowengineTest(t)
	startEchoWorker(t, db, q)

	def := flow.Value{
		Modules: []flow.Module{
			{
				ID: "loop",
				Value: flow.ModuleValue{
					Kind:     flow.ModuleForloop,
					Iterator: ptrTransform(jsTransform("flow_input.items")),
					Modules: []flow.Module{
						{
							ID: "double",
							Value: flow.ModuleValue{
								Kind:     flow.ModuleRawScript,
								Language: "deno",
								Content:  "ignored",
							},
							InputTransforms: map[string]flow.InputTransform{
								"value": jsTransform("iter.value"),
							},
						},
					},
				},
			},
		},
	}

	interp := New(db, q, nil, nil, Config{})
	j := flowJob(t, def, map[string]any{"items": []any{float64(1), float64(2), float64(3)}})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	result, err := interp.Run(ctx, j, testLog{t})
	require.NoError(t, err)

	list, ok := result["result"].([]any)
	require.True(t, ok, "expected forloop result to be a list, got %#v", result)
	require.Len(t, list, 3)
	for i, item := range list {
		m, ok := item.(map[string]any)
		require.True(t, ok)
		require.Equal(t, float64(i+1), m["value"])
	}
}

func TestInterpreterBranchOnePicksDefaultWhenNoMatch(t *testing.T) {
	db, q := setupFlowengineTest(t)
	startEchoWorker(t, db, q)

	def := flow.Value{
		Modules: []flow.Module{
			{
				ID: "choose",
				Value: flow.ModuleValue{
					Kind: flow.ModuleBranchOne,
					Branches: []flow.Branch{
						{
							Expr: "flow_input.x > 10",
							Modules: []flow.Module{{
								ID: "big",
								Value: flow.ModuleValue{Kind: flow.ModuleRawScript, Language: "deno", Content: "ignored"},
								InputTransforms: map[string]flow.InputTransform{
									"pick": staticTransform(t, "big"),
								},
							}},
						},
					},
					Default: []flow.Module{{
						ID: "small",
						Value: flow.ModuleValue{Kind: flow.ModuleRawScript, Language: "deno", Content: "ignored"},
						InputTransforms: map[string]flow.InputTransform{
							"pick": staticTransform(t, "small"),
						},
					}},
				},
			},
		},
	}

	interp := New(db, q, nil, nil, Config{})
	j := flowJob(t, def, map[string]any{"x": float64(5)})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	result, err := interp.Run(ctx, j, testLog{t})
	require.NoError(t, err)
	require.Equal(t, "small", result["pick"])
}

func TestInterpreterContinueOnErrorKeepsFlowGoing(t *testing.T) {
	db, q := setupFlowengineTest(t)
	startEchoWorker(t, db, q)

	def := flow.Value{
		Modules: []flow.Module{
			{
				ID:   "bad",
				Value: flow.ModuleValue{Kind: flow.ModuleScript, Path: "f/missing"},
				ContinueOnError: true,
			},
			{
				ID: "after",
				Value: flow.ModuleValue{Kind: flow.ModuleRawScript, Language: "deno", Content: "ignored"},
				InputTransforms: map[string]flow.InputTransform{
					"ok": staticTransform(t, true),
				},
			},
		},
	}

	interp := New(db, q, nil, nil, Config{})
	j := flowJob(t, def, map[string]any{})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	result, err := interp.Run(ctx, j, testLog{t})
	require.NoError(t, err)
	require.Equal(t, true, result["ok"])
}

func ptrTransform(t flow.InputTransform) *flow.InputTransform { return &t }
