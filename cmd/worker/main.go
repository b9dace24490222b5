// wmcore worker - polls the durable job queue and executes leased jobs.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/smilemakc/wmcore/internal/agent"
	"github.com/smilemakc/wmcore/internal/config"
	"github.com/smilemakc/wmcore/internal/domain/flow"
	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/flowengine"
	"github.com/smilemakc/wmcore/internal/infrastructure/logger"
	"github.com/smilemakc/wmcore/internal/langhandler"
	"github.com/smilemakc/wmcore/internal/queue"
	"github.com/smilemakc/wmcore/internal/storage"
	"github.com/smilemakc/wmcore/internal/suspend"
	"github.com/smilemakc/wmcore/internal/worker"
)

// agentRunnerProxy breaks the construction cycle between flowengine.Interpreter
// (needs an AgentRunner) and agent.Runner (needs a JobRunner, which Interpreter
// implements): it is built empty, handed to flowengine.New, then pointed at the
// real *agent.Runner once that is itself built from the Interpreter.
type agentRunnerProxy struct {
	runner *agent.Runner
}

func (p *agentRunnerProxy) Run(ctx context.Context, cfg *flow.AIAgentConfig, args map[string]any, parent *job.Job, logs langhandler.LogSink) (map[string]any, error) {
	return p.runner.Run(ctx, cfg, args, parent, logs)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)

	appLogger.Info("starting wmcore worker", "name", cfg.Worker.Name, "capacity", cfg.Worker.Capacity)

	db, err := storage.Open(storage.Config{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MinConnections,
		ConnMaxLifetime: cfg.Database.MaxConnLifetime,
		Debug:           cfg.Logging.Level == "debug",
	})
	if err != nil {
		appLogger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	q := queue.New(db)
	suspendSvc := suspend.NewService(db)

	langs := langhandler.NewRegistry()
	errDump := langhandler.NewErrorDump(cfg.Worker.ScratchDir, 50)
	mustRegister(langs, "python3", langhandler.NewSubprocessHandler([]string{"python3"}, 0, errDump), appLogger)
	mustRegister(langs, "bash", langhandler.NewSubprocessHandler([]string{"bash"}, 0, errDump), appLogger)
	mustRegister(langs, "deno", langhandler.NewSubprocessHandler([]string{"deno", "run", "--allow-all"}, 0, errDump), appLogger)
	mustRegister(langs, "nodejs", langhandler.NewSubprocessHandler([]string{"node"}, 0, errDump), appLogger)
	mustRegister(langs, "go", langhandler.NewSubprocessHandler([]string{"go", "run"}, 0, errDump), appLogger)

	proxy := &agentRunnerProxy{}
	interp := flowengine.New(db, q, proxy, suspendSvc, flowengine.Config{})

	agentRunner := agent.NewRunner(interp)
	if openAIKey := os.Getenv("WMCORE_OPENAI_API_KEY"); openAIKey != "" {
		agentRunner.RegisterProvider("openai", agent.NewOpenAIChatProvider(openAIKey, os.Getenv("WMCORE_OPENAI_BASE_URL")))
	}
	proxy.runner = agentRunner

	workerCfg := worker.Config{
		Name:               cfg.Worker.Name,
		Tags:               cfg.Worker.Tags,
		ScratchDir:         cfg.Worker.ScratchDir,
		PollInterval:       cfg.Worker.PollInterval,
		HeartbeatInterval:  cfg.Worker.HeartbeatInterval,
		CancelPollInterval: cfg.Worker.CancelPollInterval,
		Capacity:           cfg.Worker.Capacity,
	}
	w, err := worker.New(db, q, langs, interp, workerCfg, appLogger)
	if err != nil {
		appLogger.Error("failed to build worker", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		appLogger.Error("worker loop exited with error", "error", err)
		os.Exit(1)
	}

	appLogger.Info("worker stopped")
}

func mustRegister(reg *langhandler.Registry, name string, h langhandler.Handler, log *logger.Logger) {
	if err := reg.Register(name, h); err != nil {
		log.Error("failed to register language handler", "language", name, "error", err)
		os.Exit(1)
	}
}
