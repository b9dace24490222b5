// wmcore server - push API, suspend/resume, trigger ingress, and the
// process-wide scheduler/maintainer.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/wmcore/internal/api"
	"github.com/smilemakc/wmcore/internal/application/auth"
	"github.com/smilemakc/wmcore/internal/application/filestorage"
	"github.com/smilemakc/wmcore/internal/config"
	"github.com/smilemakc/wmcore/internal/domain/trigger"
	"github.com/smilemakc/wmcore/internal/infrastructure/api/rest"
	"github.com/smilemakc/wmcore/internal/infrastructure/logger"
	"github.com/smilemakc/wmcore/internal/queue"
	"github.com/smilemakc/wmcore/internal/scheduler"
	"github.com/smilemakc/wmcore/internal/storage"
	"github.com/smilemakc/wmcore/internal/suspend"
	"github.com/smilemakc/wmcore/internal/trigger/gcppubsub"
	"github.com/smilemakc/wmcore/internal/trigger/googlepush"
	"github.com/smilemakc/wmcore/internal/trigger/webhook"
	"github.com/smilemakc/wmcore/pkg/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)

	appLogger.Info("starting wmcore server", "port", cfg.Server.Port)

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
	triggerStore := scheduler.NewTriggerStore(db)

	jwtSvc := auth.NewJWTService(&cfg.Auth)
	authenticator := api.NewJWTAuthenticator(jwtSvc)
	workspaceKeys := api.NewDerivedWorkspaceKeys(cfg.Suspend.WorkspaceKeySecret)
	approvalPolicy := api.NewQueueApprovalPolicy(q)

	handlers := api.New(q, suspendSvc, workspaceKeys, authenticator, approvalPolicy, appLogger)

	fileStorageConfig := filestorage.DefaultManagerConfig()
	fileStorageConfig.BasePath = cfg.FileStorage.StoragePath
	fileStorageConfig.MaxFileSize = cfg.FileStorage.MaxFileSize
	fileStorageManager := filestorage.NewStorageManager(fileStorageConfig)
	if _, err := fileStorageManager.CreateStorage("default", &models.StorageConfig{
		Type:        models.StorageTypeLocal,
		BasePath:    cfg.FileStorage.StoragePath,
		MaxFileSize: cfg.FileStorage.MaxFileSize,
	}); err != nil {
		appLogger.Warn("failed to initialize default file storage", "error", err)
	}

	webhookHandler := webhook.New(newWebhookResolver(triggerStore), q, newFileStorageUploader(fileStorageManager))
	googlePushReceiver := googlepush.NewReceiver(q)

	googleCreds := loadGoogleCredentials(cfg.Google.CredentialsJSONPath)
	resources := newStaticResources(cfg.Database.URL, googleCreds)

	sched := scheduler.New(db, q, resources, scheduler.Config{
		ServerID:              schedulerServerID(cfg),
		Interval:              cfg.Scheduler.Interval,
		GooglePushCallbackURL: cfg.Scheduler.GooglePushCallbackURL,
	}, appLogger)

	if gin.Mode() == "" {
		if cfg.Logging.Level == "debug" {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
	}

	router := gin.New()
	router.Use(rest.NewRecoveryMiddleware(appLogger).Recovery())
	router.Use(rest.NewLoggingMiddleware(appLogger).RequestLogger())

	if cfg.Server.CORS {
		router.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
			c.Writer.Header().Set("Access-Control-Max-Age", "86400")
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
			c.Next()
		})
	}

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	apiV1 := router.Group("/api/v1")
	handlers.Register(apiV1)

	apiV1.POST("/w/:workspace/webhooks/:path", webhookHandler.HandleWebhook)

	apiV1.POST("/integrations/google_push", func(c *gin.Context) {
		channelID := c.GetHeader("X-Goog-Channel-Id")
		resourceState := c.GetHeader("X-Goog-Resource-State")
		if channelID == "" {
			c.Status(http.StatusBadRequest)
			return
		}
		rec, err := triggerStore.GetByExternalID(c.Request.Context(), channelID, trigger.FamilyGooglePush)
		if err != nil || rec == nil {
			c.Status(http.StatusNotFound)
			return
		}
		if err := googlePushReceiver.HandleNotification(c.Request.Context(), rec, resourceState, channelID, c.Request.Header); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})

	registerPubSubPushRoutes(context.Background(), router, triggerStore, q, appLogger)

	appLogger.Info("routes registered")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	schedCtx, schedCancel := context.WithCancel(context.Background())
	go func() {
		if err := sched.Run(schedCtx); err != nil && schedCtx.Err() == nil {
			appLogger.Error("scheduler exited with error", "error", err)
		}
	}()

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info("http server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		appLogger.Error("server error", "error", err)
		schedCancel()
		os.Exit(1)

	case sig := <-shutdown:
		appLogger.Info("shutdown initiated", "signal", sig)
		schedCancel()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := fileStorageManager.Close(); err != nil {
			appLogger.Error("file storage manager shutdown failed", "error", err)
		}

		if err := server.Shutdown(ctx); err != nil {
			appLogger.Error("graceful shutdown failed", "error", err)
			if err := server.Close(); err != nil {
				appLogger.Error("server close failed", "error", err)
			}
		}

		appLogger.Info("server stopped")
	}
}

func schedulerServerID(cfg *config.Config) string {
	if cfg.Scheduler.ServerID != "" {
		return cfg.Scheduler.ServerID
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "server-1"
	}
	return host
}

// registerPubSubPushRoutes mounts one push endpoint per enabled gcp_pubsub
// trigger configured in push mode, each bound to that trigger's own OIDC
// audience and record — the shape gcppubsub.NewPushHandler requires (§4.7).
// Pull-mode subscriptions are started by the scheduler's FamilyManager
// instead and need no HTTP route.
func registerPubSubPushRoutes(ctx context.Context, router *gin.Engine, store *scheduler.TriggerStore, q *queue.Queue, log *logger.Logger) {
	recs, err := store.ListEnabledByFamily(ctx, trigger.FamilyGCPPubSub)
	if err != nil {
		log.Error("failed to list gcp_pubsub triggers for push route registration", "error", err)
		return
	}
	for _, rec := range recs {
		var cfg trigger.GCPPubSubConfig
		if err := json.Unmarshal(rec.Config, &cfg); err != nil || cfg.Mode != "push" {
			continue
		}
		h, err := gcppubsub.NewPushHandler(ctx, cfg.PushAudience, rec, q)
		if err != nil {
			log.Error("failed to build gcp_pubsub push handler", "trigger_id", rec.ID, "error", err)
			continue
		}
		router.POST("/api/v1/integrations/gcp_pubsub/"+rec.ID.String(), gin.WrapH(h))
	}
}
