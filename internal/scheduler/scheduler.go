package scheduler

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/smilemakc/wmcore/internal/domain/trigger"
	"github.com/smilemakc/wmcore/internal/infrastructure/logger"
	"github.com/smilemakc/wmcore/internal/queue"
)

// leaseStaleness is how long a trigger's server_id lease survives without a
// renewing maintain() pass before another instance may take it over (§4.8c,
// §5's "last_server_ping < now()-15s").
const leaseStaleness = 15 * time.Second

// Config configures one maintainer instance.
type Config struct {
	// ServerID identifies this instance in the trigger lease (§4.8c). Must
	// be stable for the process lifetime and unique per running instance.
	ServerID string
	// Interval is how often the full maintain() pass runs. Defaults to 15s,
	// matching the lease staleness window.
	Interval time.Duration
	// GooglePushCallbackURL is the public URL Google POSTs channel
	// notifications to.
	GooglePushCallbackURL string
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = leaseStaleness
	}
}

// Scheduler is the process-wide maintainer of §4.8: on each tick it ensures
// a future job exists per enabled cron schedule, leases and runs the
// postgres/websocket/gcp_pubsub listeners this instance currently owns,
// renews Google push channels nearing expiry, and sweeps zombie jobs.
type Scheduler struct {
	cfg Config
	log *logger.Logger

	store    *TriggerStore
	repusher *Repusher
	families *FamilyManager
	google   *GooglePushMaintainer
	zombies  *ZombieSweeper
}

// New builds a Scheduler. res resolves the external credentials the
// postgres/websocket/gcp_pubsub/google_push families need; it may be nil if
// none of those families are in use, in which case maintain() calls into
// Resources panic — wire a real implementation before enabling them.
func New(db *bun.DB, q *queue.Queue, res Resources, cfg Config, log *logger.Logger) *Scheduler {
	cfg.setDefaults()
	if log == nil {
		log = logger.Default()
	}
	store := NewTriggerStore(db)
	return &Scheduler{
		cfg:      cfg,
		log:      log,
		store:    store,
		repusher: NewRepusher(db, q),
		families: NewFamilyManager(cfg.ServerID, leaseStaleness, store, q, res, log),
		google:   NewGooglePushMaintainer(store, res, cfg.GooglePushCallbackURL, log),
		zombies:  NewZombieSweeper(db, q),
	}
}

// Run blocks, running one maintain() pass immediately and then every
// cfg.Interval, until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.maintain(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.families.Stop()
			return ctx.Err()
		case <-ticker.C:
			s.maintain(ctx)
		}
	}
}

// maintain runs every §4.8 step in sequence. Each step logs and continues on
// its own failures rather than aborting the whole pass (§7: maintainer
// errors surface on the trigger row, they never crash the loop).
func (s *Scheduler) maintain(ctx context.Context) {
	s.maintainCron(ctx)
	s.families.Maintain(ctx)
	s.google.Maintain(ctx)

	n, err := s.zombies.Sweep(ctx)
	if err != nil {
		s.log.Error("zombie sweep", "error", err)
	} else if n > 0 {
		s.log.Info("reclaimed zombie jobs", "count", n)
	}
}

func (s *Scheduler) maintainCron(ctx context.Context) {
	recs, err := s.store.ListEnabledByFamily(ctx, trigger.FamilySchedule)
	if err != nil {
		s.log.Error("list schedule triggers", "error", err)
		return
	}
	for _, rec := range recs {
		if err := s.repusher.EnsureNextJob(ctx, rec); err != nil {
			_ = s.store.MarkError(ctx, rec.ID, err.Error())
			s.log.Error("ensure next scheduled job", "trigger_id", rec.ID, "error", err)
			continue
		}
		_ = s.store.MarkPing(ctx, rec.ID)
	}
}

// NotifyCompletion lets the worker push the next schedule occurrence right
// away after a schedule-triggered job finishes (§4.8b), instead of waiting
// for the next maintain() tick.
func (s *Scheduler) NotifyCompletion(ctx context.Context, workspaceID, triggerPath string) {
	if err := s.repusher.OnCompletion(ctx, s.store, workspaceID, triggerPath); err != nil {
		s.log.Error("repush after schedule completion", "workspace_id", workspaceID, "trigger", triggerPath, "error", err)
	}
}
