package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/trigger"
	"github.com/smilemakc/wmcore/internal/infrastructure/logger"
	"github.com/smilemakc/wmcore/internal/queue"
	"github.com/smilemakc/wmcore/internal/trigger/gcppubsub"
	"github.com/smilemakc/wmcore/internal/trigger/pgtrigger"
	"github.com/smilemakc/wmcore/internal/trigger/wstrigger"
)

// Resources resolves the external credentials and connection strings the
// postgres, websocket and gcp_pubsub listeners need to run. Resource/secret
// storage is a workspace-scoped concern out of scope here (§1), the same
// narrow-seam shape as webhook.Resolver and api.WorkspaceKeys.
type Resources interface {
	PostgresConnString(ctx context.Context, rec *trigger.Record, cfg trigger.PostgresConfig) (string, error)
	GoogleCredentialsJSON(ctx context.Context, workspaceID string) ([]byte, error)
}

// leaseRunner is the shape every long-running family listener presents to
// the manager once wrapped: block until ctx is canceled or the connection
// fails.
type leaseRunner func(ctx context.Context) error

// listenerSet owns the lifecycle of every currently-running family listener
// goroutine, keyed by trigger id, so the manager loop can diff "should be
// running" against "is running" on each maintain() pass without leaking
// goroutines or double-starting a listener.
type listenerSet struct {
	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

func newListenerSet() *listenerSet {
	return &listenerSet{cancels: make(map[uuid.UUID]context.CancelFunc)}
}

func (ls *listenerSet) running(id uuid.UUID) bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	_, ok := ls.cancels[id]
	return ok
}

func (ls *listenerSet) start(parent context.Context, id uuid.UUID, run leaseRunner, log *logger.Logger) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if _, ok := ls.cancels[id]; ok {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	ls.cancels[id] = cancel
	go func() {
		if err := run(ctx); err != nil && ctx.Err() == nil {
			log.Error("trigger listener exited", "trigger_id", id, "error", err)
		}
		ls.mu.Lock()
		delete(ls.cancels, id)
		ls.mu.Unlock()
	}()
}

func (ls *listenerSet) stop(id uuid.UUID) {
	ls.mu.Lock()
	cancel, ok := ls.cancels[id]
	delete(ls.cancels, id)
	ls.mu.Unlock()
	if ok {
		cancel()
	}
}

func (ls *listenerSet) stopAll() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for id, cancel := range ls.cancels {
		cancel()
		delete(ls.cancels, id)
	}
}

func (ls *listenerSet) ids() map[uuid.UUID]struct{} {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	out := make(map[uuid.UUID]struct{}, len(ls.cancels))
	for id := range ls.cancels {
		out[id] = struct{}{}
	}
	return out
}

// FamilyManager runs the §4.8c lease loop for the three trigger families
// that need a long-lived listener goroutine (postgres, websocket,
// gcp_pubsub pull mode): acquire or renew the Postgres row lease for every
// enabled row, start a listener for whichever ones this instance just won,
// and stop any it no longer holds (disabled, or lease lost to another
// instance).
type FamilyManager struct {
	serverID  string
	staleness time.Duration

	store *TriggerStore
	queue *queue.Queue
	res   Resources
	log   *logger.Logger

	postgres  *listenerSet
	websocket *listenerSet
	pubsub    *listenerSet
}

func NewFamilyManager(serverID string, staleness time.Duration, store *TriggerStore, q *queue.Queue, res Resources, log *logger.Logger) *FamilyManager {
	if log == nil {
		log = logger.Default()
	}
	return &FamilyManager{
		serverID: serverID, staleness: staleness,
		store: store, queue: q, res: res, log: log,
		postgres: newListenerSet(), websocket: newListenerSet(), pubsub: newListenerSet(),
	}
}

// Maintain runs one lease/start/stop pass across all three listener
// families. Call it on every maintainer tick (~15s per §4.8).
func (m *FamilyManager) Maintain(ctx context.Context) {
	m.maintainFamily(ctx, trigger.FamilyPostgres, m.postgres, m.startPostgres)
	m.maintainFamily(ctx, trigger.FamilyWebsocket, m.websocket, m.startWebsocket)
	m.maintainFamily(ctx, trigger.FamilyGCPPubSub, m.pubsub, m.startPubSub)
}

// Stop cancels every listener this instance is running, used on shutdown so
// a graceful exit doesn't wait out another instance's staleness window.
func (m *FamilyManager) Stop() {
	m.postgres.stopAll()
	m.websocket.stopAll()
	m.pubsub.stopAll()
}

func (m *FamilyManager) maintainFamily(ctx context.Context, family trigger.Family, set *listenerSet, start func(ctx context.Context, rec *trigger.Record, set *listenerSet)) {
	recs, err := m.store.ListEnabledByFamily(ctx, family)
	if err != nil {
		m.log.Error("list triggers for maintain", "family", family, "error", err)
		return
	}

	live := make(map[uuid.UUID]struct{}, len(recs))
	for _, rec := range recs {
		live[rec.ID] = struct{}{}
		if set.running(rec.ID) {
			continue
		}
		won, err := m.store.AcquireLease(ctx, rec.ID, m.serverID, m.staleness)
		if err != nil {
			m.log.Error("acquire trigger lease", "trigger_id", rec.ID, "error", err)
			continue
		}
		if !won {
			continue
		}
		start(ctx, rec, set)
	}

	for id := range set.ids() {
		if _, ok := live[id]; !ok {
			set.stop(id)
		}
	}
}

func (m *FamilyManager) startPostgres(ctx context.Context, rec *trigger.Record, set *listenerSet) {
	var cfg trigger.PostgresConfig
	if err := json.Unmarshal(rec.Config, &cfg); err != nil {
		_ = m.store.MarkError(ctx, rec.ID, "decode postgres config: "+err.Error())
		return
	}
	connString, err := m.res.PostgresConnString(ctx, rec, cfg)
	if err != nil {
		_ = m.store.MarkError(ctx, rec.ID, "resolve postgres connection: "+err.Error())
		return
	}

	tables := make([]pgtrigger.TrackedTable, len(cfg.Tables))
	for i, t := range cfg.Tables {
		tables[i] = pgtrigger.TrackedTable{Table: t}
	}

	listener := pgtrigger.New(pgtrigger.Config{
		ConnString:      connString,
		SlotName:        cfg.SlotName,
		PublicationName: cfg.PublicationName,
		Tables:          tables,
		BasicMode:       cfg.BasicMode,
		WorkspaceID:     rec.WorkspaceID,
		RunnablePath:    rec.RunnablePath,
		IsFlow:          rec.IsFlow,
		Caller:          job.CallerIdentity{CreatedBy: rec.CreatedBy, PermissionedAs: rec.CreatedBy},
		TriggerPath:     rec.Path,
	}, m.queue)

	set.start(ctx, rec.ID, listener.Run, m.log)
}

func (m *FamilyManager) startWebsocket(ctx context.Context, rec *trigger.Record, set *listenerSet) {
	var cfg trigger.WebsocketConfig
	if err := json.Unmarshal(rec.Config, &cfg); err != nil {
		_ = m.store.MarkError(ctx, rec.ID, "decode websocket config: "+err.Error())
		return
	}

	firer := wstrigger.NewQueueFirer(m.queue, rec, cfg)
	listener, err := wstrigger.New(cfg, firer)
	if err != nil {
		_ = m.store.MarkError(ctx, rec.ID, "build websocket listener: "+err.Error())
		return
	}

	set.start(ctx, rec.ID, listener.Run, m.log)
}

func (m *FamilyManager) startPubSub(ctx context.Context, rec *trigger.Record, set *listenerSet) {
	var cfg trigger.GCPPubSubConfig
	if err := json.Unmarshal(rec.Config, &cfg); err != nil {
		_ = m.store.MarkError(ctx, rec.ID, "decode gcp_pubsub config: "+err.Error())
		return
	}
	if cfg.Mode != "pull" {
		return // push mode is served over HTTP by cmd/server, not a background listener
	}

	creds, err := m.res.GoogleCredentialsJSON(ctx, rec.WorkspaceID)
	if err != nil {
		_ = m.store.MarkError(ctx, rec.ID, "resolve google credentials: "+err.Error())
		return
	}

	puller := gcppubsub.NewPuller(cfg, creds, rec, m.queue)
	set.start(ctx, rec.ID, func(ctx context.Context) error {
		return puller.Run(ctx, 5*time.Second, 10)
	}, m.log)
}
