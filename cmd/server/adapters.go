package main

import (
	"context"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/smilemakc/wmcore/internal/application/filestorage"
	"github.com/smilemakc/wmcore/internal/domain/trigger"
	"github.com/smilemakc/wmcore/internal/domain/werr"
	"github.com/smilemakc/wmcore/internal/scheduler"
	"github.com/smilemakc/wmcore/internal/trigger/webhook"
	"github.com/smilemakc/wmcore/pkg/models"
)

// staticResources implements scheduler.Resources against this process's
// own configuration rather than a per-workspace resource/secret store —
// workspace resource management is out of scope (§1). It serves the
// postgres trigger family only against the primary database itself (an
// empty DatabaseResourcePath), and one shared set of Google service-account
// credentials for every workspace's google_push/gcp_pubsub triggers.
type staticResources struct {
	primaryDSN           string
	googleCredentialsJSON []byte
}

func newStaticResources(primaryDSN string, googleCredentialsJSON []byte) *staticResources {
	return &staticResources{primaryDSN: primaryDSN, googleCredentialsJSON: googleCredentialsJSON}
}

func (r *staticResources) PostgresConnString(_ context.Context, _ *trigger.Record, cfg trigger.PostgresConfig) (string, error) {
	if cfg.DatabaseResourcePath != "" {
		return "", werr.BadRequest("postgres trigger resource lookup for " + cfg.DatabaseResourcePath + " is not implemented; only the primary database is servable")
	}
	return r.primaryDSN, nil
}

func (r *staticResources) GoogleCredentialsJSON(_ context.Context, _ string) ([]byte, error) {
	if len(r.googleCredentialsJSON) == 0 {
		return nil, werr.BadRequest("no google service account credentials configured")
	}
	return r.googleCredentialsJSON, nil
}

func loadGoogleCredentials(path string) []byte {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return data
}

// webhookResolverAdapter implements webhook.Resolver against the same
// trigger table the scheduler leases from. Flow/script-definition storage
// is out of scope (§1), so there is no per-runnable preprocessor flag to
// read yet; every path resolves to NoPreprocessor, matching the worker's
// own "only inline raw_code/raw_flow jobs run" simplification.
type webhookResolverAdapter struct {
	store *scheduler.TriggerStore
}

func newWebhookResolver(store *scheduler.TriggerStore) *webhookResolverAdapter {
	return &webhookResolverAdapter{store: store}
}

func (a *webhookResolverAdapter) ResolveWebhook(ctx context.Context, workspaceID, path string) (*webhook.Target, error) {
	rec, err := a.store.GetByPath(ctx, workspaceID, path, trigger.FamilyWebhook)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return &webhook.Target{Record: rec, Preprocessor: webhook.NoPreprocessor}, nil
}

// fileStorageUploader adapts the teacher's filestorage.StorageManager's
// default storage to webhook.Uploader, so multipart webhook file parts
// land in the same file store every other runnable result does, instead
// of being dropped.
type fileStorageUploader struct {
	manager *filestorage.StorageManager
}

func newFileStorageUploader(m *filestorage.StorageManager) *fileStorageUploader {
	return &fileStorageUploader{manager: m}
}

func (u *fileStorageUploader) Put(ctx context.Context, filename string, content io.Reader) (string, error) {
	storage, err := u.manager.GetDefaultStorage()
	if err != nil {
		return "", err
	}
	entry := &models.FileEntry{
		ID:          uuid.NewString(),
		Name:        filename,
		AccessScope: models.ScopeResult,
	}
	stored, err := storage.Store(ctx, entry, content)
	if err != nil {
		return "", err
	}
	return stored.ID, nil
}
