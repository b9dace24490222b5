package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/smilemakc/wmcore/internal/domain/trigger"
	"github.com/smilemakc/wmcore/internal/infrastructure/logger"
	"github.com/smilemakc/wmcore/internal/storage/models"
	"github.com/smilemakc/wmcore/internal/trigger/googlepush"
)

// driveRenewWindow/calendarRenewWindow are how far before expiry the
// maintainer recreates a channel (§4.7: "renews when remaining time < 1h
// (Drive) / 1d (Calendar)").
const (
	driveRenewWindow    = time.Hour
	calendarRenewWindow = 24 * time.Hour
)

// GooglePushMaintainer implements the renewal half of §4.8c for the
// google_push family: it holds no long-lived listener (notifications arrive
// over the webhook HTTP path), so its maintain() pass only checks each
// enabled channel's expiry and recreates it when due.
type GooglePushMaintainer struct {
	store       *TriggerStore
	res         Resources
	callbackURL string
	log         *logger.Logger
}

func NewGooglePushMaintainer(store *TriggerStore, res Resources, callbackURL string, log *logger.Logger) *GooglePushMaintainer {
	if log == nil {
		log = logger.Default()
	}
	return &GooglePushMaintainer{store: store, res: res, callbackURL: callbackURL, log: log}
}

// Maintain renews every enabled google_push trigger whose channel is within
// its renewal window of expiring.
func (m *GooglePushMaintainer) Maintain(ctx context.Context) {
	recs, err := m.store.ListEnabledByFamily(ctx, trigger.FamilyGooglePush)
	if err != nil {
		m.log.Error("list google_push triggers", "error", err)
		return
	}
	for _, rec := range recs {
		if err := m.maintainOne(ctx, rec); err != nil {
			_ = m.store.MarkError(ctx, rec.ID, err.Error())
			m.log.Error("maintain google_push trigger", "trigger_id", rec.ID, "error", err)
			continue
		}
		_ = m.store.MarkPing(ctx, rec.ID)
	}
}

func (m *GooglePushMaintainer) maintainOne(ctx context.Context, rec *trigger.Record) error {
	var cfg trigger.GooglePushConfig
	if err := json.Unmarshal(rec.Config, &cfg); err != nil {
		return err
	}

	window := driveRenewWindow
	if cfg.Provider == "calendar" {
		window = calendarRenewWindow
	}
	if cfg.ExpiresAt != nil && time.Until(*cfg.ExpiresAt) > window {
		return nil // not yet due for renewal
	}

	creds, err := m.res.GoogleCredentialsJSON(ctx, rec.WorkspaceID)
	if err != nil {
		return err
	}
	mgr := googlepush.NewManager(creds, m.callbackURL)

	if cfg.ChannelID != "" && cfg.ResourceID != "" {
		if err := mgr.StopDriveChannel(ctx, cfg.ChannelID, cfg.ResourceID); err != nil {
			m.log.Warn("stop expiring google_push channel", "trigger_id", rec.ID, "error", err)
		}
	}

	var channel *googlepush.Channel
	if cfg.Provider == "calendar" {
		channel, err = mgr.CreateCalendarChannel(ctx, cfg.ChannelID, rec.RunnablePath)
	} else {
		channel, err = mgr.CreateDriveChannel(ctx, cfg.ChannelID, rec.RunnablePath)
	}
	if err != nil {
		return err
	}

	cfg.ChannelID = channel.ChannelID
	cfg.ResourceID = channel.ResourceID
	cfg.ExpiresAt = &channel.ExpiresAt

	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	jsonbCfg := make(models.JSONBMap)
	if err := json.Unmarshal(raw, &jsonbCfg); err != nil {
		return err
	}
	if err := m.store.UpdateConfig(ctx, rec.ID, jsonbCfg); err != nil {
		return err
	}
	return m.store.UpdateExternalID(ctx, rec.ID, channel.ChannelID)
}
