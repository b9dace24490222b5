// Package googlepush implements the Google Drive/Calendar push-notification
// trigger family (§4.7): create (and periodically renew) a push channel that
// asks Google to POST change notifications to a callback URL, and convert
// each notification into a fired job. Service construction is grounded on
// pkg/executor/builtin/google_drive.go's createDriveService (service-account
// JSON credentials via golang.org/x/oauth2/google, then
// option.WithCredentials into the generated API client) generalized here to
// both drive/v3 and calendar/v3, since the teacher never builds a push
// channel itself.
package googlepush

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/trigger"
	"github.com/smilemakc/wmcore/internal/queue"
)

// channelLifetime mirrors Google's maximum push-channel TTL; renewal should
// run comfortably before this elapses.
const channelLifetime = 24 * time.Hour

// Channel is what a create/renew call hands back for storage on the trigger record.
type Channel struct {
	ChannelID  string
	ResourceID string
	ExpiresAt  time.Time
}

// Manager creates and renews Drive/Calendar push channels for one workspace's
// trigger set, using a single set of service-account credentials.
type Manager struct {
	credentialsJSON []byte
	callbackURL     string
}

func NewManager(credentialsJSON []byte, callbackURL string) *Manager {
	return &Manager{credentialsJSON: credentialsJSON, callbackURL: callbackURL}
}

func (m *Manager) driveService(ctx context.Context) (*drive.Service, error) {
	creds, err := google.CredentialsFromJSON(ctx, m.credentialsJSON, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("parse drive credentials: %w", err)
	}
	return drive.NewService(ctx, option.WithCredentials(creds))
}

func (m *Manager) calendarService(ctx context.Context) (*calendar.Service, error) {
	creds, err := google.CredentialsFromJSON(ctx, m.credentialsJSON, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse calendar credentials: %w", err)
	}
	return calendar.NewService(ctx, option.WithCredentials(creds))
}

// CreateDriveChannel watches a single file or "root" for changes (§4.7's
// "Google Drive provider").
func (m *Manager) CreateDriveChannel(ctx context.Context, channelID, fileID string) (*Channel, error) {
	srv, err := m.driveService(ctx)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(channelLifetime)
	req := &drive.Channel{
		Id:         channelID,
		Type:       "web_hook",
		Address:    m.callbackURL,
		Expiration: expiresAt.UnixMilli(),
	}

	resp, err := srv.Files.Watch(fileID, req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("create drive push channel: %w", err)
	}

	return &Channel{ChannelID: resp.Id, ResourceID: resp.ResourceId, ExpiresAt: expiresAt}, nil
}

// CreateCalendarChannel watches a calendar's events for changes.
func (m *Manager) CreateCalendarChannel(ctx context.Context, channelID, calendarID string) (*Channel, error) {
	srv, err := m.calendarService(ctx)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(channelLifetime)
	req := &calendar.Channel{
		Id:         channelID,
		Type:       "web_hook",
		Address:    m.callbackURL,
		Expiration: expiresAt.UnixMilli(),
	}

	resp, err := srv.Events.Watch(calendarID, req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("create calendar push channel: %w", err)
	}

	return &Channel{ChannelID: resp.Id, ResourceID: resp.ResourceId, ExpiresAt: expiresAt}, nil
}

// StopDriveChannel tells Google to stop sending notifications to a channel,
// used both on trigger deletion and before re-creating an expiring channel.
func (m *Manager) StopDriveChannel(ctx context.Context, channelID, resourceID string) error {
	srv, err := m.driveService(ctx)
	if err != nil {
		return err
	}
	return srv.Channels.Stop(&drive.Channel{Id: channelID, ResourceId: resourceID}).Context(ctx).Do()
}

// NeedsRenewal reports whether a channel is close enough to expiry that
// maintain() should recreate it (§4.7's scheduler renewal sweep).
func NeedsRenewal(expiresAt time.Time, now time.Time) bool {
	return now.Add(time.Hour).After(expiresAt)
}

// Receiver handles Google's push-notification POST callback for one
// configured channel.
type Receiver struct {
	queue *queue.Queue
}

func NewReceiver(q *queue.Queue) *Receiver {
	return &Receiver{queue: q}
}

// HandleNotification converts one callback delivery into a fired job. Google
// sends headers, not a body, for Drive/Calendar push notifications; the
// caller extracts them and passes the resource state along with the record
// to fire.
func (r *Receiver) HandleNotification(ctx context.Context, record *trigger.Record, resourceState, channelID string, headers http.Header) error {
	if resourceState == "sync" {
		return nil // initial sync notification carries no change, ignore it
	}

	args := map[string]any{
		"event": map[string]any{
			"kind":           "google_push",
			"resource_state": resourceState,
			"channel_id":     channelID,
			"resource_uri":   headers.Get("X-Goog-Resource-Uri"),
			"resource_id":    headers.Get("X-Goog-Resource-Id"),
			"message_number": headers.Get("X-Goog-Message-Number"),
		},
	}

	j := (trigger.PushArgs{
		WorkspaceID:  record.WorkspaceID,
		RunnablePath: record.RunnablePath,
		IsFlow:       record.IsFlow,
		Args:         args,
		Caller: job.CallerIdentity{
			CreatedBy:      record.CreatedBy,
			PermissionedAs: record.CreatedBy,
		},
		TriggerKind: job.TriggerGooglePush,
		TriggerPath: record.Path,
	}).NewJob()

	_, err := r.queue.Push(ctx, j, queue.PushOptions{Level: queue.IsolatedRoot})
	return err
}
