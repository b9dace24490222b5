// Package trigger defines the family-agnostic trigger record and the push
// arguments every trigger family produces when it fires (§4.7).
package trigger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/wmcore/internal/domain/job"
)

// Family is the external event source kind.
type Family string

const (
	FamilySchedule  Family = "schedule"
	FamilyWebhook   Family = "webhook"
	FamilyWebsocket Family = "websocket"
	FamilyPostgres  Family = "postgres"
	FamilyGooglePush Family = "google_push"
	FamilyGCPPubSub Family = "gcp_pubsub"
)

// Record is one configured trigger, stored with a family discriminator and
// an opaque per-family config blob, mirroring the single-table-with-jsonb
// pattern used for every other polymorphic row in this system.
type Record struct {
	ID          uuid.UUID       `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	Path        string          `json:"path"`
	Family      Family          `json:"family"`
	Config      json.RawMessage `json:"config"`
	Enabled     bool            `json:"enabled"`

	RunnablePath string   `json:"runnable_path"`
	RunnableKind job.Kind `json:"runnable_kind"`

	ScriptPath string `json:"script_path,omitempty"`
	IsFlow     bool   `json:"is_flow"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ExternalID is the family-specific stable identifier that survives
	// renewal (Google push channel ID, Pub/Sub subscription name, postgres
	// replication slot name). Kept at this level because the scheduler's
	// maintain() sweep needs it without decoding Config.
	ExternalID string `json:"external_id,omitempty"`

	// ServerID names the scheduler instance currently holding this trigger's
	// listener lease; paired with LastServerPing in the lease UPDATE (§4.8c).
	ServerID string `json:"server_id,omitempty"`

	// LastServerPing is updated by maintain() on every successful poll/renew
	// and used by the zombie sweep to detect a trigger whose listener died.
	LastServerPing *time.Time `json:"last_server_ping,omitempty"`

	// ErrorCount/LastError track consecutive failures so repeated breakage
	// can disable a trigger instead of hammering the external system.
	ErrorCount int    `json:"error_count"`
	LastError  string `json:"last_error,omitempty"`
}

// PushArgs is what a firing trigger hands to queue.Push: the runnable to
// execute plus the caller identity and args derived from the event.
type PushArgs struct {
	WorkspaceID  string
	RunnablePath string
	IsFlow       bool
	Args         map[string]any
	Caller       job.CallerIdentity
	TriggerKind  job.TriggerKind
	TriggerPath  string
	Tag          string
}

// NewJob builds the Job every trigger family pushes once it decides to fire
// — one conversion point so each family's listener only has to decide *when*
// to fire, not how PushArgs becomes a job.Job.
func (p PushArgs) NewJob() *job.Job {
	kind := job.KindScript
	if p.IsFlow {
		kind = job.KindFlow
	}
	tag := p.Tag
	if tag == "" {
		tag = "default"
	}
	return &job.Job{
		WorkspaceID: p.WorkspaceID,
		Runnable: job.RunnableRef{
			Kind:         kind,
			RunnablePath: &p.RunnablePath,
		},
		Caller: p.Caller,
		Sched: job.Scheduling{
			Tag:         tag,
			TriggerKind: p.TriggerKind,
			Trigger:     p.TriggerPath,
		},
		Args: p.Args,
	}
}

// ScheduleConfig is the Family-specific config for FamilySchedule.
type ScheduleConfig struct {
	CronExpr string `json:"cron_expr"`
	Timezone string `json:"timezone,omitempty"`
	Paused   bool   `json:"paused,omitempty"`
}

// WebhookConfig is the Family-specific config for FamilyWebhook.
type WebhookConfig struct {
	Async         bool   `json:"async"`
	RawBodyArgKey string `json:"raw_body_arg_key,omitempty"`
}

// WebsocketConfig is the Family-specific config for FamilyWebsocket.
type WebsocketConfig struct {
	URL          string `json:"url"`
	Filter       string `json:"filter,omitempty"` // gojq expression
	InitialMsg   string `json:"initial_message,omitempty"`
}

// PostgresConfig is the Family-specific config for FamilyPostgres.
type PostgresConfig struct {
	DatabaseResourcePath string   `json:"database_resource_path"`
	PublicationName      string   `json:"publication_name"`
	SlotName             string   `json:"slot_name"`
	Tables               []string `json:"tables,omitempty"`
	BasicMode            bool     `json:"basic_mode,omitempty"`
}

// GooglePushConfig is the Family-specific config for FamilyGooglePush.
type GooglePushConfig struct {
	Provider     string `json:"provider"` // "drive" | "calendar"
	ResourceID   string `json:"resource_id,omitempty"`
	ChannelID    string `json:"channel_id,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// GCPPubSubConfig is the Family-specific config for FamilyGCPPubSub.
type GCPPubSubConfig struct {
	ProjectID      string `json:"project_id"`
	SubscriptionID string `json:"subscription_id"`
	Mode           string `json:"mode"` // "pull" | "push"
	PushAudience   string `json:"push_audience,omitempty"`
}
