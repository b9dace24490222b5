package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TriggerModel is the single polymorphic trigger row: one `family` +
// `config jsonb` discriminated table backing all six trigger families
// (§4.7), the same shape the teacher uses for its own 5-way trigger type.
type TriggerModel struct {
	bun.BaseModel `bun:"table:triggers,alias:t"`

	ID          uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	WorkspaceID string    `bun:"workspace_id,notnull" json:"workspace_id"`
	Path        string    `bun:"path,notnull" json:"path"`

	Family  string   `bun:"family,notnull" json:"family" validate:"required,oneof=schedule webhook websocket postgres google_push gcp_pubsub"`
	Config  JSONBMap `bun:"config,type:jsonb,notnull,default:'{}'" json:"config"`
	Enabled bool     `bun:"enabled,notnull,default:true" json:"enabled"`

	RunnablePath string `bun:"runnable_path,notnull" json:"runnable_path"`
	RunnableKind string `bun:"runnable_kind,notnull" json:"runnable_kind"`
	IsFlow       bool   `bun:"is_flow,notnull,default:false" json:"is_flow"`

	ExternalID     string     `bun:"external_id" json:"external_id,omitempty"`
	ServerID       string     `bun:"server_id" json:"server_id,omitempty"`
	LastServerPing *time.Time `bun:"last_server_ping" json:"last_server_ping,omitempty"`
	ErrorCount     int        `bun:"error_count,notnull,default:0" json:"error_count"`
	LastError      string     `bun:"last_error" json:"last_error,omitempty"`

	CreatedBy string    `bun:"created_by,notnull" json:"created_by"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

func (TriggerModel) TableName() string { return "triggers" }

func (t *TriggerModel) BeforeInsert(ctx interface{}) error {
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Config == nil {
		t.Config = make(JSONBMap)
	}
	return nil
}

func (t *TriggerModel) BeforeUpdate(ctx interface{}) error {
	t.UpdatedAt = time.Now()
	return nil
}

func (t *TriggerModel) IsSchedule() bool   { return t.Family == "schedule" }
func (t *TriggerModel) IsWebhook() bool    { return t.Family == "webhook" }
func (t *TriggerModel) IsWebsocket() bool  { return t.Family == "websocket" }
func (t *TriggerModel) IsPostgres() bool   { return t.Family == "postgres" }
func (t *TriggerModel) IsGooglePush() bool { return t.Family == "google_push" }
func (t *TriggerModel) IsGCPPubSub() bool  { return t.Family == "gcp_pubsub" }

// MarkPing stamps LastServerPing and resets ErrorCount on a successful
// maintain() pass for this trigger.
func (t *TriggerModel) MarkPing() {
	now := time.Now()
	t.LastServerPing = &now
	t.ErrorCount = 0
	t.LastError = ""
}

// RecordError increments ErrorCount and stores the latest failure so repeat
// breakage surfaces without the trigger needing to be polled again.
func (t *TriggerModel) RecordError(err string) {
	t.ErrorCount++
	t.LastError = err
}
