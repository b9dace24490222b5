// Package gcppubsub implements the GCP Pub/Sub trigger family (§4.7): pull
// mode (poll projects.subscriptions.pull on an interval) and push mode (an
// HTTP endpoint Pub/Sub POSTs to, OIDC-verified). Client construction follows
// pkg/executor/builtin/google_drive.go's credentials-JSON idiom, generalized
// to the pubsub/v1 REST client instead of drive/v3 since no pack dependency
// wraps GCP Pub/Sub; push-mode JWT verification is hand-wired onto
// github.com/coreos/go-oidc/v3, a teacher dependency previously used only for
// the auth-gateway OIDC login flow and reused here for its verifier, not its
// login-flow plumbing.
package gcppubsub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/pubsub/v1"

	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/trigger"
	"github.com/smilemakc/wmcore/internal/queue"
)

const googleIssuer = "https://accounts.google.com"

// Puller drains one subscription in pull mode and fires a job per message.
type Puller struct {
	cfg             trigger.GCPPubSubConfig
	credentialsJSON []byte
	record          *trigger.Record
	queue           *queue.Queue
}

func NewPuller(cfg trigger.GCPPubSubConfig, credentialsJSON []byte, record *trigger.Record, q *queue.Queue) *Puller {
	return &Puller{cfg: cfg, credentialsJSON: credentialsJSON, record: record, queue: q}
}

func (p *Puller) service(ctx context.Context) (*pubsub.Service, error) {
	creds, err := google.CredentialsFromJSON(ctx, p.credentialsJSON, pubsub.PubsubScope)
	if err != nil {
		return nil, fmt.Errorf("parse pubsub credentials: %w", err)
	}
	return pubsub.NewService(ctx, option.WithCredentials(creds))
}

// Run polls the subscription until ctx is canceled, fetching up to
// maxMessages per pull and acknowledging each message it successfully fires.
func (p *Puller) Run(ctx context.Context, interval time.Duration, maxMessages int64) error {
	srv, err := p.service(ctx)
	if err != nil {
		return err
	}
	subName := fmt.Sprintf("projects/%s/subscriptions/%s", p.cfg.ProjectID, p.cfg.SubscriptionID)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.pullOnce(ctx, srv, subName, maxMessages); err != nil {
				return err
			}
		}
	}
}

func (p *Puller) pullOnce(ctx context.Context, srv *pubsub.Service, subName string, maxMessages int64) error {
	resp, err := srv.Projects.Subscriptions.Pull(subName, &pubsub.PullRequest{MaxMessages: maxMessages}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("pull subscription %s: %w", subName, err)
	}

	ackIDs := make([]string, 0, len(resp.ReceivedMessages))
	for _, m := range resp.ReceivedMessages {
		if err := p.fire(ctx, m.Message); err != nil {
			return fmt.Errorf("fire job for pubsub message %s: %w", m.Message.MessageId, err)
		}
		ackIDs = append(ackIDs, m.AckId)
	}

	if len(ackIDs) == 0 {
		return nil
	}
	_, err = srv.Projects.Subscriptions.Acknowledge(subName, &pubsub.AcknowledgeRequest{AckIds: ackIDs}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("acknowledge pubsub messages: %w", err)
	}
	return nil
}

func (p *Puller) fire(ctx context.Context, msg *pubsub.PubsubMessage) error {
	j := buildJob(p.record, decodeMessage(msg))
	_, err := p.queue.Push(ctx, j, queue.PushOptions{Level: queue.IsolatedRoot})
	return err
}

// decodeMessage decodes the base64 Pub/Sub message body, parsing it as JSON
// when possible and falling back to the raw string otherwise.
func decodeMessage(msg *pubsub.PubsubMessage) map[string]any {
	data, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		data = []byte(msg.Data)
	}
	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		body = string(data)
	}
	return map[string]any{
		"message_id":  msg.MessageId,
		"publish_time": msg.PublishTime,
		"attributes":  msg.Attributes,
		"data":        body,
	}
}

func buildJob(record *trigger.Record, event map[string]any) *job.Job {
	return (trigger.PushArgs{
		WorkspaceID:  record.WorkspaceID,
		RunnablePath: record.RunnablePath,
		IsFlow:       record.IsFlow,
		Args:         map[string]any{"event": mergeKind(event)},
		Caller: job.CallerIdentity{
			CreatedBy:      record.CreatedBy,
			PermissionedAs: record.CreatedBy,
		},
		TriggerKind: job.TriggerGCP,
		TriggerPath: record.Path,
	}).NewJob()
}

func mergeKind(event map[string]any) map[string]any {
	event["kind"] = "gcp_pubsub"
	return event
}

// PushHandler serves the HTTP endpoint Pub/Sub POSTs to in push mode,
// verifying the bearer JWT Google signs before firing a job.
type PushHandler struct {
	verifier *oidc.IDTokenVerifier
	record   *trigger.Record
	queue    *queue.Queue
}

// NewPushHandler builds a verifier scoped to audience (the push_audience
// configured on the subscription) against Google's own OIDC discovery
// document, per GCP's push-authentication scheme.
func NewPushHandler(ctx context.Context, audience string, record *trigger.Record, q *queue.Queue) (*PushHandler, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("fetch google oidc discovery document: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: audience})
	return &PushHandler{verifier: verifier, record: record, queue: q}, nil
}

type pushEnvelope struct {
	Message struct {
		Data        string            `json:"data"`
		MessageID   string            `json:"messageId"`
		PublishTime string            `json:"publishTime"`
		Attributes  map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func (h *PushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == "" || token == auth {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	if _, err := h.verifier.Verify(r.Context(), token); err != nil {
		http.Error(w, "invalid push token: "+err.Error(), http.StatusUnauthorized)
		return
	}

	var envelope pushEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		http.Error(w, "invalid push envelope: "+err.Error(), http.StatusBadRequest)
		return
	}

	msg := &pubsub.PubsubMessage{
		Data:        envelope.Message.Data,
		MessageId:   envelope.Message.MessageID,
		PublishTime: envelope.Message.PublishTime,
		Attributes:  envelope.Message.Attributes,
	}
	j := buildJob(h.record, decodeMessage(msg))
	if _, err := h.queue.Push(r.Context(), j, queue.PushOptions{Level: queue.IsolatedRoot}); err != nil {
		http.Error(w, "failed to enqueue job: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
