// Package webhook implements the HTTP webhook trigger family (§4.7):
// content-type dispatch, raw/wrap_body/include_header query flags, and
// V1/V2 preprocessor argument wrapping, grounded on the teacher's own
// WebhookHandlers (internal/infrastructure/api/rest/handlers_webhook.go).
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/trigger"
	"github.com/smilemakc/wmcore/internal/domain/werr"
	"github.com/smilemakc/wmcore/internal/queue"
)

// PreprocessorMode tells the handler how (or whether) to wrap the parsed
// webhook event for the target runnable (§4.7, "Runnable format selection").
type PreprocessorMode int

const (
	NoPreprocessor PreprocessorMode = iota
	PreprocessorV1
	PreprocessorV2
)

// Target is what a trigger path resolves to: the record to fire plus
// whether (and which version of) its runnable's preprocessor applies.
type Target struct {
	Record       *trigger.Record
	Preprocessor PreprocessorMode
}

// Resolver looks up a webhook trigger by path. Kept as a narrow interface
// (rather than importing a concrete repository) so this package doesn't
// depend on how triggers and their runnables are actually stored.
type Resolver interface {
	ResolveWebhook(ctx context.Context, workspaceID, path string) (*Target, error)
}

// Uploader stores one multipart file part and returns its object key.
// multipart/form-data bodies upload file parts to object storage (§4.7)
// when one is configured; without an Uploader, file parts are dropped and
// only their field names are recorded.
type Uploader interface {
	Put(ctx context.Context, filename string, content io.Reader) (key string, err error)
}

// Handler serves the webhook ingress endpoints.
type Handler struct {
	resolver Resolver
	queue    *queue.Queue
	uploader Uploader
}

func New(resolver Resolver, q *queue.Queue, uploader Uploader) *Handler {
	return &Handler{resolver: resolver, queue: q, uploader: uploader}
}

// parsedBody is the content-type-dispatched result of reading a webhook
// request body (§4.7's "HTTP webhook parsing").
type parsedBody struct {
	Body      any
	RawString *string
}

// HandleWebhook serves POST /api/v1/w/:workspace/webhooks/:path, mirroring
// the teacher's HandleWebhook (trigger_id param, header extraction, source
// IP, 202-with-execution-id response shape), generalized to this system's
// content-type dispatch and preprocessor wrapping instead of the teacher's
// JSON-only body bind.
func (h *Handler) HandleWebhook(c *gin.Context) {
	workspaceID := c.Param("workspace")
	path := strings.TrimPrefix(c.Param("path"), "/")
	if path == "" {
		respondError(c, http.StatusBadRequest, "webhook path is required")
		return
	}

	target, err := h.resolver.ResolveWebhook(c.Request.Context(), workspaceID, path)
	if err != nil {
		respondError(c, http.StatusNotFound, "webhook trigger not found: "+err.Error())
		return
	}
	if !target.Record.Enabled {
		respondError(c, http.StatusForbidden, "webhook trigger is disabled")
		return
	}

	parsed, err := h.parseBody(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	raw := c.Query("raw") == "true"
	wrapBody := c.Query("wrap_body") == "true"

	headers := h.selectedHeaders(c)
	query := map[string]any{}
	for k, v := range c.Request.URL.Query() {
		if len(v) == 1 {
			query[k] = v[0]
		} else {
			query[k] = v
		}
	}

	var body any = parsed.Body
	if wrapBody {
		body = map[string]any{"body": parsed.Body}
	}

	args := h.buildArgs(target.Preprocessor, body, parsed.RawString, headers, query, raw)

	j := (trigger.PushArgs{
		WorkspaceID:  workspaceID,
		RunnablePath: target.Record.RunnablePath,
		IsFlow:       target.Record.IsFlow,
		Args:         args,
		Caller: job.CallerIdentity{
			CreatedBy:      target.Record.CreatedBy,
			PermissionedAs: target.Record.CreatedBy,
		},
		TriggerKind: job.TriggerWebhook,
		TriggerPath: target.Record.Path,
	}).NewJob()

	id, err := h.queue.Push(c.Request.Context(), j, queue.PushOptions{Level: queue.IsolatedRoot})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to enqueue job: "+err.Error())
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": id.String()})
}

// buildArgs implements §4.7's "Runnable format selection": V2 wraps the
// event under a single "event" key, V1 augments the raw args with a
// wm_trigger marker, and with no preprocessor the parsed body is the args
// (or, if it isn't an object, is nested under "body" like wrap_body does).
func (h *Handler) buildArgs(mode PreprocessorMode, body any, rawString *string, headers map[string]string, query map[string]any, raw bool) map[string]any {
	switch mode {
	case PreprocessorV2:
		event := map[string]any{
			"kind":    "webhook",
			"body":    body,
			"headers": headers,
			"query":   query,
		}
		if raw {
			event["raw_string"] = rawString
		} else {
			event["raw_string"] = nil
		}
		return map[string]any{"event": event}

	case PreprocessorV1:
		args := h.asArgs(body)
		args["wm_trigger"] = map[string]any{"kind": "webhook"}
		return args

	default:
		return h.asArgs(body)
	}
}

func (h *Handler) asArgs(body any) map[string]any {
	if m, ok := body.(map[string]any); ok {
		return m
	}
	return map[string]any{"body": body}
}

func (h *Handler) selectedHeaders(c *gin.Context) map[string]string {
	selected := map[string]string{}
	include := c.Query("include_header")
	if include == "" {
		return selected
	}
	for _, name := range strings.Split(include, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if v := c.GetHeader(name); v != "" {
			selected[name] = v
		}
	}
	return selected
}

// parseBody dispatches on Content-Type exactly per §4.7:
//   - application/json              -> object or single value under "body"
//   - application/cloudevents+json   -> CloudEvents envelope, as-is
//   - text/plain, */xml              -> raw_string
//   - application/x-www-form-urlencoded -> key/value map
//   - multipart/form-data            -> uploaded file parts + field values
func (h *Handler) parseBody(c *gin.Context) (parsedBody, error) {
	contentType := c.GetHeader("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "application/json"
	}

	switch {
	case mediaType == "application/cloudevents+json":
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return parsedBody{}, err
		}
		var envelope any
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return parsedBody{}, fmt.Errorf("invalid cloudevents envelope: %w", err)
		}
		s := string(raw)
		return parsedBody{Body: envelope, RawString: &s}, nil

	case mediaType == "application/json":
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return parsedBody{}, err
		}
		s := string(raw)
		if len(raw) == 0 {
			return parsedBody{Body: map[string]any{}, RawString: &s}, nil
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return parsedBody{}, fmt.Errorf("invalid json body: %w", err)
		}
		return parsedBody{Body: v, RawString: &s}, nil

	case mediaType == "text/plain" || strings.HasSuffix(mediaType, "/xml") || mediaType == "application/xml":
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return parsedBody{}, err
		}
		s := string(raw)
		return parsedBody{Body: s, RawString: &s}, nil

	case mediaType == "application/x-www-form-urlencoded":
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return parsedBody{}, err
		}
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return parsedBody{}, err
		}
		m := map[string]any{}
		for k, v := range values {
			if len(v) == 1 {
				m[k] = v[0]
			} else {
				m[k] = v
			}
		}
		s := string(raw)
		return parsedBody{Body: m, RawString: &s}, nil

	case mediaType == "multipart/form-data":
		return h.parseMultipart(c, params["boundary"])

	default:
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return parsedBody{}, err
		}
		s := string(raw)
		return parsedBody{Body: s, RawString: &s}, nil
	}
}

func (h *Handler) parseMultipart(c *gin.Context, boundary string) (parsedBody, error) {
	if boundary == "" {
		return parsedBody{}, werr.BadRequest("multipart body missing boundary")
	}
	reader := multipart.NewReader(c.Request.Body, boundary)
	out := map[string]any{}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return parsedBody{}, err
		}

		name := part.FormName()
		if part.FileName() == "" {
			data, err := io.ReadAll(part)
			if err != nil {
				return parsedBody{}, err
			}
			out[name] = string(data)
			continue
		}

		if h.uploader == nil {
			out[name] = map[string]any{"filename": part.FileName()}
			continue
		}
		key, err := h.uploader.Put(c.Request.Context(), part.FileName(), part)
		if err != nil {
			return parsedBody{}, fmt.Errorf("store upload %s: %w", part.FileName(), err)
		}
		out[name] = map[string]any{"filename": part.FileName(), "s3_key": key}
	}

	return parsedBody{Body: out}, nil
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
