package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/werr"
	"github.com/smilemakc/wmcore/internal/infrastructure/logger"
	"github.com/smilemakc/wmcore/internal/queue"
	"github.com/smilemakc/wmcore/internal/waitresult"
)

// Authenticator resolves the calling identity for a push request.
// Sessions, tokens, and RBAC are out of scope (§1); this is the one seam
// the push handlers need from whatever sits in front of them.
type Authenticator interface {
	Caller(c *gin.Context) (job.CallerIdentity, error)
}

// RunHandlers serves the push endpoints (§6): run, run_wait_result,
// run/h/:hash, run/preview, and run/preview_flow.
type RunHandlers struct {
	queue *queue.Queue
	auth  Authenticator
	log   *logger.Logger
	wait  waitresult.Config
}

func NewRunHandlers(q *queue.Queue, auth Authenticator, log *logger.Logger) *RunHandlers {
	return &RunHandlers{queue: q, auth: auth, log: log}
}

// runOptions is the parsed form of §6's optional push query params.
type runOptions struct {
	scheduledFor     time.Time
	parentJob        *uuid.UUID
	rootJob          *uuid.UUID
	jobID            *uuid.UUID
	tag              string
	invisibleToOwner bool
	skipPreprocessor bool
	memoryID         string
	suspendedMode    bool
}

func parseRunOptions(c *gin.Context) (runOptions, error) {
	var o runOptions

	if v := c.Query("scheduled_for"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return o, werr.BadRequest("invalid scheduled_for: " + err.Error())
		}
		o.scheduledFor = t
	} else if v := c.Query("scheduled_in_secs"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return o, werr.BadRequest("invalid scheduled_in_secs: " + err.Error())
		}
		o.scheduledFor = time.Now().Add(time.Duration(secs) * time.Second)
	}

	var err error
	if o.parentJob, err = parseUUIDQuery(c, "parent_job"); err != nil {
		return o, err
	}
	if o.rootJob, err = parseUUIDQuery(c, "root_job"); err != nil {
		return o, err
	}
	if o.jobID, err = parseUUIDQuery(c, "job_id"); err != nil {
		return o, err
	}

	o.tag = c.Query("tag")
	o.invisibleToOwner = c.Query("invisible_to_owner") == "true"
	o.skipPreprocessor = c.Query("skip_preprocessor") == "true"
	o.memoryID = c.Query("memory_id")
	o.suspendedMode = c.Query("suspended_mode") == "true"

	return o, nil
}

// apply overlays the parsed query options onto a freshly built job.Job.
func (o runOptions) apply(j *job.Job) {
	if !o.scheduledFor.IsZero() {
		j.Sched.ScheduledFor = o.scheduledFor
	}
	j.Sched.ParentJob = o.parentJob
	j.Sched.RootJob = o.rootJob
	if o.jobID != nil {
		j.ID = *o.jobID
	}
	if o.tag != "" {
		j.Sched.Tag = o.tag
	}
	j.Policy.VisibleToOwner = !o.invisibleToOwner
	j.Policy.Preprocessed = o.skipPreprocessor
	if o.memoryID != "" || o.suspendedMode {
		j.Extras = map[string]any{}
		if o.memoryID != "" {
			j.Extras["memory_id"] = o.memoryID
		}
		if o.suspendedMode {
			j.Extras["suspended_mode"] = true
		}
	}
}

func parseUUIDQuery(c *gin.Context, param string) (*uuid.UUID, error) {
	v := c.Query(param)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, werr.BadRequest("invalid " + param + ": " + err.Error())
	}
	return &id, nil
}

func pathParam(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("path"), "/")
}

func (h *RunHandlers) buildPushedJob(c *gin.Context, kind job.Kind, runnablePath string) (*job.Job, error) {
	var args map[string]any
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&args); err != nil {
			return nil, werr.BadRequest("invalid request body: " + err.Error())
		}
	}

	caller, err := h.auth.Caller(c)
	if err != nil {
		return nil, err
	}

	opts, err := parseRunOptions(c)
	if err != nil {
		return nil, err
	}

	workspaceID := c.Param("workspace")
	j := &job.Job{
		WorkspaceID: workspaceID,
		Runnable:    job.RunnableRef{Kind: kind, RunnablePath: &runnablePath},
		Caller:      caller,
		Sched:       job.Scheduling{Tag: "default"},
		Args:        args,
	}
	opts.apply(j)
	return j, nil
}

func (h *RunHandlers) push(c *gin.Context, j *job.Job) (uuid.UUID, error) {
	return h.queue.Push(c.Request.Context(), j, queue.PushOptions{Level: queue.Isolated})
}

// RunScript serves POST /w/:wid/jobs/run/p/*path.
func (h *RunHandlers) RunScript(c *gin.Context) { h.run(c, job.KindScript) }

// RunFlow serves POST /w/:wid/jobs/run/f/*path.
func (h *RunHandlers) RunFlow(c *gin.Context) { h.run(c, job.KindFlow) }

func (h *RunHandlers) run(c *gin.Context, kind job.Kind) {
	j, err := h.buildPushedJob(c, kind, pathParam(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	id, err := h.push(c, j)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// RunScriptWaitResult serves POST /w/:wid/jobs/run_wait_result/p/*path.
func (h *RunHandlers) RunScriptWaitResult(c *gin.Context) { h.runWaitResult(c, job.KindScript) }

// RunFlowWaitResult serves POST /w/:wid/jobs/run_wait_result/f/*path.
func (h *RunHandlers) RunFlowWaitResult(c *gin.Context) { h.runWaitResult(c, job.KindFlow) }

func (h *RunHandlers) runWaitResult(c *gin.Context, kind job.Kind) {
	j, err := h.buildPushedJob(c, kind, pathParam(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	id, err := h.push(c, j)
	if err != nil {
		respondErr(c, err)
		return
	}
	h.awaitAndRespond(c, id)
}

// RunByHash serves POST /w/:wid/jobs/run/h/:hash, addressing a specific
// content-hashed script version rather than its current path (§6). Hash
// resolution to a stored script body lives in the script repository, out
// of scope (§1); the hash travels through as the runnable identifier the
// way a path does for RunScript.
func (h *RunHandlers) RunByHash(c *gin.Context) {
	hash := c.Param("hash")
	if hash == "" {
		respondBadRequest(c, "hash is required")
		return
	}
	j, err := h.buildPushedJob(c, job.KindScript, "hash:"+hash)
	if err != nil {
		respondErr(c, err)
		return
	}
	id, err := h.push(c, j)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

type previewRequest struct {
	Language job.Language   `json:"language"`
	Content  string         `json:"content"`
	Args     map[string]any `json:"args"`
	Tag      string         `json:"tag,omitempty"`
}

// RunPreview serves POST /w/:wid/jobs/run/preview: runs inline script
// source without a stored script row.
func (h *RunHandlers) RunPreview(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Content == "" {
		respondBadRequest(c, "content is required")
		return
	}

	caller, err := h.auth.Caller(c)
	if err != nil {
		respondErr(c, err)
		return
	}
	opts, err := parseRunOptions(c)
	if err != nil {
		respondErr(c, err)
		return
	}

	content := req.Content
	j := &job.Job{
		WorkspaceID: c.Param("workspace"),
		Runnable:    job.RunnableRef{Kind: job.KindPreview, ScriptLang: req.Language, RawCode: &content},
		Caller:      caller,
		Sched:       job.Scheduling{Tag: firstNonEmpty(req.Tag, "default")},
		Args:        req.Args,
	}
	opts.apply(j)

	id, err := h.push(c, j)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

type previewFlowRequest struct {
	Value json.RawMessage `json:"value"`
	Args  map[string]any  `json:"args"`
	Tag   string          `json:"tag,omitempty"`
}

// RunPreviewFlow serves POST /w/:wid/jobs/run/preview_flow: runs an inline
// flow definition without a stored flow row.
func (h *RunHandlers) RunPreviewFlow(c *gin.Context) {
	var req previewFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if len(req.Value) == 0 {
		respondBadRequest(c, "value is required")
		return
	}

	caller, err := h.auth.Caller(c)
	if err != nil {
		respondErr(c, err)
		return
	}
	opts, err := parseRunOptions(c)
	if err != nil {
		respondErr(c, err)
		return
	}

	j := &job.Job{
		WorkspaceID: c.Param("workspace"),
		Runnable:    job.RunnableRef{Kind: job.KindFlow, RawFlow: []byte(req.Value)},
		Caller:      caller,
		Sched:       job.Scheduling{Tag: firstNonEmpty(req.Tag, "default")},
		Args:        req.Args,
	}
	opts.apply(j)

	id, err := h.push(c, j)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// awaitAndRespond blocks on waitresult.Await and writes the §6 completion
// shape, canceling the job if the client disconnects before it finishes.
func (h *RunHandlers) awaitAndRespond(c *gin.Context, id uuid.UUID) {
	completion, err := waitresult.Await(c.Request.Context(), h.queue, id, h.wait)
	if err != nil {
		var timeoutErr *waitresult.ErrTimeout
		if errors.As(err, &timeoutErr) {
			c.JSON(http.StatusGatewayTimeout, gin.H{"id": id, "error": "wait_result timed out"})
			return
		}
		if c.Request.Context().Err() != nil {
			return // client already gone; nothing left to write
		}
		respondErr(c, err)
		return
	}

	resp := gin.H{
		"result":       completion.Result,
		"success":      completion.Status == job.StatusSuccess,
		"duration_ms":  completion.DurationMs,
		"started_at":   completion.StartedAt,
		"completed_at": completion.CompletedAt,
		"status":       completion.Status,
	}
	if len(completion.FlowStatus) > 0 {
		resp["flow_status"] = json.RawMessage(completion.FlowStatus)
	}
	c.JSON(http.StatusOK, resp)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
