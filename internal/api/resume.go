package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smilemakc/wmcore/internal/domain/flow"
	"github.com/smilemakc/wmcore/internal/domain/werr"
	"github.com/smilemakc/wmcore/internal/infrastructure/logger"
	"github.com/smilemakc/wmcore/internal/queue"
	"github.com/smilemakc/wmcore/internal/suspend"
)

// WorkspaceKeys resolves the per-workspace HMAC key resume links are signed
// with. Workspace management is out of scope (§1); this is the one seam
// the signed-link endpoints need from it.
type WorkspaceKeys interface {
	Key(ctx context.Context, workspaceID string) (string, error)
}

// ApprovalPolicy resolves the suspend configuration a pending approval must
// be checked against, plus the identity that originally pushed the job —
// both come from the flow definition and the flow/script repository,
// out of scope (§1), same seam shape as webhook.Resolver.
type ApprovalPolicy interface {
	SuspendConfig(ctx context.Context, jobID uuid.UUID, flowStepID string) (cfg *flow.SuspendConfig, triggeredBy string, err error)
}

// ResumeHandlers serves the public suspend/resume endpoints (§6, §4.5):
// the signed resume/cancel links and the job_signature endpoint a script
// uses to self-mint its own resume URL.
type ResumeHandlers struct {
	queue   *queue.Queue
	suspend *suspend.Service
	keys    WorkspaceKeys
	policy  ApprovalPolicy
	log     *logger.Logger
}

func NewResumeHandlers(q *queue.Queue, suspendSvc *suspend.Service, keys WorkspaceKeys, policy ApprovalPolicy, log *logger.Logger) *ResumeHandlers {
	return &ResumeHandlers{queue: q, suspend: suspendSvc, keys: keys, policy: policy, log: log}
}

// Resume serves {GET|POST} /w/:wid/jobs_u/resume/:job_id/:resume_id/:secret.
func (h *ResumeHandlers) Resume(c *gin.Context) {
	h.handle(c, true)
}

// Cancel serves {GET|POST} /w/:wid/jobs_u/cancel/:job_id/:resume_id/:secret.
func (h *ResumeHandlers) Cancel(c *gin.Context) {
	h.handle(c, false)
}

func (h *ResumeHandlers) handle(c *gin.Context, approved bool) {
	ctx := c.Request.Context()
	workspaceID := c.Param("workspace")

	jobID, resumeID, err := parseResumeParams(c)
	if err != nil {
		respondErr(c, err)
		return
	}

	key, err := h.keys.Key(ctx, workspaceID)
	if err != nil {
		respondErr(c, err)
		return
	}
	if !suspend.NewSigner(key).Verify(jobID, resumeID, c.Param("secret")) {
		respondErr(c, werr.PermissionDenied("invalid resume signature"))
		return
	}

	j, err := h.queue.Get(ctx, jobID)
	if err != nil {
		respondErr(c, err)
		return
	}
	flowStepID := suspendedStepID(j.FlowStatus)
	if flowStepID == "" {
		respondErr(c, werr.BadRequest("job is not currently suspended"))
		return
	}

	approver := c.Query("approver")
	if approver == "" {
		approver = "anonymous"
	}

	cfg, triggeredBy, err := h.policy.SuspendConfig(ctx, jobID, flowStepID)
	if err != nil {
		respondErr(c, err)
		return
	}
	if !suspend.CanApprove(triggeredBy, approver, false, cfg) {
		respondErr(c, werr.PermissionDenied("self-approval is disabled for this step"))
		return
	}

	payload, err := decodeResumePayload(c.Query("payload"))
	if err != nil {
		respondErr(c, err)
		return
	}

	if err := h.suspend.InsertEvent(ctx, jobID, resumeID, flowStepID, approved, approver, payload); err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// JobSignature serves GET /w/:wid/jobs/job_signature/:job_id/:resume_id,
// returning the hex HMAC a script uses to construct its own resume URL
// (§10, self-approval flows).
func (h *ResumeHandlers) JobSignature(c *gin.Context) {
	ctx := c.Request.Context()
	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		respondErr(c, werr.BadRequest("invalid job_id: "+err.Error()))
		return
	}
	resumeID64, err := strconv.ParseInt(c.Param("resume_id"), 10, 32)
	if err != nil {
		respondErr(c, werr.BadRequest("invalid resume_id: "+err.Error()))
		return
	}

	key, err := h.keys.Key(ctx, c.Param("workspace"))
	if err != nil {
		respondErr(c, err)
		return
	}

	sig := suspend.NewSigner(key).Sign(jobID, int32(resumeID64))
	c.JSON(http.StatusOK, gin.H{"signature": sig})
}

func parseResumeParams(c *gin.Context) (uuid.UUID, int32, error) {
	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		return uuid.Nil, 0, werr.BadRequest("invalid job_id: " + err.Error())
	}
	resumeID64, err := strconv.ParseInt(c.Param("resume_id"), 10, 32)
	if err != nil {
		return uuid.Nil, 0, werr.BadRequest("invalid resume_id: " + err.Error())
	}
	return jobID, int32(resumeID64), nil
}

// suspendedStepID scans a job's serialized flow.Status for the module
// currently blocked on approval events, returning "" if none is (§4.5,
// §3.3's ModuleStatusWaitingForEvents).
func suspendedStepID(flowStatus []byte) string {
	if len(flowStatus) == 0 {
		return ""
	}
	var status flow.Status
	if err := json.Unmarshal(flowStatus, &status); err != nil {
		return ""
	}
	for _, mod := range status.Modules {
		if mod.Kind == flow.ModuleStatusWaitingForEvents {
			return mod.ID
		}
	}
	return ""
}

// decodeResumePayload decodes the resume link's URL-safe base64 JSON
// payload query param (§6); a missing param decodes to nil per spec.
func decodeResumePayload(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(raw)
	if err != nil {
		data, err = base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, werr.BadRequest("invalid payload encoding: " + err.Error())
		}
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, werr.BadRequest("invalid payload JSON: " + err.Error())
	}
	return payload, nil
}
