// Package api implements the external HTTP surface of §6: the push
// endpoints that enqueue a job (plain and wait-for-result variants,
// content-hash and inline-preview variants), and the public suspend/resume
// endpoints a signed link hits without session auth. Routes are gin
// handlers grouped the way the teacher's internal/infrastructure/api/rest
// handlers are (one handler struct per concern, registered against a
// gin.IRouter by the caller), translating internal/domain/werr kinds to
// HTTP status the way that package's errors.go translates its own error
// set.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/smilemakc/wmcore/internal/infrastructure/logger"
	"github.com/smilemakc/wmcore/internal/queue"
	"github.com/smilemakc/wmcore/internal/suspend"
)

// Handlers bundles every handler group this package exposes, so a caller
// wires one struct instead of juggling each one individually.
type Handlers struct {
	Run    *RunHandlers
	Resume *ResumeHandlers
}

// New builds every handler group. auth and policy are the narrow seams
// into the authentication and flow/script-definition layers this package
// depends on but does not implement (§1 treats both as external
// collaborators); waitCfg is zero-valued to accept Config's own defaults.
func New(q *queue.Queue, suspendSvc *suspend.Service, keys WorkspaceKeys, auth Authenticator, policy ApprovalPolicy, log *logger.Logger) *Handlers {
	if log == nil {
		log = logger.Default()
	}
	return &Handlers{
		Run:    NewRunHandlers(q, auth, log),
		Resume: NewResumeHandlers(q, suspendSvc, keys, policy, log),
	}
}

// Register mounts every route this package serves under r, matching the
// path shapes of §6 verbatim.
func (h *Handlers) Register(r gin.IRouter) {
	jobs := r.Group("/w/:workspace/jobs")
	jobs.POST("/run/p/*path", h.Run.RunScript)
	jobs.POST("/run/f/*path", h.Run.RunFlow)
	jobs.POST("/run_wait_result/p/*path", h.Run.RunScriptWaitResult)
	jobs.POST("/run_wait_result/f/*path", h.Run.RunFlowWaitResult)
	jobs.POST("/run/h/:hash", h.Run.RunByHash)
	jobs.POST("/run/preview", h.Run.RunPreview)
	jobs.POST("/run/preview_flow", h.Run.RunPreviewFlow)
	jobs.GET("/job_signature/:job_id/:resume_id", h.Resume.JobSignature)

	public := r.Group("/w/:workspace/jobs_u")
	public.GET("/resume/:job_id/:resume_id/:secret", h.Resume.Resume)
	public.POST("/resume/:job_id/:resume_id/:secret", h.Resume.Resume)
	public.GET("/cancel/:job_id/:resume_id/:secret", h.Resume.Cancel)
	public.POST("/cancel/:job_id/:resume_id/:secret", h.Resume.Cancel)
}
