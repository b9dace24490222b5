package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smilemakc/wmcore/internal/application/auth"
	"github.com/smilemakc/wmcore/internal/domain/flow"
	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/werr"
	"github.com/smilemakc/wmcore/internal/queue"
)

// DerivedWorkspaceKeys implements WorkspaceKeys by HMAC-deriving a
// per-workspace signing key from a single root secret, rather than storing
// one key per workspace — workspace management is out of scope (§1) and
// this needs no table to give every workspace a distinct, stable key.
type DerivedWorkspaceKeys struct {
	root []byte
}

func NewDerivedWorkspaceKeys(rootSecret string) *DerivedWorkspaceKeys {
	return &DerivedWorkspaceKeys{root: []byte(rootSecret)}
}

func (k *DerivedWorkspaceKeys) Key(_ context.Context, workspaceID string) (string, error) {
	if len(k.root) == 0 {
		return "", errors.New("workspace key root secret not configured")
	}
	mac := hmac.New(sha256.New, k.root)
	mac.Write([]byte(workspaceID))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// QueueApprovalPolicy implements ApprovalPolicy by reading the suspend
// block straight off the job row's own inline flow definition (§4.4: flow
// definitions travel with the job as raw_flow, there is no separate flow
// repository in scope), rather than resolving it from external flow
// storage.
type QueueApprovalPolicy struct {
	queue *queue.Queue
}

func NewQueueApprovalPolicy(q *queue.Queue) *QueueApprovalPolicy {
	return &QueueApprovalPolicy{queue: q}
}

func (p *QueueApprovalPolicy) SuspendConfig(ctx context.Context, jobID uuid.UUID, flowStepID string) (*flow.SuspendConfig, string, error) {
	j, err := p.queue.Get(ctx, jobID)
	if err != nil {
		return nil, "", err
	}
	if len(j.Runnable.RawFlow) == 0 {
		return nil, "", werr.BadRequest("job has no inline flow definition to check suspend policy against")
	}
	var def flow.Value
	if err := json.Unmarshal(j.Runnable.RawFlow, &def); err != nil {
		return nil, "", werr.Internal("decode flow definition: " + err.Error())
	}
	for _, mod := range def.Modules {
		if mod.ID == flowStepID {
			return mod.Suspend, j.Caller.CreatedBy, nil
		}
	}
	return nil, "", werr.NotFound("flow step " + flowStepID + " not found in job's flow definition")
}

// JWTAuthenticator implements Authenticator against the builtin JWT access
// tokens internal/application/auth issues (§1 treats session/RBAC
// management itself as out of scope; this only turns an already-validated
// token into the caller identity the push endpoints need).
type JWTAuthenticator struct {
	jwt *auth.JWTService
}

func NewJWTAuthenticator(jwt *auth.JWTService) *JWTAuthenticator {
	return &JWTAuthenticator{jwt: jwt}
}

func (a *JWTAuthenticator) Caller(c *gin.Context) (job.CallerIdentity, error) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return job.CallerIdentity{}, werr.NotAuthorized("missing bearer token")
	}

	claims, err := a.jwt.ValidateAccessToken(token)
	if err != nil {
		return job.CallerIdentity{}, werr.PermissionDenied("invalid access token: " + err.Error())
	}

	permissionedAs := "u/" + claims.Username
	return job.CallerIdentity{
		CreatedBy:           permissionedAs,
		PermissionedAs:      permissionedAs,
		PermissionedAsEmail: claims.Email,
	}, nil
}
