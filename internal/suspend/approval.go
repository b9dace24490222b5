package suspend

import "github.com/smilemakc/wmcore/internal/domain/flow"

// CanApprove is the single self-approval rule (§4.5) every surface that can
// resolve a pending approval must call identically: the public signed resume
// link and the authenticated owner/admin endpoint alike. A prior version of
// this logic let the triggering user approve their own suspended step
// whenever the check happened to run on the public link path, because that
// path had no notion of "is this caller an admin" and skipped the
// self-approval check entirely — the historical bug §4.5 calls out. Both
// callers now resolve isAdmin however they can (false on the anonymous
// link unless the caller is independently known to be a workspace admin)
// and run it through this one function.
func CanApprove(triggeredBy, approver string, isAdmin bool, cfg *flow.SuspendConfig) bool {
	if approver != triggeredBy {
		return true
	}
	if cfg == nil || !cfg.SelfApprovalDisabled {
		return true
	}
	return isAdmin && cfg.AdminBypass
}
