package guard

// Decision reason codes. Machine-readable; denial responses carry these plus
// the satisfying role or permission where applicable, but never the id of the
// specific policy or compliance rule that fired.
const (
	ReasonPublic               = "public"
	ReasonOK                   = "ok"
	ReasonUnauthenticated      = "unauthenticated"
	ReasonInsufficientRole     = "insufficient_role"
	ReasonInsufficientPerm     = "insufficient_permission"
	ReasonComplianceRestricted = "compliance_restricted"
	ReasonPolicyRestricted     = "policy_restricted"
	ReasonEvaluationError      = "evaluation_error"
)

// Decision is the composed allow/deny answer for one (principal, target)
// pair. A partial allow, such as a feature that is usable but rate-limited,
// is Allowed=true with a non-empty restriction list.
type Decision struct {
	Allowed            bool     `json:"allowed"`
	Reason             string   `json:"reason"`
	RequiredRole       string   `json:"requiredRole,omitempty"`
	RequiredPermission string   `json:"requiredPermission,omitempty"`
	Restrictions       []string `json:"restrictions,omitempty"`
	Variant            string   `json:"variant,omitempty"`
	Feature            string   `json:"feature,omitempty"`
}

// RouteSpec declares what a route or feature requires. Routes declare their
// requirements here instead of re-implementing checks in ad-hoc middleware.
type RouteSpec struct {
	// Name identifies the target in audit records, typically the route
	// pattern or the feature name.
	Name string
	// Public routes are always allowed and never audited.
	Public bool
	// RequiredRole gates by role. With ExactRole set the check compares
	// names only; admin-only surfaces use this so a future role inserted
	// above admin cannot satisfy them.
	RequiredRole string
	ExactRole    bool
	// RequiredPermission gates by a single permission name.
	RequiredPermission string
	// Feature links the route to a gated feature, enabling compliance,
	// policy and experiment evaluation.
	Feature string
}

// RequestContext carries per-request attributes from the route layer: the
// client address, agent and the geo attributes derived by the upstream
// geo-IP collaborator.
type RequestContext struct {
	IP        string
	UserAgent string
	Country   string
	Region    string
}
