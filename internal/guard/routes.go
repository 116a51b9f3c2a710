package guard

import "github.com/vesper-social/vesper/internal/shared"

// Route specs for this service's own surface. The product backends declare
// their specs the same way and call the decision endpoint.
var (
	// SpecPublic covers health and metrics. Public routes are allowed for
	// any principal, including anonymous, and are not audited.
	SpecPublic = RouteSpec{Name: "public", Public: true}

	// SpecAccess is the decision endpoint itself: any authenticated
	// principal may ask for a decision about itself.
	SpecAccess = RouteSpec{Name: "/access"}

	// SpecAdmin gates the admin API. Exact-name check: only the admin role
	// qualifies, regardless of level.
	SpecAdmin = RouteSpec{Name: "/admin", RequiredRole: "admin", ExactRole: true}

	// SpecAuditView additionally requires the audit permission for the
	// timeline.
	SpecAuditView = RouteSpec{Name: "/admin/audit", RequiredRole: "admin", ExactRole: true, RequiredPermission: shared.PermAuditView}
)
