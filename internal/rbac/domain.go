package rbac

import (
	"strings"
	"time"
)

// Role represents a high-level permission grouping. Level is monotonic with
// privilege: admin > manager > user.
type Role struct {
	Name        string
	Description string
	Level       int
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission represents an atomic capability over a resource/action pair.
type Permission struct {
	Name        string
	Resource    string
	Action      string
	Description string
}

// OverrideType classifies admin-issued user overrides.
type OverrideType string

// Supported override types. Only tier and trust overrides carry permission
// grants or revokes; the remaining types are stored for the monetization and
// wallet surfaces and are not interpreted by the resolver.
const (
	OverridePremium      OverrideType = "premium"
	OverrideFee          OverrideType = "fee"
	OverrideMonetization OverrideType = "monetization"
	OverrideTier         OverrideType = "tier"
	OverrideTrust        OverrideType = "trust"
)

// UserOverride is an admin-issued adjustment scoped to a single user.
// Multiple overrides may exist per (user, type); for the same key the most
// recent one wins.
type UserOverride struct {
	ID        string
	UserID    string
	Type      OverrideType
	Key       string
	Value     string
	Reason    string
	AdminID   string
	CreatedAt time.Time
}

// Override value verbs understood by the resolver.
const (
	overrideGrant  = "grant"
	overrideRevoke = "revoke"
)

// parseOverrideValue splits "grant:<perm>" / "revoke:<perm>" into its parts.
// Returns ok=false for values the resolver does not understand.
func parseOverrideValue(value string) (verb, perm string, ok bool) {
	verb, perm, found := strings.Cut(strings.TrimSpace(value), ":")
	if !found {
		return "", "", false
	}
	verb = strings.ToLower(strings.TrimSpace(verb))
	perm = strings.ToLower(strings.TrimSpace(perm))
	if perm == "" || (verb != overrideGrant && verb != overrideRevoke) {
		return "", "", false
	}
	return verb, perm, true
}

// Resolution is the effective role and permission set computed for a principal.
type Resolution struct {
	RoleName    string   `json:"roleName"`
	Level       int      `json:"level"`
	Permissions []string `json:"permissions"`
}

// Has reports whether the resolution carries the given permission.
func (r Resolution) Has(perm string) bool {
	perm = strings.ToLower(strings.TrimSpace(perm))
	for _, p := range r.Permissions {
		if strings.ToLower(p) == perm {
			return true
		}
	}
	return false
}

// Satisfies reports whether the resolution meets the required role. Exact
// checks compare names only, so a future role inserted above admin cannot
// satisfy an admin-exact route. Hierarchical checks pass when the resolved
// level meets the required level or the names match.
func (r Resolution) Satisfies(required Role, exact bool) bool {
	if exact {
		return strings.EqualFold(r.RoleName, required.Name)
	}
	return r.Level >= required.Level || strings.EqualFold(r.RoleName, required.Name)
}
