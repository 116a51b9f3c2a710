package compliance

import (
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Rule restricts a feature for a specific user or, with an empty UserID, for
// everyone matching the geo filter (sanctions and jurisdiction rules). A
// user-specific rule always takes precedence over a wildcard rule for the
// same feature.
type Rule struct {
	ID           string
	UserID       string // empty means wildcard
	Feature      string
	Allowed      bool
	Restrictions []string
	Reason       string
	Country      string // wildcard geo filter, empty matches all
	Region       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Wildcard reports whether the rule applies by geo filter rather than user id.
func (r Rule) Wildcard() bool {
	return r.UserID == ""
}

// Verdict is the gate's answer for one (user, feature) pair.
type Verdict struct {
	Allowed      bool     `json:"allowed"`
	Restrictions []string `json:"restrictions,omitempty"`
	Message      string   `json:"message,omitempty"`
}

// GeoContext carries the request's derived geo attributes, produced by the
// upstream geo-IP collaborator.
type GeoContext struct {
	Country string
	Region  string
}

// NormalizeCountry canonicalizes an ISO country/region code. Unparseable
// input is kept as trimmed uppercase so lookups stay deterministic.
func NormalizeCountry(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	if region, err := language.ParseRegion(code); err == nil {
		return region.String()
	}
	return strings.ToUpper(code)
}
