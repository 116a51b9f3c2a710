package shared

import "time"

// Principal describes the actor behind a request. A nil *Principal means the
// request is anonymous; protected routes treat that as unauthenticated.
type Principal struct {
	ID         string
	RoleName   string
	Country    string
	Region     string
	Tier       string
	TrustScore float64
	CreatedAt  time.Time
}

// Anonymous reports whether the principal carries no identity.
func (p *Principal) Anonymous() bool {
	return p == nil || p.ID == ""
}

// Attributes flattens the principal into the attribute map consumed by
// policy target criteria and rule predicates.
func (p *Principal) Attributes() map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return map[string]any{
		"userId":     p.ID,
		"role":       p.RoleName,
		"country":    p.Country,
		"region":     p.Region,
		"tier":       p.Tier,
		"trustScore": p.TrustScore,
		"createdAt":  p.CreatedAt,
	}
}
