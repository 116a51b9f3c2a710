package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Store loads compliance rules from the backing store.
type Store interface {
	// ListForFeature returns user-specific rules for the given user plus all
	// wildcard rules for the feature, newest first.
	ListForFeature(ctx context.Context, userID, feature string) ([]Rule, error)
}

// Gate evaluates jurisdiction and per-user feature restrictions.
type Gate struct {
	store  Store
	logger *slog.Logger
}

// NewGate constructs a Gate.
func NewGate(store Store, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{store: store, logger: logger}
}

// Check returns the verdict for one (user, feature) pair. With no applicable
// rule the feature is allowed, consistent with the policy engine's fail-open
// default. A user-specific rule wins over any wildcard rule; among wildcard
// rules the newest one whose geo filter matches the context applies.
func (g *Gate) Check(ctx context.Context, userID, feature string, geo GeoContext) (Verdict, error) {
	rules, err := g.store.ListForFeature(ctx, userID, feature)
	if err != nil {
		return Verdict{}, fmt.Errorf("compliance: list rules for %q: %w", feature, err)
	}

	country := NormalizeCountry(geo.Country)
	region := strings.ToUpper(strings.TrimSpace(geo.Region))

	var wildcard *Rule
	for i := range rules {
		rule := rules[i]
		if !rule.Wildcard() {
			if rule.UserID == userID {
				return verdictFrom(rule), nil
			}
			continue
		}
		if wildcard != nil {
			continue // rules arrive newest first, keep the first match
		}
		if ruleMatchesGeo(rule, country, region) {
			wildcard = &rules[i]
		}
	}
	if wildcard != nil {
		return verdictFrom(*wildcard), nil
	}
	return Verdict{Allowed: true}, nil
}

// BatchCheck returns per-feature verdicts for one user.
func (g *Gate) BatchCheck(ctx context.Context, userID string, features []string, geo GeoContext) (map[string]Verdict, error) {
	verdicts := make(map[string]Verdict, len(features))
	for _, feature := range features {
		verdict, err := g.Check(ctx, userID, feature, geo)
		if err != nil {
			return nil, err
		}
		verdicts[feature] = verdict
	}
	return verdicts, nil
}

func ruleMatchesGeo(rule Rule, country, region string) bool {
	if rule.Country != "" && NormalizeCountry(rule.Country) != country {
		return false
	}
	if rule.Region != "" && !strings.EqualFold(rule.Region, region) {
		return false
	}
	return true
}

func verdictFrom(rule Rule) Verdict {
	return Verdict{
		Allowed:      rule.Allowed,
		Restrictions: append([]string(nil), rule.Restrictions...),
		Message:      rule.Reason,
	}
}
