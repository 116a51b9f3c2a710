package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vesper-social/vesper/internal/shared"
)

// Store loads policies from the backing store.
type Store interface {
	ListActiveByFeature(ctx context.Context, feature string) ([]Policy, error)
	Get(ctx context.Context, id string) (Policy, error)
}

// Engine evaluates feature policies against a request context.
type Engine struct {
	store  Store
	logger *slog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(store Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// Evaluate runs the active policies for a feature in priority order. The
// first policy whose target criteria match and whose predicate evaluates
// true decides the outcome; a matching policy with a false predicate falls
// through to the next one. With no deciding policy the feature is allowed
// with no restrictions. A malformed policy is skipped and flagged so one bad
// rule cannot take down access control for the whole feature.
func (e *Engine) Evaluate(ctx context.Context, feature string, attrs map[string]any) (Outcome, error) {
	policies, err := e.store.ListActiveByFeature(ctx, feature)
	if err != nil {
		return Outcome{}, fmt.Errorf("policy: list for feature %q: %w", feature, err)
	}
	sortForEvaluation(policies)

	out := Outcome{Allowed: true}
	for _, pol := range policies {
		if !pol.TargetCriteria.Match(attrs) {
			continue
		}
		out.Matched = append(out.Matched, pol.ID)
		ok, err := pol.Rules.Evaluate(attrs)
		if err != nil {
			if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrNotFound) {
				out.Skipped = append(out.Skipped, pol.ID)
				e.logger.Warn("skipping malformed policy",
					slog.String("policy_id", pol.ID),
					slog.String("feature", feature),
					slog.Any("error", err))
				continue
			}
			return Outcome{}, fmt.Errorf("policy: evaluate %s: %w", pol.ID, err)
		}
		if !ok {
			continue
		}
		out.Allowed = pol.Allow
		out.Restrictions = append([]string(nil), pol.Restrictions...)
		out.DecidedBy = pol.ID
		return out, nil
	}
	return out, nil
}

// Sandbox evaluates a single policy by id against a context, regardless of
// the policy's status. It never participates in live decisions and emits no
// audit; operators use it to test DRAFT policies before activating them.
func (e *Engine) Sandbox(ctx context.Context, policyID string, attrs map[string]any) (SandboxResult, error) {
	pol, err := e.store.Get(ctx, policyID)
	if err != nil {
		return SandboxResult{}, err
	}
	res := SandboxResult{PolicyID: pol.ID, Status: pol.Status}
	res.TargetMatched = pol.TargetCriteria.Match(attrs)
	if !res.TargetMatched {
		return res, nil
	}
	matched, err := pol.Rules.Evaluate(attrs)
	if err != nil {
		res.Error = err.Error()
		return res, nil
	}
	res.RuleMatched = matched
	if matched {
		res.WouldAllow = pol.Allow
		res.Restrictions = append([]string(nil), pol.Restrictions...)
	}
	return res, nil
}

// SandboxResult reports what a policy would do for a hypothetical context.
type SandboxResult struct {
	PolicyID      string   `json:"policyId"`
	Status        Status   `json:"status"`
	TargetMatched bool     `json:"targetMatched"`
	RuleMatched   bool     `json:"ruleMatched"`
	WouldAllow    bool     `json:"wouldAllow"`
	Restrictions  []string `json:"restrictions,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// sortForEvaluation orders by priority descending, ties broken by most
// recently updated.
func sortForEvaluation(policies []Policy) {
	sort.SliceStable(policies, func(i, j int) bool {
		if policies[i].Priority.rank() != policies[j].Priority.rank() {
			return policies[i].Priority.rank() > policies[j].Priority.rank()
		}
		return policies[i].UpdatedAt.After(policies[j].UpdatedAt)
	})
}
