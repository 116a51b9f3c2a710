package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vesper-social/vesper/internal/shared"
)

type stubPolicyStore struct {
	policies []Policy
	err      error
}

func (s *stubPolicyStore) ListActiveByFeature(ctx context.Context, feature string) ([]Policy, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Policy, 0, len(s.policies))
	for _, p := range s.policies {
		if p.Feature == feature && p.Status == StatusActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubPolicyStore) Get(ctx context.Context, id string) (Policy, error) {
	for _, p := range s.policies {
		if p.ID == id {
			return p, nil
		}
	}
	return Policy{}, shared.ErrNotFound
}

func TestEvaluateNoPoliciesFailsOpen(t *testing.T) {
	engine := NewEngine(&stubPolicyStore{}, nil)

	out, err := engine.Evaluate(context.Background(), "messaging", map[string]any{"userId": "u1"})
	require.NoError(t, err)
	require.True(t, out.Allowed)
	require.Empty(t, out.Restrictions)
	require.Empty(t, out.DecidedBy)
}

func TestEvaluateFirstTruePredicateDecides(t *testing.T) {
	now := time.Now()
	store := &stubPolicyStore{policies: []Policy{
		{
			ID: "p-low", Feature: "payments", Priority: PriorityLow, Status: StatusActive,
			Allow: true, Restrictions: []string{"daily_cap"}, UpdatedAt: now,
		},
		{
			ID: "p-high", Feature: "payments", Priority: PriorityHigh, Status: StatusActive,
			Rules: Rule{Compare: &Compare{Attr: "country", Op: OpEq, Value: "FR"}},
			Allow: false, UpdatedAt: now,
		},
	}}
	engine := NewEngine(store, nil)

	// The HIGH policy targets everyone but its predicate is false for a US
	// principal, so it falls through to the LOW always-true policy.
	out, err := engine.Evaluate(context.Background(), "payments", map[string]any{"country": "US"})
	require.NoError(t, err)
	require.True(t, out.Allowed)
	require.Equal(t, "p-low", out.DecidedBy)
	require.Equal(t, []string{"daily_cap"}, out.Restrictions)
	require.Equal(t, []string{"p-high", "p-low"}, out.Matched)

	// For a French principal the HIGH policy decides and the LOW one is
	// never reached.
	out, err = engine.Evaluate(context.Background(), "payments", map[string]any{"country": "FR"})
	require.NoError(t, err)
	require.False(t, out.Allowed)
	require.Equal(t, "p-high", out.DecidedBy)
}

func TestEvaluatePriorityTieBrokenByUpdatedAt(t *testing.T) {
	now := time.Now()
	store := &stubPolicyStore{policies: []Policy{
		{ID: "p-old", Feature: "search", Priority: PriorityHigh, Status: StatusActive, Allow: true, UpdatedAt: now.Add(-time.Hour)},
		{ID: "p-new", Feature: "search", Priority: PriorityHigh, Status: StatusActive, Allow: false, UpdatedAt: now},
	}}
	engine := NewEngine(store, nil)

	out, err := engine.Evaluate(context.Background(), "search", map[string]any{})
	require.NoError(t, err)
	require.Equal(t, "p-new", out.DecidedBy)
	require.False(t, out.Allowed)
}

func TestEvaluateTargetCriteriaFilter(t *testing.T) {
	store := &stubPolicyStore{policies: []Policy{
		{
			ID: "p-premium", Feature: "livestream", Priority: PriorityHigh, Status: StatusActive,
			TargetCriteria: Criteria{"tier": "premium"}, Allow: false,
		},
	}}
	engine := NewEngine(store, nil)

	out, err := engine.Evaluate(context.Background(), "livestream", map[string]any{"tier": "free"})
	require.NoError(t, err)
	require.True(t, out.Allowed, "non-targeted principal must fall through")
	require.Empty(t, out.Matched)
}

func TestEvaluateMalformedPolicyIsIsolated(t *testing.T) {
	store := &stubPolicyStore{policies: []Policy{
		{
			ID: "p-broken", Feature: "messaging", Priority: PriorityHigh, Status: StatusActive,
			Rules: Rule{Compare: &Compare{Attr: "nonexistent", Op: OpEq, Value: "x"}},
			Allow: false,
		},
		{
			ID: "p-good", Feature: "messaging", Priority: PriorityLow, Status: StatusActive,
			Allow: true, Restrictions: []string{"rate_limited"},
		},
	}}
	engine := NewEngine(store, nil)

	out, err := engine.Evaluate(context.Background(), "messaging", map[string]any{"userId": "u1"})
	require.NoError(t, err)
	require.True(t, out.Allowed)
	require.Equal(t, "p-good", out.DecidedBy)
	require.Equal(t, []string{"p-broken"}, out.Skipped)
}

func TestEvaluateStoreErrorSurfaces(t *testing.T) {
	engine := NewEngine(&stubPolicyStore{err: context.DeadlineExceeded}, nil)

	_, err := engine.Evaluate(context.Background(), "messaging", map[string]any{})
	require.Error(t, err)
}

func TestSandboxEvaluatesDraftPolicies(t *testing.T) {
	store := &stubPolicyStore{policies: []Policy{
		{
			ID: "p-draft", Feature: "payments", Priority: PriorityHigh, Status: StatusDraft,
			Rules:          Rule{Compare: &Compare{Attr: "trustScore", Op: OpLt, Value: 0.2}},
			TargetCriteria: Criteria{"tier": "free"},
			Allow:          false,
		},
	}}
	engine := NewEngine(store, nil)

	res, err := engine.Sandbox(context.Background(), "p-draft", map[string]any{"tier": "free", "trustScore": 0.1})
	require.NoError(t, err)
	require.True(t, res.TargetMatched)
	require.True(t, res.RuleMatched)
	require.False(t, res.WouldAllow)

	res, err = engine.Sandbox(context.Background(), "p-draft", map[string]any{"tier": "premium", "trustScore": 0.1})
	require.NoError(t, err)
	require.False(t, res.TargetMatched)
	require.False(t, res.RuleMatched)

	res, err = engine.Sandbox(context.Background(), "p-draft", map[string]any{"tier": "free"})
	require.NoError(t, err)
	require.True(t, res.TargetMatched)
	require.NotEmpty(t, res.Error, "missing attribute should be reported, not swallowed")
}
