package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vesper-social/vesper/internal/abtest"
	"github.com/vesper-social/vesper/internal/audit"
	"github.com/vesper-social/vesper/internal/compliance"
	"github.com/vesper-social/vesper/internal/policy"
	"github.com/vesper-social/vesper/internal/rbac"
	"github.com/vesper-social/vesper/internal/shared"
)

type stubResolver struct {
	res   rbac.Resolution
	err   error
	panic bool
}

func (s *stubResolver) Resolve(ctx context.Context, p *shared.Principal) (rbac.Resolution, error) {
	if s.panic {
		panic("resolver blew up")
	}
	return s.res, s.err
}

type stubRoles struct {
	roles map[string]rbac.Role
}

func (s *stubRoles) Get(ctx context.Context, name string) (rbac.Role, error) {
	role, ok := s.roles[name]
	if !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	return role, nil
}

type stubEngine struct {
	outcome policy.Outcome
	err     error
}

func (s *stubEngine) Evaluate(ctx context.Context, feature string, attrs map[string]any) (policy.Outcome, error) {
	return s.outcome, s.err
}

type stubGate struct {
	verdict compliance.Verdict
	err     error
}

func (s *stubGate) Check(ctx context.Context, userID, feature string, geo compliance.GeoContext) (compliance.Verdict, error) {
	return s.verdict, s.err
}

type stubTargeter struct {
	assignment abtest.Assignment
	exists     bool
	err        error
}

func (s *stubTargeter) ForFeature(ctx context.Context, feature, userID string, attrs map[string]any) (abtest.Assignment, bool, error) {
	return s.assignment, s.exists, s.err
}

type stubRecorder struct {
	entries []audit.Entry
	err     error
}

func (s *stubRecorder) Record(ctx context.Context, entry audit.Entry) error {
	s.entries = append(s.entries, entry)
	return s.err
}

type fixture struct {
	resolver *stubResolver
	roles    *stubRoles
	engine   *stubEngine
	gate     *stubGate
	targeter *stubTargeter
	recorder *stubRecorder
	guard    *Guard
}

func newFixture() *fixture {
	f := &fixture{
		resolver: &stubResolver{res: rbac.Resolution{RoleName: "user", Level: 10, Permissions: []string{"posts.write"}}},
		roles: &stubRoles{roles: map[string]rbac.Role{
			"user":    {Name: "user", Level: 10},
			"manager": {Name: "manager", Level: 50},
			"admin":   {Name: "admin", Level: 100},
		}},
		engine:   &stubEngine{outcome: policy.Outcome{Allowed: true}},
		gate:     &stubGate{verdict: compliance.Verdict{Allowed: true}},
		targeter: &stubTargeter{},
		recorder: &stubRecorder{},
	}
	f.guard = New(f.resolver, f.roles, f.engine, f.gate, f.targeter, f.recorder, nil, nil)
	return f
}

func alice() *shared.Principal {
	return &shared.Principal{
		ID:        "u1",
		RoleName:  "user",
		Country:   "US",
		Tier:      "free",
		CreatedAt: time.Now().Add(-30 * 24 * time.Hour),
	}
}

func TestDecidePublicRouteNoAudit(t *testing.T) {
	f := newFixture()

	dec := f.guard.Decide(context.Background(), nil, RouteSpec{Name: "GET /healthz", Public: true}, RequestContext{})
	require.True(t, dec.Allowed)
	require.Equal(t, ReasonPublic, dec.Reason)
	require.Empty(t, f.recorder.entries, "public routes must not be audited")
}

func TestDecideAnonymousDenied(t *testing.T) {
	f := newFixture()
	spec := RouteSpec{Name: "feed", Feature: "feed"}

	dec := f.guard.Decide(context.Background(), nil, spec, RequestContext{})
	require.False(t, dec.Allowed)
	require.Equal(t, ReasonUnauthenticated, dec.Reason)
	require.Len(t, f.recorder.entries, 1)
	require.Equal(t, audit.ResultDenied, f.recorder.entries[0].Result)
}

func TestDecideInsufficientRole(t *testing.T) {
	f := newFixture()
	spec := RouteSpec{Name: "POST /admin/managers", RequiredRole: "admin", ExactRole: true}

	dec := f.guard.Decide(context.Background(), alice(), spec, RequestContext{})
	require.False(t, dec.Allowed)
	require.Equal(t, ReasonInsufficientRole, dec.Reason)
	require.Equal(t, "admin", dec.RequiredRole)

	require.Len(t, f.recorder.entries, 1)
	entry := f.recorder.entries[0]
	require.Equal(t, audit.ResultDenied, entry.Result)
	require.Equal(t, "u1", entry.UserID)
}

func TestDecideExactRoleRejectsHigherLevel(t *testing.T) {
	f := newFixture()
	f.resolver.res = rbac.Resolution{RoleName: "superadmin", Level: 200}
	spec := RouteSpec{Name: "admin", RequiredRole: "admin", ExactRole: true}

	dec := f.guard.Decide(context.Background(), alice(), spec, RequestContext{})
	require.False(t, dec.Allowed)
	require.Equal(t, ReasonInsufficientRole, dec.Reason)
}

func TestDecideHierarchicalRoleAcceptsHigherLevel(t *testing.T) {
	f := newFixture()
	f.resolver.res = rbac.Resolution{RoleName: "admin", Level: 100}
	spec := RouteSpec{Name: "reports", RequiredRole: "manager"}

	dec := f.guard.Decide(context.Background(), alice(), spec, RequestContext{})
	require.True(t, dec.Allowed)
	require.Equal(t, ReasonOK, dec.Reason)
	require.Empty(t, f.recorder.entries, "allowed non-feature decisions are not audited")
}

func TestDecideInsufficientPermission(t *testing.T) {
	f := newFixture()
	spec := RouteSpec{Name: "audit", RequiredPermission: "audit.view"}

	dec := f.guard.Decide(context.Background(), alice(), spec, RequestContext{})
	require.False(t, dec.Allowed)
	require.Equal(t, ReasonInsufficientPerm, dec.Reason)
	require.Equal(t, "audit.view", dec.RequiredPermission)
}

func TestDecideComplianceDeny(t *testing.T) {
	f := newFixture()
	f.gate.verdict = compliance.Verdict{Allowed: false, Restrictions: []string{"p2p"}}
	spec := RouteSpec{Name: "payments", Feature: "payments"}

	dec := f.guard.Decide(context.Background(), alice(), spec, RequestContext{Country: "US"})
	require.False(t, dec.Allowed)
	require.Equal(t, ReasonComplianceRestricted, dec.Reason)
	require.Equal(t, []string{"p2p"}, dec.Restrictions)

	require.Len(t, f.recorder.entries, 1)
	require.Equal(t, []string{"p2p"}, f.recorder.entries[0].Context["restrictions"])
}

func TestDecidePolicyDeny(t *testing.T) {
	f := newFixture()
	f.engine.outcome = policy.Outcome{Allowed: false, Restrictions: []string{"region_locked"}, Matched: []string{"p1"}, DecidedBy: "p1"}
	spec := RouteSpec{Name: "livestream", Feature: "livestream"}

	dec := f.guard.Decide(context.Background(), alice(), spec, RequestContext{})
	require.False(t, dec.Allowed)
	require.Equal(t, ReasonPolicyRestricted, dec.Reason)

	require.Len(t, f.recorder.entries, 1)
	require.Equal(t, []string{"p1"}, f.recorder.entries[0].Policies)
}

func TestDecidePartialAllowCarriesRestrictions(t *testing.T) {
	f := newFixture()
	f.engine.outcome = policy.Outcome{Allowed: true, Restrictions: []string{"rate_limited"}, Matched: []string{"p1"}, DecidedBy: "p1"}
	spec := RouteSpec{Name: "messaging", Feature: "messaging"}

	dec := f.guard.Decide(context.Background(), alice(), spec, RequestContext{})
	require.True(t, dec.Allowed)
	require.Equal(t, []string{"rate_limited"}, dec.Restrictions)

	require.Len(t, f.recorder.entries, 1, "feature-scoped allows are audited")
	require.Equal(t, audit.ResultAllowed, f.recorder.entries[0].Result)
}

func TestDecideAttachesVariant(t *testing.T) {
	f := newFixture()
	f.targeter.assignment = abtest.Assignment{TestID: "t1", Variant: "ranked_feed", InExperiment: true}
	f.targeter.exists = true
	spec := RouteSpec{Name: "feed", Feature: "feed"}

	dec := f.guard.Decide(context.Background(), alice(), spec, RequestContext{})
	require.True(t, dec.Allowed)
	require.Equal(t, "ranked_feed", dec.Variant)
}

func TestDecideResolverErrorFailsClosed(t *testing.T) {
	f := newFixture()
	f.resolver.err = errors.New("store down")
	spec := RouteSpec{Name: "feed", Feature: "feed"}

	dec := f.guard.Decide(context.Background(), alice(), spec, RequestContext{})
	require.False(t, dec.Allowed)
	require.Equal(t, ReasonEvaluationError, dec.Reason)

	require.Len(t, f.recorder.entries, 1)
	require.Equal(t, ReasonEvaluationError, f.recorder.entries[0].Reason)
}

func TestDecidePanicFailsClosed(t *testing.T) {
	f := newFixture()
	f.resolver.panic = true
	spec := RouteSpec{Name: "feed", Feature: "feed"}

	dec := f.guard.Decide(context.Background(), alice(), spec, RequestContext{})
	require.False(t, dec.Allowed)
	require.Equal(t, ReasonEvaluationError, dec.Reason)
	require.Len(t, f.recorder.entries, 1)
}

func TestDecideTargeterErrorFailsClosed(t *testing.T) {
	f := newFixture()
	f.targeter.err = errors.New("store down")
	spec := RouteSpec{Name: "feed", Feature: "feed"}

	dec := f.guard.Decide(context.Background(), alice(), spec, RequestContext{})
	require.False(t, dec.Allowed)
	require.Equal(t, ReasonEvaluationError, dec.Reason)
}

func TestDecideAuditFailureDoesNotChangeDecision(t *testing.T) {
	f := newFixture()
	f.recorder.err = errors.New("queue full")
	spec := RouteSpec{Name: "feed", Feature: "feed"}

	dec := f.guard.Decide(context.Background(), alice(), spec, RequestContext{})
	require.True(t, dec.Allowed)
}

func TestDecideSkippedPoliciesFlaggedInAudit(t *testing.T) {
	f := newFixture()
	f.engine.outcome = policy.Outcome{Allowed: true, Matched: []string{"p-bad"}, Skipped: []string{"p-bad"}}
	spec := RouteSpec{Name: "feed", Feature: "feed"}

	dec := f.guard.Decide(context.Background(), alice(), spec, RequestContext{})
	require.True(t, dec.Allowed)

	require.Len(t, f.recorder.entries, 1)
	require.Equal(t, []string{"p-bad"}, f.recorder.entries[0].Context["skippedPolicies"])
}

func TestDecideGeoFallsBackToPrincipal(t *testing.T) {
	f := newFixture()
	var seen compliance.GeoContext
	f.guard = New(f.resolver, f.roles, f.engine, gateFunc(func(ctx context.Context, userID, feature string, geo compliance.GeoContext) (compliance.Verdict, error) {
		seen = geo
		return compliance.Verdict{Allowed: true}, nil
	}), f.targeter, f.recorder, nil, nil)
	spec := RouteSpec{Name: "feed", Feature: "feed"}

	f.guard.Decide(context.Background(), alice(), spec, RequestContext{})
	require.Equal(t, "US", seen.Country, "empty header geo must fall back to the principal's country")

	f.guard.Decide(context.Background(), alice(), spec, RequestContext{Country: "CA"})
	require.Equal(t, "CA", seen.Country)
}

type gateFunc func(ctx context.Context, userID, feature string, geo compliance.GeoContext) (compliance.Verdict, error)

func (f gateFunc) Check(ctx context.Context, userID, feature string, geo compliance.GeoContext) (compliance.Verdict, error) {
	return f(ctx, userID, feature, geo)
}
