package guard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vesper-social/vesper/internal/abtest"
	"github.com/vesper-social/vesper/internal/audit"
	"github.com/vesper-social/vesper/internal/compliance"
	"github.com/vesper-social/vesper/internal/observability"
	"github.com/vesper-social/vesper/internal/policy"
	"github.com/vesper-social/vesper/internal/rbac"
	"github.com/vesper-social/vesper/internal/shared"
)

// Resolver is the permission-resolution dependency.
type Resolver interface {
	Resolve(ctx context.Context, p *shared.Principal) (rbac.Resolution, error)
}

// RoleLookup is the role-registry dependency.
type RoleLookup interface {
	Get(ctx context.Context, name string) (rbac.Role, error)
}

// PolicyEngine is the feature-policy dependency.
type PolicyEngine interface {
	Evaluate(ctx context.Context, feature string, attrs map[string]any) (policy.Outcome, error)
}

// ComplianceGate is the jurisdiction-restriction dependency.
type ComplianceGate interface {
	Check(ctx context.Context, userID, feature string, geo compliance.GeoContext) (compliance.Verdict, error)
}

// Targeter is the experiment-assignment dependency.
type Targeter interface {
	ForFeature(ctx context.Context, feature, userID string, attrs map[string]any) (abtest.Assignment, bool, error)
}

// Recorder is the audit dependency.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Guard composes resolver, compliance gate, policy engine and experiment
// targeting into a single access decision.
type Guard struct {
	resolver Resolver
	roles    RoleLookup
	engine   PolicyEngine
	gate     ComplianceGate
	targeter Targeter
	recorder Recorder
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New constructs a Guard. Metrics may be nil.
func New(resolver Resolver, roles RoleLookup, engine PolicyEngine, gate ComplianceGate, targeter Targeter, recorder Recorder, metrics *observability.Metrics, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		resolver: resolver,
		roles:    roles,
		engine:   engine,
		gate:     gate,
		targeter: targeter,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger,
	}
}

type trace struct {
	consulted []string
	skipped   []string
}

// Decide runs the decision state machine for one request. The sub-evaluators
// individually fail open, but any unexpected error or panic inside them makes
// the overall decision unreliable, so the orchestrator converts it into a
// denial with reason evaluation_error. Exactly one audit record is emitted
// per gated decision; public routes are allowed without audit to limit log
// volume.
func (g *Guard) Decide(ctx context.Context, p *shared.Principal, spec RouteSpec, rctx RequestContext) Decision {
	start := time.Now()

	if spec.Public {
		dec := Decision{Allowed: true, Reason: ReasonPublic}
		g.observe(dec, start)
		return dec
	}

	dec, tr, err := g.evaluate(ctx, p, spec, rctx)
	if err != nil {
		g.logger.Error("access evaluation failed",
			slog.String("target", spec.Name),
			slog.Any("error", err))
		dec = Decision{Allowed: false, Reason: ReasonEvaluationError, Feature: spec.Feature}
	}

	g.audit(ctx, p, spec, rctx, dec, tr)
	g.observe(dec, start)
	return dec
}

func (g *Guard) evaluate(ctx context.Context, p *shared.Principal, spec RouteSpec, rctx RequestContext) (dec Decision, tr trace, err error) {
	defer func() {
		if r := recover(); r != nil {
			dec = Decision{}
			err = fmt.Errorf("guard: panic in sub-evaluator: %v: %w", r, shared.ErrEvaluation)
		}
	}()

	dec = Decision{Feature: spec.Feature}

	if p.Anonymous() {
		dec.Reason = ReasonUnauthenticated
		return dec, tr, nil
	}

	res, err := g.resolver.Resolve(ctx, p)
	if err != nil {
		return Decision{}, tr, fmt.Errorf("guard: resolve: %w", err)
	}

	if spec.RequiredRole != "" {
		required, err := g.roles.Get(ctx, spec.RequiredRole)
		if err != nil {
			return Decision{}, tr, fmt.Errorf("guard: required role: %w", err)
		}
		if !res.Satisfies(required, spec.ExactRole) {
			dec.Reason = ReasonInsufficientRole
			dec.RequiredRole = required.Name
			return dec, tr, nil
		}
	}
	if spec.RequiredPermission != "" && !res.Has(spec.RequiredPermission) {
		dec.Reason = ReasonInsufficientPerm
		dec.RequiredPermission = spec.RequiredPermission
		return dec, tr, nil
	}

	if spec.Feature == "" {
		dec.Allowed = true
		dec.Reason = ReasonOK
		return dec, tr, nil
	}

	geo := compliance.GeoContext{Country: rctx.Country, Region: rctx.Region}
	if geo.Country == "" {
		geo.Country = p.Country
	}
	if geo.Region == "" {
		geo.Region = p.Region
	}
	verdict, err := g.gate.Check(ctx, p.ID, spec.Feature, geo)
	if err != nil {
		return Decision{}, tr, fmt.Errorf("guard: compliance: %w", err)
	}
	if !verdict.Allowed {
		dec.Reason = ReasonComplianceRestricted
		dec.Restrictions = verdict.Restrictions
		return dec, tr, nil
	}

	attrs := evaluationAttributes(p, rctx)
	outcome, err := g.engine.Evaluate(ctx, spec.Feature, attrs)
	if err != nil {
		return Decision{}, tr, fmt.Errorf("guard: policy: %w", err)
	}
	tr.consulted = outcome.Matched
	tr.skipped = outcome.Skipped
	if !outcome.Allowed {
		dec.Reason = ReasonPolicyRestricted
		dec.Restrictions = outcome.Restrictions
		return dec, tr, nil
	}
	// Partial allow: restrictions ride along on an allowed decision.
	dec.Restrictions = outcome.Restrictions

	assignment, exists, err := g.targeter.ForFeature(ctx, spec.Feature, p.ID, attrs)
	if err != nil {
		return Decision{}, tr, fmt.Errorf("guard: targeting: %w", err)
	}
	if exists {
		dec.Variant = assignment.Variant
	}

	dec.Allowed = true
	dec.Reason = ReasonOK
	return dec, tr, nil
}

// audit emits the single audit record for a gated decision. Allowed
// decisions on role-gated routes without a feature are not feature-scoped
// and are skipped; every denial is recorded.
func (g *Guard) audit(ctx context.Context, p *shared.Principal, spec RouteSpec, rctx RequestContext, dec Decision, tr trace) {
	if dec.Allowed && spec.Feature == "" {
		return
	}
	result := audit.ResultDenied
	if dec.Allowed {
		result = audit.ResultAllowed
	}
	userID := ""
	if p != nil {
		userID = p.ID
	}
	entryCtx := map[string]any{"target": spec.Name}
	if len(tr.skipped) > 0 {
		entryCtx["skippedPolicies"] = tr.skipped
	}
	if len(dec.Restrictions) > 0 {
		entryCtx["restrictions"] = dec.Restrictions
	}
	entry := audit.Entry{
		Type:      audit.TypeAccessDecision,
		UserID:    userID,
		Feature:   spec.Feature,
		Result:    result,
		Reason:    dec.Reason,
		Context:   entryCtx,
		Policies:  tr.consulted,
		IP:        rctx.IP,
		UserAgent: rctx.UserAgent,
		Country:   rctx.Country,
		Region:    rctx.Region,
	}
	if err := g.recorder.Record(ctx, entry); err != nil {
		g.logger.Error("audit record failed",
			slog.String("target", spec.Name),
			slog.String("result", result),
			slog.Any("error", err))
	}
}

func (g *Guard) observe(dec Decision, start time.Time) {
	if g.metrics == nil {
		return
	}
	result := audit.ResultDenied
	if dec.Allowed {
		result = audit.ResultAllowed
	}
	g.metrics.ObserveDecision(result, dec.Reason, time.Since(start))
}

func evaluationAttributes(p *shared.Principal, rctx RequestContext) map[string]any {
	attrs := p.Attributes()
	if rctx.Country != "" {
		attrs["country"] = rctx.Country
	}
	if rctx.Region != "" {
		attrs["region"] = rctx.Region
	}
	attrs["ip"] = rctx.IP
	attrs["userAgent"] = rctx.UserAgent
	return attrs
}
