package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vesper-social/vesper/internal/abtest"
	"github.com/vesper-social/vesper/internal/audit"
	"github.com/vesper-social/vesper/internal/compliance"
	"github.com/vesper-social/vesper/internal/guard"
	"github.com/vesper-social/vesper/internal/observability"
	"github.com/vesper-social/vesper/internal/policy"
	"github.com/vesper-social/vesper/internal/rbac"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	GuardMiddleware   guard.Middleware
	AccessHandler     *guard.Handler
	RBACHandler       *rbac.Handler
	PolicyHandler     *policy.Handler
	ComplianceHandler *compliance.Handler
	ABTestHandler     *abtest.Handler
	AuditHandler      *audit.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Vesper defaults. The admin
// surface is gated by the guard itself: exact admin role, with the audit
// timeline additionally requiring the audit permission.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(params.GuardMiddleware.Require(guard.SpecAccess))
		params.AccessHandler.MountRoutes(r)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(params.GuardMiddleware.Require(guard.SpecAdmin))
			params.RBACHandler.MountRoutes(r)
			params.PolicyHandler.MountRoutes(r)
			params.ComplianceHandler.MountRoutes(r)
			params.ABTestHandler.MountRoutes(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(params.GuardMiddleware.Require(guard.SpecAuditView))
			params.AuditHandler.MountRoutes(r)
		})
	})

	return r
}
