package guard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vesper-social/vesper/internal/shared"
)

func TestPrincipalMiddlewareParsesHeaders(t *testing.T) {
	var got *shared.Principal
	handler := Principal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.PrincipalFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.Header.Set(HeaderUser, "u1")
	req.Header.Set(HeaderRole, "manager")
	req.Header.Set(HeaderTier, "premium")
	req.Header.Set(HeaderCountry, "DE")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	require.Equal(t, "u1", got.ID)
	require.Equal(t, "manager", got.RoleName)
	require.Equal(t, "premium", got.Tier)
	require.Equal(t, "DE", got.Country)
}

func TestPrincipalMiddlewareAnonymousWithoutUserHeader(t *testing.T) {
	var got *shared.Principal
	handler := Principal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.PrincipalFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/feed", nil))
	require.True(t, got.Anonymous())
}

func TestRequireDeniedStatusCodes(t *testing.T) {
	f := newFixture()
	mw := Middleware{Guard: f.guard}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Anonymous request gets 401.
	rec := httptest.NewRecorder()
	mw.Require(RouteSpec{Name: "feed", Feature: "feed"})(next).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var dec Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dec))
	require.Equal(t, ReasonUnauthenticated, dec.Reason)

	// Authenticated but under-privileged request gets 403.
	req := httptest.NewRequest(http.MethodPost, "/admin/managers", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), alice()))
	rec = httptest.NewRecorder()
	mw.Require(RouteSpec{Name: "admin", RequiredRole: "admin", ExactRole: true})(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAttachesDecisionToContext(t *testing.T) {
	f := newFixture()
	f.engine.outcome.Restrictions = []string{"rate_limited"}
	mw := Middleware{Guard: f.guard}

	var got Decision
	var ok bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = DecisionFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/messaging", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), alice()))
	rec := httptest.NewRecorder()
	mw.Require(RouteSpec{Name: "messaging", Feature: "messaging"})(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, ok)
	require.True(t, got.Allowed)
	require.Equal(t, []string{"rate_limited"}, got.Restrictions)
}
