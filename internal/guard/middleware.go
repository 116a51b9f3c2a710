package guard

import (
	"log/slog"
	"net/http"

	"github.com/vesper-social/vesper/internal/platform/httpx"
	"github.com/vesper-social/vesper/internal/shared"
)

// Headers populated by the upstream gateway: identity from the auth
// collaborator, geo attributes from the geo-IP collaborator.
const (
	HeaderUser    = "X-Vesper-User"
	HeaderRole    = "X-Vesper-Role"
	HeaderTier    = "X-Vesper-Tier"
	HeaderCountry = "X-Geo-Country"
	HeaderRegion  = "X-Geo-Region"
)

// Principal materializes the gateway identity headers into a
// shared.Principal on the request context. Requests without the user header
// stay anonymous.
func Principal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(HeaderUser)
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		p := &shared.Principal{
			ID:       userID,
			RoleName: r.Header.Get(HeaderRole),
			Tier:     r.Header.Get(HeaderTier),
			Country:  r.Header.Get(HeaderCountry),
			Region:   r.Header.Get(HeaderRegion),
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
	})
}

// Middleware wires the guard into chi route groups.
type Middleware struct {
	Guard  *Guard
	Logger *slog.Logger
}

// Require runs the guard for every request in the group and rejects denied
// ones. Allowed decisions are attached to the context so handlers can read
// the variant and restriction list.
func (m Middleware) Require(spec RouteSpec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := shared.PrincipalFromContext(r.Context())
			dec := m.Guard.Decide(r.Context(), p, spec, RequestFromHTTP(r))
			if !dec.Allowed {
				respondDenied(w, dec)
				return
			}
			ctx := contextWithDecision(r.Context(), dec)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestFromHTTP derives the guard request context from an HTTP request.
// RemoteAddr is already the client address behind chi's RealIP middleware.
func RequestFromHTTP(r *http.Request) RequestContext {
	return RequestContext{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
		Country:   r.Header.Get(HeaderCountry),
		Region:    r.Header.Get(HeaderRegion),
	}
}

func respondDenied(w http.ResponseWriter, dec Decision) {
	status := http.StatusForbidden
	if dec.Reason == ReasonUnauthenticated {
		status = http.StatusUnauthorized
	}
	httpx.JSON(w, status, dec)
}
