package guard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vesper-social/vesper/internal/compliance"
	"github.com/vesper-social/vesper/internal/platform/httpx"
	"github.com/vesper-social/vesper/internal/shared"
)

// Handler is the HTTP face of the guard for the product backends: one
// endpoint returning the composed decision for an arbitrary target, plus a
// batch compliance check the client apps use to grey out features.
type Handler struct {
	logger   *slog.Logger
	guard    *Guard
	gate     *compliance.Gate
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, g *Guard, gate *compliance.Gate) *Handler {
	return &Handler{logger: logger, guard: g, gate: gate, validate: validator.New()}
}

// MountRoutes registers the access endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/access/decision", h.decide)
	r.Post("/access/features/batch", h.batch)
}

type decisionRequest struct {
	Feature            string `json:"feature" validate:"required_without=RequiredRole,max=64"`
	RequiredRole       string `json:"requiredRole" validate:"max=64"`
	ExactRole          bool   `json:"exactRole"`
	RequiredPermission string `json:"requiredPermission" validate:"max=128"`
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	spec := RouteSpec{
		Name:               "access:" + req.Feature,
		RequiredRole:       req.RequiredRole,
		ExactRole:          req.ExactRole,
		RequiredPermission: req.RequiredPermission,
		Feature:            req.Feature,
	}
	p := shared.PrincipalFromContext(r.Context())
	dec := h.guard.Decide(r.Context(), p, spec, RequestFromHTTP(r))
	httpx.JSON(w, http.StatusOK, dec)
}

type batchRequest struct {
	Features []string `json:"features" validate:"required,min=1,max=32,dive,required"`
}

func (h *Handler) batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	if p.Anonymous() {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "batch check needs an authenticated principal")
		return
	}
	rctx := RequestFromHTTP(r)
	geo := compliance.GeoContext{Country: rctx.Country, Region: rctx.Region}
	if geo.Country == "" {
		geo.Country = p.Country
	}
	if geo.Region == "" {
		geo.Region = p.Region
	}
	verdicts, err := h.gate.BatchCheck(r.Context(), p.ID, req.Features, geo)
	if err != nil {
		h.logger.Error("batch compliance check", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"features": verdicts})
}
