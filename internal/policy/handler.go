package policy

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vesper-social/vesper/internal/platform/httpx"
	"github.com/vesper-social/vesper/internal/shared"
)

// Handler exposes the policy admin API, including the sandboxed test path.
type Handler struct {
	logger   *slog.Logger
	repo     *Repository
	engine   *Engine
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository, engine *Engine) *Handler {
	return &Handler{logger: logger, repo: repo, engine: engine, validate: validator.New()}
}

// MountRoutes registers policy admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/policies", h.list)
	r.Post("/policies", h.create)
	r.Get("/policies/{policyID}", h.get)
	r.Put("/policies/{policyID}", h.update)
	r.Delete("/policies/{policyID}", h.delete)
	r.Post("/policies/{policyID}/test", h.test)
}

type policyPayload struct {
	Name         string   `json:"name" validate:"required,min=2,max=128"`
	Feature      string   `json:"feature" validate:"required,max=64"`
	Priority     string   `json:"priority" validate:"required,oneof=LOW MEDIUM HIGH"`
	Status       string   `json:"status" validate:"required,oneof=ACTIVE INACTIVE DRAFT"`
	Rules        Rule     `json:"rules"`
	Target       Criteria `json:"targetCriteria"`
	Allow        bool     `json:"allow"`
	Restrictions []string `json:"restrictions" validate:"dive,required"`
}

type policyResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Feature      string   `json:"feature"`
	Priority     Priority `json:"priority"`
	Status       Status   `json:"status"`
	Rules        Rule     `json:"rules"`
	Target       Criteria `json:"targetCriteria"`
	Allow        bool     `json:"allow"`
	Restrictions []string `json:"restrictions"`
	CreatedBy    string   `json:"createdBy"`
	CreatedAt    string   `json:"createdAt"`
	UpdatedAt    string   `json:"updatedAt"`
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func toPolicyResponse(pol Policy) policyResponse {
	return policyResponse{
		ID:           pol.ID,
		Name:         pol.Name,
		Feature:      pol.Feature,
		Priority:     pol.Priority,
		Status:       pol.Status,
		Rules:        pol.Rules,
		Target:       pol.TargetCriteria,
		Allow:        pol.Allow,
		Restrictions: pol.Restrictions,
		CreatedBy:    pol.CreatedBy,
		CreatedAt:    pol.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:    pol.UpdatedAt.UTC().Format(timeLayout),
	}
}

func (h *Handler) decodePayload(w http.ResponseWriter, r *http.Request) (policyPayload, bool) {
	var req policyPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, false
	}
	if err := req.Rules.Validate(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, false
	}
	return req, true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	policies, err := h.repo.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]policyResponse, 0, len(policies))
	for _, pol := range policies {
		out = append(out, toPolicyResponse(pol))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"policies": out})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePayload(w, r)
	if !ok {
		return
	}
	createdBy := ""
	if admin := shared.PrincipalFromContext(r.Context()); admin != nil {
		createdBy = admin.ID
	}
	pol, err := h.repo.Create(r.Context(), Policy{
		Name:           strings.TrimSpace(req.Name),
		Feature:        strings.TrimSpace(req.Feature),
		Priority:       Priority(req.Priority),
		Status:         Status(req.Status),
		Rules:          req.Rules,
		TargetCriteria: req.Target,
		Allow:          req.Allow,
		Restrictions:   req.Restrictions,
		CreatedBy:      createdBy,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPolicyResponse(pol))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	pol, err := h.repo.Get(r.Context(), chi.URLParam(r, "policyID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPolicyResponse(pol))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePayload(w, r)
	if !ok {
		return
	}
	pol, err := h.repo.Update(r.Context(), Policy{
		ID:             chi.URLParam(r, "policyID"),
		Name:           strings.TrimSpace(req.Name),
		Feature:        strings.TrimSpace(req.Feature),
		Priority:       Priority(req.Priority),
		Status:         Status(req.Status),
		Rules:          req.Rules,
		TargetCriteria: req.Target,
		Allow:          req.Allow,
		Restrictions:   req.Restrictions,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPolicyResponse(pol))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), chi.URLParam(r, "policyID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type testRequest struct {
	Context map[string]any `json:"context" validate:"required"`
}

// test exercises the sandboxed evaluation path. It works for any policy
// status and never touches live decisions or the audit log.
func (h *Handler) test(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	res, err := h.engine.Sandbox(r.Context(), chi.URLParam(r, "policyID"), req.Context)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
