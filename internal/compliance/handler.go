package compliance

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vesper-social/vesper/internal/platform/httpx"
)

// Handler exposes the compliance rule admin API.
type Handler struct {
	logger   *slog.Logger
	repo     *Repository
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo, validate: validator.New()}
}

// MountRoutes registers compliance admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/compliance/rules", h.list)
	r.Post("/compliance/rules", h.create)
	r.Get("/compliance/rules/{ruleID}", h.get)
	r.Delete("/compliance/rules/{ruleID}", h.delete)
}

type ruleResponse struct {
	ID           string   `json:"id"`
	UserID       string   `json:"userId,omitempty"`
	Feature      string   `json:"feature"`
	Allowed      bool     `json:"isAllowed"`
	Restrictions []string `json:"restrictions"`
	Reason       string   `json:"reason"`
	Country      string   `json:"country,omitempty"`
	Region       string   `json:"region,omitempty"`
}

func toRuleResponse(rule Rule) ruleResponse {
	return ruleResponse{
		ID:           rule.ID,
		UserID:       rule.UserID,
		Feature:      rule.Feature,
		Allowed:      rule.Allowed,
		Restrictions: rule.Restrictions,
		Reason:       rule.Reason,
		Country:      rule.Country,
		Region:       rule.Region,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	rules, err := h.repo.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleResponse(rule))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rules": out})
}

type createRuleRequest struct {
	UserID       string   `json:"userId" validate:"max=64"`
	Feature      string   `json:"feature" validate:"required,max=64"`
	Allowed      bool     `json:"isAllowed"`
	Restrictions []string `json:"restrictions" validate:"dive,required"`
	Reason       string   `json:"reason" validate:"required,max=500"`
	Country      string   `json:"country" validate:"max=8"`
	Region       string   `json:"region" validate:"max=64"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if req.UserID == "" && req.Country == "" && req.Region == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "wildcard rules need a country or region filter")
		return
	}
	rule, err := h.repo.Create(r.Context(), Rule{
		UserID:       strings.TrimSpace(req.UserID),
		Feature:      strings.TrimSpace(req.Feature),
		Allowed:      req.Allowed,
		Restrictions: req.Restrictions,
		Reason:       req.Reason,
		Country:      req.Country,
		Region:       req.Region,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	rule, err := h.repo.Get(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRuleResponse(rule))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), chi.URLParam(r, "ruleID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
