package abtest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vesper-social/vesper/internal/platform/httpx"
	"github.com/vesper-social/vesper/internal/policy"
)

// Handler exposes the experiment admin API.
type Handler struct {
	logger   *slog.Logger
	repo     *Repository
	targeter *Targeter
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository, targeter *Targeter) *Handler {
	return &Handler{logger: logger, repo: repo, targeter: targeter, validate: validator.New()}
}

// MountRoutes registers experiment admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/experiments", h.list)
	r.Post("/experiments", h.create)
	r.Get("/experiments/{testID}", h.get)
	r.Post("/experiments/{testID}/status", h.updateStatus)
	r.Delete("/experiments/{testID}", h.delete)
	r.Get("/experiments/{testID}/assignment/{userID}", h.previewAssignment)
}

type testResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Feature   string          `json:"feature"`
	StartDate time.Time       `json:"startDate"`
	EndDate   time.Time       `json:"endDate"`
	Target    policy.Criteria `json:"targetCriteria"`
	Variants  []Variant       `json:"variants"`
	Status    TestStatus      `json:"status"`
}

func toTestResponse(test Test) testResponse {
	return testResponse{
		ID:        test.ID,
		Name:      test.Name,
		Feature:   test.Feature,
		StartDate: test.StartDate,
		EndDate:   test.EndDate,
		Target:    test.TargetCriteria,
		Variants:  test.Variants,
		Status:    test.Status,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tests, err := h.repo.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]testResponse, 0, len(tests))
	for _, test := range tests {
		out = append(out, toTestResponse(test))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"experiments": out})
}

type createTestRequest struct {
	Name      string          `json:"name" validate:"required,min=2,max=128"`
	Feature   string          `json:"feature" validate:"required,max=64"`
	StartDate time.Time       `json:"startDate" validate:"required"`
	EndDate   time.Time       `json:"endDate" validate:"required,gtfield=StartDate"`
	Target    policy.Criteria `json:"targetCriteria"`
	Variants  []Variant       `json:"variants" validate:"required,min=1"`
	Status    string          `json:"status" validate:"required,oneof=ACTIVE PAUSED COMPLETED"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createTestRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	test, err := h.repo.Create(r.Context(), Test{
		Name:           req.Name,
		Feature:        req.Feature,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		TargetCriteria: req.Target,
		Variants:       req.Variants,
		Status:         TestStatus(req.Status),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTestResponse(test))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	test, err := h.repo.Get(r.Context(), chi.URLParam(r, "testID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTestResponse(test))
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE PAUSED COMPLETED"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.repo.UpdateStatus(r.Context(), chi.URLParam(r, "testID"), TestStatus(req.Status)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), chi.URLParam(r, "testID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// previewAssignment shows which variant a user would get. Deterministic
// hashing makes this safe to expose: the preview always matches the live
// assignment.
func (h *Handler) previewAssignment(w http.ResponseWriter, r *http.Request) {
	test, err := h.repo.Get(r.Context(), chi.URLParam(r, "testID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	userID := chi.URLParam(r, "userID")
	attrs := map[string]any{"userId": userID}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			attrs[key] = values[0]
		}
	}
	httpx.JSON(w, http.StatusOK, h.targeter.Assign(test, userID, attrs))
}
