package rbac

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vesper-social/vesper/internal/platform/httpx"
	"github.com/vesper-social/vesper/internal/shared"
)

// Handler exposes the role and override admin API.
type Handler struct {
	logger   *slog.Logger
	repo     *Repository
	registry *Registry
	resolver *Resolver
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository, registry *Registry, resolver *Resolver) *Handler {
	return &Handler{
		logger:   logger,
		repo:     repo,
		registry: registry,
		resolver: resolver,
		validate: validator.New(),
	}
}

// MountRoutes registers role and override admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/roles", h.listRoles)
	r.Post("/roles", h.createRole)
	r.Post("/roles/reload", h.reloadRoles)
	r.Get("/permissions", h.listPermissions)
	r.Get("/users/{userID}/overrides", h.listOverrides)
	r.Post("/users/{userID}/overrides", h.createOverride)
	r.Delete("/overrides/{overrideID}", h.deleteOverride)
	r.Get("/users/{userID}/resolution", h.showResolution)
}

type roleResponse struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Level       int      `json:"level"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.registry.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleResponse{Name: role.Name, Description: role.Description, Level: role.Level, Permissions: role.Permissions})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required,min=2,max=64"`
	Description string   `json:"description" validate:"max=255"`
	Level       int      `json:"level" validate:"gte=0,lte=1000"`
	Permissions []string `json:"permissions" validate:"dive,required"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.repo.CreateRole(r.Context(), Role{
		Name:        req.Name,
		Description: req.Description,
		Level:       req.Level,
		Permissions: req.Permissions,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.registry.Reload(r.Context()); err != nil {
		h.logger.Warn("registry reload after role create", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusCreated, roleResponse{Name: role.Name, Description: role.Description, Level: role.Level, Permissions: req.Permissions})
}

func (h *Handler) reloadRoles(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Reload(r.Context()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.resolver != nil {
		if err := h.resolver.cache.InvalidateAll(r.Context()); err != nil {
			h.logger.Warn("resolution cache invalidate", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.repo.ListPermissions(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

type overrideResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Type      string `json:"type"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Reason    string `json:"reason"`
	AdminID   string `json:"adminId"`
	CreatedAt string `json:"createdAt"`
}

func toOverrideResponse(ov UserOverride) overrideResponse {
	return overrideResponse{
		ID:        ov.ID,
		UserID:    ov.UserID,
		Type:      string(ov.Type),
		Key:       ov.Key,
		Value:     ov.Value,
		Reason:    ov.Reason,
		AdminID:   ov.AdminID,
		CreatedAt: ov.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) listOverrides(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	overrides, err := h.repo.ListOverrides(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]overrideResponse, 0, len(overrides))
	for _, ov := range overrides {
		out = append(out, toOverrideResponse(ov))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"overrides": out})
}

type createOverrideRequest struct {
	Type   string `json:"type" validate:"required,oneof=premium fee monetization tier trust"`
	Key    string `json:"key" validate:"required,max=128"`
	Value  string `json:"value" validate:"required,max=255"`
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) createOverride(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req createOverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	admin := shared.PrincipalFromContext(r.Context())
	adminID := ""
	if admin != nil {
		adminID = admin.ID
	}
	ov, err := h.repo.CreateOverride(r.Context(), UserOverride{
		UserID:  userID,
		Type:    OverrideType(strings.ToLower(req.Type)),
		Key:     req.Key,
		Value:   req.Value,
		Reason:  req.Reason,
		AdminID: adminID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.resolver.Invalidate(r.Context(), userID); err != nil {
		h.logger.Warn("resolution cache invalidate", slog.String("user_id", userID), slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusCreated, toOverrideResponse(ov))
}

func (h *Handler) deleteOverride(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "overrideID")
	ov, err := h.repo.DeleteOverride(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.resolver.Invalidate(r.Context(), ov.UserID); err != nil {
		h.logger.Warn("resolution cache invalidate", slog.String("user_id", ov.UserID), slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// showResolution previews a user's effective permissions. The assigned role is
// taken from the query because user records live with the external auth
// collaborator, not in this service.
func (h *Handler) showResolution(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	role := r.URL.Query().Get("role")
	res, err := h.resolver.Resolve(r.Context(), &shared.Principal{ID: userID, RoleName: role})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
