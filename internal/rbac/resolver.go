package rbac

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/vesper-social/vesper/internal/shared"
)

// OverrideStore loads user overrides from the backing store.
type OverrideStore interface {
	ListOverrides(ctx context.Context, userID string) ([]UserOverride, error)
}

// Resolver computes the effective role and permission set for a principal.
type Resolver struct {
	registry  *Registry
	overrides OverrideStore
	cache     *Cache
	logger    *slog.Logger
}

// NewResolver constructs a Resolver. Cache may be nil.
func NewResolver(registry *Registry, overrides OverrideStore, cache *Cache, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{registry: registry, overrides: overrides, cache: cache, logger: logger}
}

// Resolve returns the effective role name, level and merged permission set.
// Anonymous principals resolve to the lowest-privilege role. An unknown
// assigned role name also resolves to the lowest-privilege role and is logged
// as an anomaly rather than failing the request.
func (r *Resolver) Resolve(ctx context.Context, p *shared.Principal) (Resolution, error) {
	if p.Anonymous() {
		fallback, err := r.registry.Fallback(ctx)
		if err != nil {
			return Resolution{}, err
		}
		return resolutionFromRole(fallback), nil
	}

	if res, hit, err := r.cache.Get(ctx, p.ID, p.RoleName); err != nil {
		r.logger.Warn("rbac resolution cache read failed", slog.Any("error", err))
	} else if hit {
		return res, nil
	}

	base, err := r.registry.Get(ctx, p.RoleName)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return Resolution{}, err
		}
		r.logger.Warn("unknown role assigned, falling back to lowest role",
			slog.String("user_id", p.ID), slog.String("role", p.RoleName))
		if base, err = r.registry.Fallback(ctx); err != nil {
			return Resolution{}, err
		}
	}

	overrides, err := r.overrides.ListOverrides(ctx, p.ID)
	if err != nil {
		return Resolution{}, err
	}

	res := resolutionFromRole(base)
	res.Permissions = applyOverrides(base.Permissions, overrides)
	if err := r.cache.Set(ctx, p.ID, p.RoleName, res); err != nil {
		r.logger.Warn("rbac resolution cache write failed", slog.Any("error", err))
	}
	return res, nil
}

// Invalidate drops the cached resolution for a user.
func (r *Resolver) Invalidate(ctx context.Context, userID string) error {
	return r.cache.Invalidate(ctx, userID)
}

func resolutionFromRole(role Role) Resolution {
	perms := make([]string, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		perms = append(perms, strings.ToLower(p))
	}
	sort.Strings(perms)
	return Resolution{RoleName: role.Name, Level: role.Level, Permissions: perms}
}

// applyOverrides merges tier/trust overrides into the base permission set.
// For the same (type, key) the most recent override wins; across the merged
// set a revoke always suppresses a grant, regardless of which was created
// later. Other override types and unparseable values are ignored.
func applyOverrides(base []string, overrides []UserOverride) []string {
	latest := make(map[string]UserOverride)
	for _, ov := range overrides {
		if ov.Type != OverrideTier && ov.Type != OverrideTrust {
			continue
		}
		key := string(ov.Type) + "\x00" + strings.ToLower(ov.Key)
		if prev, ok := latest[key]; ok && !ov.CreatedAt.After(prev.CreatedAt) {
			continue
		}
		latest[key] = ov
	}

	grants := make(map[string]struct{})
	revokes := make(map[string]struct{})
	for _, ov := range latest {
		verb, perm, ok := parseOverrideValue(ov.Value)
		if !ok {
			continue
		}
		if verb == overrideRevoke {
			revokes[perm] = struct{}{}
		} else {
			grants[perm] = struct{}{}
		}
	}

	set := make(map[string]struct{}, len(base)+len(grants))
	for _, p := range base {
		set[strings.ToLower(p)] = struct{}{}
	}
	for p := range grants {
		set[p] = struct{}{}
	}
	for p := range revokes {
		delete(set, p)
	}

	merged := make([]string, 0, len(set))
	for p := range set {
		merged = append(merged, p)
	}
	sort.Strings(merged)
	return merged
}
