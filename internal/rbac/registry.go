package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/vesper-social/vesper/internal/shared"
)

// RoleStore loads role definitions from the backing store.
type RoleStore interface {
	ListRoles(ctx context.Context) ([]Role, error)
}

type snapshot struct {
	byName   map[string]Role
	ordered  []Role // level ascending
	fallback Role
}

// Registry caches the role table process-wide. The table is loaded lazily on
// first use and swapped atomically on Reload, so concurrent readers never
// observe a partially updated table. When the store is unreachable the last
// good snapshot keeps serving; with no snapshot at all the registry surfaces
// shared.ErrConfiguration and callers must deny privileged access.
type Registry struct {
	store  RoleStore
	logger *slog.Logger
	snap   atomic.Pointer[snapshot]
	group  singleflight.Group
}

// NewRegistry constructs a Registry backed by the given store.
func NewRegistry(store RoleStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, logger: logger}
}

// Get returns the role with the given name.
func (r *Registry) Get(ctx context.Context, name string) (Role, error) {
	snap, err := r.current(ctx)
	if err != nil {
		return Role{}, err
	}
	role, ok := snap.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Role{}, fmt.Errorf("rbac: role %q: %w", name, shared.ErrNotFound)
	}
	return role, nil
}

// List returns all roles ordered by level ascending.
func (r *Registry) List(ctx context.Context) ([]Role, error) {
	snap, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Role, len(snap.ordered))
	copy(out, snap.ordered)
	return out, nil
}

// Fallback returns the lowest-privilege role. Unknown role names resolve to
// this role so a principal always resolves to exactly one effective role.
func (r *Registry) Fallback(ctx context.Context) (Role, error) {
	snap, err := r.current(ctx)
	if err != nil {
		return Role{}, err
	}
	return snap.fallback, nil
}

// Reload refreshes the cached table from the store. On failure the previous
// snapshot stays in place.
func (r *Registry) Reload(ctx context.Context) error {
	_, err := r.load(ctx)
	return err
}

func (r *Registry) current(ctx context.Context) (*snapshot, error) {
	if snap := r.snap.Load(); snap != nil {
		return snap, nil
	}
	return r.load(ctx)
}

func (r *Registry) load(ctx context.Context) (*snapshot, error) {
	v, err, _ := r.group.Do("reload", func() (any, error) {
		roles, err := r.store.ListRoles(ctx)
		if err != nil {
			return nil, err
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("rbac: empty role table")
		}
		return buildSnapshot(roles), nil
	})
	if err != nil {
		if snap := r.snap.Load(); snap != nil {
			r.logger.Warn("rbac registry reload failed, serving cached roles", slog.Any("error", err))
			return snap, nil
		}
		return nil, fmt.Errorf("rbac: load roles: %w: %w", shared.ErrConfiguration, err)
	}
	snap := v.(*snapshot)
	r.snap.Store(snap)
	return snap, nil
}

func buildSnapshot(roles []Role) *snapshot {
	ordered := make([]Role, len(roles))
	copy(ordered, roles)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Level < ordered[j].Level })
	byName := make(map[string]Role, len(ordered))
	for _, role := range ordered {
		byName[strings.ToLower(role.Name)] = role
	}
	return &snapshot{byName: byName, ordered: ordered, fallback: ordered[0]}
}
