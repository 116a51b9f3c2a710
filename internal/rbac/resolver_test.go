package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vesper-social/vesper/internal/shared"
)

type stubOverrideStore struct {
	overrides map[string][]UserOverride
	calls     int
}

func (s *stubOverrideStore) ListOverrides(ctx context.Context, userID string) ([]UserOverride, error) {
	s.calls++
	return s.overrides[userID], nil
}

func newTestResolver(t *testing.T, overrides map[string][]UserOverride) (*Resolver, *stubOverrideStore) {
	t.Helper()
	store := &stubOverrideStore{overrides: overrides}
	registry := NewRegistry(&stubRoleStore{roles: testRoles()}, nil)
	return NewResolver(registry, store, nil, nil), store
}

func TestResolveAnonymousFallsToLowestRole(t *testing.T) {
	resolver, _ := newTestResolver(t, nil)

	res, err := resolver.Resolve(context.Background(), &shared.Principal{})
	require.NoError(t, err)
	require.Equal(t, "user", res.RoleName)
	require.Equal(t, 10, res.Level)
}

func TestResolveUnknownRoleFallsToLowestRole(t *testing.T) {
	resolver, _ := newTestResolver(t, nil)

	res, err := resolver.Resolve(context.Background(), &shared.Principal{ID: "u1", RoleName: "superuser"})
	require.NoError(t, err)
	require.Equal(t, "user", res.RoleName)
	require.Equal(t, []string{"posts.write"}, res.Permissions)
}

func TestResolveMergesGrantOverride(t *testing.T) {
	resolver, _ := newTestResolver(t, map[string][]UserOverride{
		"u1": {
			{Type: OverrideTier, Key: "creator", Value: "grant:livestream.start", CreatedAt: time.Now()},
		},
	})

	res, err := resolver.Resolve(context.Background(), &shared.Principal{ID: "u1", RoleName: "user"})
	require.NoError(t, err)
	require.True(t, res.Has("livestream.start"))
	require.True(t, res.Has("posts.write"))
}

func TestResolveRevokeBeatsLaterGrant(t *testing.T) {
	now := time.Now()
	resolver, _ := newTestResolver(t, map[string][]UserOverride{
		"u1": {
			{Type: OverrideTrust, Key: "strikes", Value: "revoke:posts.write", CreatedAt: now},
			{Type: OverrideTier, Key: "creator", Value: "grant:posts.write", CreatedAt: now.Add(time.Hour)},
		},
	})

	res, err := resolver.Resolve(context.Background(), &shared.Principal{ID: "u1", RoleName: "user"})
	require.NoError(t, err)
	require.False(t, res.Has("posts.write"), "revoke must win over grant across types")
}

func TestResolveLatestOverridePerKeyWins(t *testing.T) {
	now := time.Now()
	resolver, _ := newTestResolver(t, map[string][]UserOverride{
		"u1": {
			{Type: OverrideTier, Key: "creator", Value: "revoke:posts.write", CreatedAt: now.Add(-time.Hour)},
			{Type: OverrideTier, Key: "creator", Value: "grant:media.upload", CreatedAt: now},
		},
	})

	res, err := resolver.Resolve(context.Background(), &shared.Principal{ID: "u1", RoleName: "user"})
	require.NoError(t, err)
	require.True(t, res.Has("posts.write"), "superseded revoke must not apply")
	require.True(t, res.Has("media.upload"))
}

func TestResolveIgnoresUnparseableAndForeignOverrides(t *testing.T) {
	resolver, _ := newTestResolver(t, map[string][]UserOverride{
		"u1": {
			{Type: OverridePremium, Key: "plan", Value: "grant:roles.edit", CreatedAt: time.Now()},
			{Type: OverrideTier, Key: "bad", Value: "promote-to-admin", CreatedAt: time.Now()},
		},
	})

	res, err := resolver.Resolve(context.Background(), &shared.Principal{ID: "u1", RoleName: "user"})
	require.NoError(t, err)
	require.Equal(t, []string{"posts.write"}, res.Permissions)
}

func TestResolveCacheHitSkipsStores(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &stubOverrideStore{}
	registry := NewRegistry(&stubRoleStore{roles: testRoles()}, nil)
	resolver := NewResolver(registry, store, NewCache(client, time.Minute), nil)

	p := &shared.Principal{ID: "u1", RoleName: "manager"}
	first, err := resolver.Resolve(context.Background(), p)
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), p)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, store.calls, "second resolve must come from cache")
}

func TestResolveInvalidateForcesRecompute(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &stubOverrideStore{overrides: map[string][]UserOverride{}}
	registry := NewRegistry(&stubRoleStore{roles: testRoles()}, nil)
	resolver := NewResolver(registry, store, NewCache(client, time.Minute), nil)

	p := &shared.Principal{ID: "u1", RoleName: "user"}
	_, err := resolver.Resolve(context.Background(), p)
	require.NoError(t, err)

	store.overrides["u1"] = []UserOverride{
		{Type: OverrideTier, Key: "creator", Value: "grant:livestream.start", CreatedAt: time.Now()},
	}
	require.NoError(t, resolver.Invalidate(context.Background(), "u1"))

	res, err := resolver.Resolve(context.Background(), p)
	require.NoError(t, err)
	require.True(t, res.Has("livestream.start"))
	require.Equal(t, 2, store.calls)
}
