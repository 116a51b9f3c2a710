package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "rbac:version"

// Cache stores computed resolutions in Redis with versioning controls.
// Entries are keyed by (user, assigned role) so previews with a different
// role never collide with live decisions. A nil cache (or nil client)
// degrades to pass-through so tests and single-binary deployments work
// without Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the resolution cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) version(ctx context.Context, key string) (int64, error) {
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *Cache) key(ctx context.Context, userID, roleName string) (string, error) {
	gver, err := c.version(ctx, cacheVersionKey)
	if err != nil {
		return "", err
	}
	uver, err := c.version(ctx, userVersionKey(userID))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("rbac:resolve:%s:%s:%d:%d", userID, roleName, gver, uver), nil
}

func userVersionKey(userID string) string {
	return "rbac:uver:" + userID
}

// Get loads a cached resolution. The second return reports a hit.
func (c *Cache) Get(ctx context.Context, userID, roleName string) (Resolution, bool, error) {
	if c == nil || c.client == nil {
		return Resolution{}, false, nil
	}
	key, err := c.key(ctx, userID, roleName)
	if err != nil {
		return Resolution{}, false, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Resolution{}, false, nil
	}
	if err != nil {
		return Resolution{}, false, err
	}
	var res Resolution
	if err := json.Unmarshal(payload, &res); err != nil {
		return Resolution{}, false, err
	}
	return res, true, nil
}

// Set stores a resolution with the configured TTL.
func (c *Cache) Set(ctx context.Context, userID, roleName string, res Resolution) error {
	if c == nil || c.client == nil {
		return nil
	}
	key, err := c.key(ctx, userID, roleName)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, c.ttl).Err()
}

// Invalidate bumps the per-user version so every cached resolution for that
// user misses, for example after an admin creates or deletes an override.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, userVersionKey(userID)).Err()
}

// InvalidateAll bumps the global cache version so every cached resolution
// misses, for example after a role table reload.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
