package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/demopark/accounts/internal/core/domain"
)

const keyPrefix = "account:role:"

// RoleCache keeps username → role mappings with a TTL.
// Key format: account:role:<username>
type RoleCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRoleCache(client redis.UniversalClient, ttl time.Duration) *RoleCache {
	return &RoleCache{client: client, ttl: ttl}
}

// Get reports ok=false on a miss. A cached value that is not a known role is
// treated as a miss and removed.
func (c *RoleCache) Get(ctx context.Context, username string) (domain.Role, bool, error) {
	val, err := c.client.Get(ctx, key(username)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("role cache get: %w", err)
	}

	role, err := domain.RoleFromStored(val)
	if err != nil {
		_ = c.client.Del(ctx, key(username)).Err()
		return "", false, nil
	}
	return role, true, nil
}

func (c *RoleCache) Set(ctx context.Context, username string, role domain.Role) error {
	if err := c.client.Set(ctx, key(username), role.Stored(), c.ttl).Err(); err != nil {
		return fmt.Errorf("role cache set: %w", err)
	}
	return nil
}

// SetIfAbsent stores role with SET NX so an existing entry is never replaced.
func (c *RoleCache) SetIfAbsent(ctx context.Context, username string, role domain.Role) error {
	if err := c.client.SetNX(ctx, key(username), role.Stored(), c.ttl).Err(); err != nil {
		return fmt.Errorf("role cache setnx: %w", err)
	}
	return nil
}

func (c *RoleCache) Invalidate(ctx context.Context, username string) error {
	if err := c.client.Del(ctx, key(username)).Err(); err != nil {
		return fmt.Errorf("role cache del: %w", err)
	}
	return nil
}

func (c *RoleCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func key(username string) string {
	return keyPrefix + username
}
