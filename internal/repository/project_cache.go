package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ProjectCache invalidates cached project documents when a domain record
// they embed changes.
type ProjectCache interface {
	Invalidate(ctx context.Context, projectID uuid.UUID) error
}

// RedisProjectCache implements ProjectCache on Redis. Project documents are
// cached under "cache:projects:<id>" by the platform's read path; deleting
// the key forces the next read through to the store.
type RedisProjectCache struct {
	client *redis.Client
}

// NewRedisProjectCache creates a new RedisProjectCache instance
func NewRedisProjectCache(client *redis.Client) *RedisProjectCache {
	return &RedisProjectCache{client: client}
}

// Invalidate removes the cached project document
func (c *RedisProjectCache) Invalidate(ctx context.Context, projectID uuid.UUID) error {
	key := fmt.Sprintf("cache:projects:%s", projectID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate project cache for %s: %w", projectID, err)
	}
	return nil
}

// Ensure RedisProjectCache implements ProjectCache
var _ ProjectCache = (*RedisProjectCache)(nil)
