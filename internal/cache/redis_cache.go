package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-groupchat/internal/domain"
)

// emptyMarker stands for a cached empty list. Group names are never empty.
const emptyMarker = ""

// RedisGroupCache keeps the ordered group names in a Redis list.
type RedisGroupCache struct {
	client *redis.Client
	key    string
}

// NewRedisGroupCache uses a shared client; the caller owns its lifecycle.
func NewRedisGroupCache(client *redis.Client, prefix string) *RedisGroupCache {
	return &RedisGroupCache{client: client, key: prefix + ":groups"}
}

func (c *RedisGroupCache) Key() string { return c.key }

func (c *RedisGroupCache) Groups(ctx context.Context) ([]domain.Group, error) {
	names, err := c.client.LRange(ctx, c.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read group cache: %w", err)
	}
	if len(names) == 0 {
		return nil, ErrCacheMiss
	}
	if len(names) == 1 && names[0] == emptyMarker {
		return []domain.Group{}, nil
	}

	groups := make([]domain.Group, len(names))
	for i, n := range names {
		groups[i] = domain.Group{Name: n}
	}
	return groups, nil
}

// StoreGroups replaces the cached list atomically. ttl <= 0 keeps it until
// invalidated.
func (c *RedisGroupCache) StoreGroups(ctx context.Context, groups []domain.Group, ttl time.Duration) error {
	values := make([]interface{}, 0, len(groups))
	for _, g := range groups {
		values = append(values, g.Name)
	}
	if len(values) == 0 {
		values = append(values, emptyMarker)
	}

	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, c.key)
		p.RPush(ctx, c.key, values...)
		if ttl > 0 {
			p.PExpire(ctx, c.key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write group cache: %w", err)
	}
	return nil
}

func (c *RedisGroupCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("invalidate group cache: %w", err)
	}
	return nil
}
