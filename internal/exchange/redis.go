package exchange

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisManager records broadcast channels in a set and publishes with Redis
// PUBLISH, which delivers to every subscriber of the channel.
type RedisManager struct {
	client *redis.Client
	prefix string
}

func NewRedisManager(client *redis.Client, prefix string) *RedisManager {
	if prefix == "" {
		prefix = "broker"
	}
	return &RedisManager{client: client, prefix: prefix}
}

func (r *RedisManager) registryKey() string {
	return r.prefix + ":exchanges"
}

// ChannelName is the Redis pub/sub channel a group's messages go to.
func (r *RedisManager) ChannelName(name string) string {
	return fmt.Sprintf("%s:exchange:%s", r.prefix, name)
}

func (r *RedisManager) CreateBroadcastChannel(ctx context.Context, name string) error {
	if err := r.client.SAdd(ctx, r.registryKey(), name).Err(); err != nil {
		return unavailable("register exchange", name, err)
	}
	return nil
}

func (r *RedisManager) DestroyBroadcastChannel(ctx context.Context, name string) error {
	if err := r.client.SRem(ctx, r.registryKey(), name).Err(); err != nil {
		return unavailable("unregister exchange", name, err)
	}
	return nil
}

func (r *RedisManager) Publish(ctx context.Context, name string, body []byte) error {
	if err := r.client.Publish(ctx, r.ChannelName(name), body).Err(); err != nil {
		return unavailable("publish", name, err)
	}
	return nil
}

// Close is a no-op; the client is shared.
func (r *RedisManager) Close() error {
	return nil
}
