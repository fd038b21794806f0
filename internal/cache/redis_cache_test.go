package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	c := NewRedisGroupCache(nil, "groupchat:cache")
	assert.Equal(t, "groupchat:cache:groups", c.Key())
}

func TestUnreachableRedisIsNotAMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := NewRedisGroupCache(client, "p")
	_, err := c.Groups(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)

	assert.Error(t, c.StoreGroups(context.Background(), nil, time.Minute))
	assert.Error(t, c.Invalidate(context.Background()))
}
