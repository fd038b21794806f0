package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBrokerUnavailable wraps every failure to reach the broker.
var ErrBrokerUnavailable = errors.New("message broker unavailable")

// Manager provisions one fanout broadcast channel per group and publishes to it.
type Manager interface {
	CreateBroadcastChannel(ctx context.Context, name string) error
	DestroyBroadcastChannel(ctx context.Context, name string) error
	Publish(ctx context.Context, name string, body []byte) error
	Close() error
}

type Config struct {
	Driver         string // amqp, kafka, redis, noop
	OpTimeout      time.Duration
	PublishRetries int
	AMQPURL        string
	Kafka          KafkaConfig
	RedisKeyPrefix string
}

type KafkaConfig struct {
	Brokers     string
	Partitions  int
	TopicPrefix string
}

// New builds the configured driver, bounds every call by OpTimeout and
// retries Publish.
func New(cfg Config, redisClient *redis.Client) (Manager, error) {
	var m Manager

	switch cfg.Driver {
	case "amqp":
		m = NewAMQPManager(cfg.AMQPURL, cfg.OpTimeout)
	case "kafka":
		km, err := NewKafkaManager(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		m = km
	case "redis":
		if redisClient == nil {
			return nil, errors.New("redis exchange driver requires a redis client")
		}
		m = NewRedisManager(redisClient, cfg.RedisKeyPrefix)
	case "noop":
		m = NewNoopManager()
	default:
		return nil, fmt.Errorf("unsupported broker driver: %s", cfg.Driver)
	}

	if cfg.OpTimeout > 0 {
		m = WithTimeout(m, cfg.OpTimeout)
	}
	return NewRetrying(m, cfg.PublishRetries), nil
}

func unavailable(op, name string, err error) error {
	return fmt.Errorf("%w: %s %q: %v", ErrBrokerUnavailable, op, name, err)
}
