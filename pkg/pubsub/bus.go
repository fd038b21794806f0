package pubsub

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Config selects the relay transport.
type Config struct {
	Driver     string // redis, kafka
	InstanceID string
	Kafka      KafkaConfig
}

// KafkaConfig holds Kafka-specific configuration.
type KafkaConfig struct {
	Brokers    string `mapstructure:"brokers"`
	GroupID    string `mapstructure:"group_id"`
	Partitions int    `mapstructure:"partitions"`
}

// New builds the relay bus. The redis driver shares client and leaves it
// open on Close.
func New(cfg Config, client *redis.Client) (Bus, error) {
	switch cfg.Driver {
	case "kafka":
		kc := cfg.Kafka
		// Every instance must see every message.
		if kc.GroupID == "" {
			kc.GroupID = "groupchat-relay-" + cfg.InstanceID
		}
		b, err := NewKafkaBus(kc)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "redis", "":
		if client == nil {
			return nil, errors.New("redis relay requires a redis client")
		}
		return NewRedisBus(client), nil
	default:
		return nil, fmt.Errorf("unsupported relay driver: %s", cfg.Driver)
	}
}
