package exchange

import (
	"context"
	"fmt"
	"regexp"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/weiawesome/wes-io-groupchat/pkg/log"
)

// KafkaManager maps each group to its own topic. Every consumer group
// subscribed to the topic receives every message, which gives fanout.
type KafkaManager struct {
	producer   *kafka.Producer
	admin      *kafka.AdminClient
	prefix     string
	partitions int
	doneCh     chan struct{}
}

func NewKafkaManager(cfg KafkaConfig) (*KafkaManager, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	admin, err := kafka.NewAdminClientFromProducer(p)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to create admin client: %w", err)
	}

	partitions := cfg.Partitions
	if partitions <= 0 {
		partitions = 1
	}

	km := &KafkaManager{
		producer:   p,
		admin:      admin,
		prefix:     cfg.TopicPrefix,
		partitions: partitions,
		doneCh:     make(chan struct{}),
	}

	go km.deliveryReportHandler()

	return km, nil
}

var topicRegexp = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// TopicName maps a group name onto a legal Kafka topic name.
func TopicName(prefix, name string) string {
	topic := prefix + topicRegexp.ReplaceAllString(name, "_")
	if len(topic) > 249 {
		topic = topic[:249]
	}
	return topic
}

func (k *KafkaManager) deliveryReportHandler() {
	for e := range k.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			l := log.L()
			l.Error().Err(m.TopicPartition.Error).Str("topic", *m.TopicPartition.Topic).Msg("kafka delivery failed")
		}
	}
	close(k.doneCh)
}

func (k *KafkaManager) CreateBroadcastChannel(ctx context.Context, name string) error {
	topic := TopicName(k.prefix, name)
	results, err := k.admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             topic,
		NumPartitions:     k.partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return unavailable("create topic", topic, err)
	}

	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrTopicAlreadyExists {
			return unavailable("create topic", r.Topic, r.Error)
		}
	}
	return nil
}

func (k *KafkaManager) DestroyBroadcastChannel(ctx context.Context, name string) error {
	topic := TopicName(k.prefix, name)
	results, err := k.admin.DeleteTopics(ctx, []string{topic})
	if err != nil {
		return unavailable("delete topic", topic, err)
	}

	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrUnknownTopicOrPart {
			return unavailable("delete topic", r.Topic, r.Error)
		}
	}
	return nil
}

func (k *KafkaManager) Publish(ctx context.Context, name string, body []byte) error {
	topic := TopicName(k.prefix, name)
	err := k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(name),
		Value: body,
	}, nil)
	if err != nil {
		return unavailable("produce", topic, err)
	}
	return nil
}

func (k *KafkaManager) Close() error {
	k.producer.Flush(5000)
	k.admin.Close()
	k.producer.Close()
	<-k.doneCh
	return nil
}
