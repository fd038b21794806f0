package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/weiawesome/wes-io-groupchat/pkg/log"
)

// KafkaBus relays over one Kafka topic, keyed by room so a room's messages
// stay ordered within a partition.
type KafkaBus struct {
	producer *kafka.Producer
	config   KafkaConfig
	doneCh   chan struct{}

	mu        sync.Mutex
	consumers []*kafka.Consumer
	cancels   []context.CancelFunc
}

// NewKafkaBus creates the producer and makes sure the relay topic exists.
func NewKafkaBus(cfg KafkaConfig) (*KafkaBus, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	b := &KafkaBus{producer: p, config: cfg, doneCh: make(chan struct{})}
	go b.deliveryReports()

	if err := b.ensureTopic(); err != nil {
		l := log.L()
		l.Warn().Err(err).Str("topic", TopicRoomRelay).Msg("failed to ensure kafka relay topic")
	}
	return b, nil
}

func (b *KafkaBus) ensureTopic() error {
	admin, err := kafka.NewAdminClientFromProducer(b.producer)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	partitions := b.config.Partitions
	if partitions <= 0 {
		partitions = 4
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             TopicRoomRelay,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return err
	}
	for _, r := range results {
		if c := r.Error.Code(); c != kafka.ErrNoError && c != kafka.ErrTopicAlreadyExists {
			return r.Error
		}
	}
	return nil
}

func (b *KafkaBus) deliveryReports() {
	defer close(b.doneCh)
	for e := range b.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			l := log.L()
			l.Error().Err(m.TopicPartition.Error).Str(log.FieldRoom, string(m.Key)).Msg("relay delivery failed")
		}
	}
}

// Publish produces ev keyed by its room.
func (b *KafkaBus) Publish(ctx context.Context, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := TopicRoomRelay
	if err := b.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(ev.Room),
		Value:          data,
	}, nil); err != nil {
		return fmt.Errorf("failed to produce relay event: %w", err)
	}
	return nil
}

// Subscribe joins the instance's consumer group on the relay topic, starting
// from the newest offset.
func (b *KafkaBus) Subscribe(ctx context.Context) (<-chan *Event, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":       b.config.Brokers,
		"group.id":                b.config.GroupID,
		"auto.offset.reset":       "latest",
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := c.Subscribe(TopicRoomRelay, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", TopicRoomRelay, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.consumers = append(b.consumers, c)
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	out := make(chan *Event, relayBuffer)
	go b.poll(subCtx, c, out)
	return out, nil
}

func (b *KafkaBus) poll(ctx context.Context, c *kafka.Consumer, out chan<- *Event) {
	defer close(out)

	l := log.Ctx(ctx)
	for ctx.Err() == nil {
		switch e := c.Poll(500).(type) {
		case *kafka.Message:
			ev, err := decodeEvent(e.Value)
			if err != nil {
				l.Warn().Err(err).Msg("dropping malformed relay event")
				continue
			}
			if !offer(ctx, out, ev) {
				l.Warn().Str(log.FieldRoom, ev.Room).Msg("relay consumer full, event dropped")
			}
		case kafka.Error:
			l.Error().Err(e).Bool("fatal", e.IsFatal()).Msg("kafka relay error")
			if e.IsFatal() {
				return
			}
		}
	}
}

// Close stops consumers, flushes pending relay messages and closes the producer.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	for i, c := range b.consumers {
		b.cancels[i]()
		c.Close()
	}
	b.consumers, b.cancels = nil, nil
	b.mu.Unlock()

	b.producer.Flush(5000)
	b.producer.Close()
	<-b.doneCh
	return nil
}
