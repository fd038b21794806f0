package exchange

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/weiawesome/wes-io-groupchat/pkg/log"
)

const exchangeKind = "fanout"

// AMQPManager keeps one connection to RabbitMQ, re-dialled when it drops,
// and opens a short-lived channel per operation.
type AMQPManager struct {
	url         string
	dialTimeout time.Duration

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewAMQPManager(url string, dialTimeout time.Duration) *AMQPManager {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &AMQPManager{url: url, dialTimeout: dialTimeout}
}

func (m *AMQPManager) connection() (*amqp.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil && !m.conn.IsClosed() {
		return m.conn, nil
	}

	conn, err := amqp.DialConfig(m.url, amqp.Config{
		Dial:      amqp.DefaultDial(m.dialTimeout),
		Heartbeat: 10 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	m.conn = conn
	l := log.L()
	l.Info().Msg("connected to amqp broker")
	return conn, nil
}

// withChannel runs fn on a fresh channel. amqp091 calls are not
// context-aware, so a cancelled ctx closes the channel to unblock fn.
func (m *AMQPManager) withChannel(ctx context.Context, op, name string, fn func(*amqp.Channel) error) error {
	conn, err := m.connection()
	if err != nil {
		return unavailable(op, name, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return unavailable(op, name, err)
	}
	defer ch.Close()

	done := make(chan error, 1)
	go func() { done <- fn(ch) }()

	select {
	case err := <-done:
		if err != nil {
			return unavailable(op, name, err)
		}
		return nil
	case <-ctx.Done():
		ch.Close()
		return unavailable(op, name, ctx.Err())
	}
}

func (m *AMQPManager) CreateBroadcastChannel(ctx context.Context, name string) error {
	return m.withChannel(ctx, "declare exchange", name, func(ch *amqp.Channel) error {
		return ch.ExchangeDeclare(name, exchangeKind, false, false, false, false, nil)
	})
}

func (m *AMQPManager) DestroyBroadcastChannel(ctx context.Context, name string) error {
	return m.withChannel(ctx, "delete exchange", name, func(ch *amqp.Channel) error {
		return ch.ExchangeDelete(name, false, false)
	})
}

func (m *AMQPManager) Publish(ctx context.Context, name string, body []byte) error {
	return m.withChannel(ctx, "publish", name, func(ch *amqp.Channel) error {
		return ch.PublishWithContext(ctx, name, "", false, false, amqp.Publishing{
			ContentType: "text/plain",
			Timestamp:   time.Now(),
			Body:        body,
		})
	})
}

func (m *AMQPManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.conn.IsClosed() {
		return nil
	}
	return m.conn.Close()
}
