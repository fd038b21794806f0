package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-groupchat/pkg/log"
)

const relayBuffer = 100

// RedisBus relays over Redis PUBLISH / PSUBSCRIBE.
type RedisBus struct {
	client *redis.Client

	mu   sync.Mutex
	subs []*redis.PubSub
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

// Publish sends ev on its room's channel.
func (r *RedisBus) Publish(ctx context.Context, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return r.client.Publish(ctx, RoomRelayChannel(ev.Room), data).Err()
}

// Subscribe pattern-subscribes to the relay channel of every room.
func (r *RedisBus) Subscribe(ctx context.Context) (<-chan *Event, error) {
	sub := r.client.PSubscribe(ctx, PatternRoomRelay)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to psubscribe to %s: %w", PatternRoomRelay, err)
	}

	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.mu.Unlock()

	out := make(chan *Event, relayBuffer)
	go r.forward(ctx, sub, out)
	return out, nil
}

// Close ends all subscriptions. The client stays open.
func (r *RedisBus) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, sub := range r.subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.subs = nil
	return firstErr
}

func (r *RedisBus) forward(ctx context.Context, sub *redis.PubSub, out chan<- *Event) {
	defer close(out)

	l := log.Ctx(ctx)
	in := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			ev, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				l.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed relay event")
				continue
			}
			if !offer(ctx, out, ev) {
				l.Warn().Str(log.FieldRoom, ev.Room).Msg("relay consumer full, event dropped")
			}
		}
	}
}

func decodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if ev.Room == "" {
		return nil, errors.New("event without room")
	}
	return &ev, nil
}

// offer hands ev to out without blocking the transport. It reports false when
// the event was dropped.
func offer(ctx context.Context, out chan<- *Event, ev *Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
