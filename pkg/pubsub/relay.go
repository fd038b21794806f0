package pubsub

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Relay channel naming. Redis uses one channel per room; Kafka uses a single
// topic keyed by room.
const (
	ChannelRoomRelay = "chat:room:%s:relay"
	PatternRoomRelay = "chat:room:*:relay"
	TopicRoomRelay   = "chat-relay"
)

// Event kinds.
const (
	EventChatMessage   = "chat_message"
	EventSystemMessage = "system_message"
)

// RoomRelayChannel returns the Redis channel for a room.
func RoomRelayChannel(room string) string {
	return fmt.Sprintf(ChannelRoomRelay, room)
}

// Event is one room message crossing instances.
type Event struct {
	Kind     string    `json:"kind"`
	Room     string    `json:"room"`
	Username string    `json:"username"`
	Message  string    `json:"message"`
	Origin   string    `json:"origin"`
	SentAt   time.Time `json:"sent_at"`
}

// NewRelayEvent stamps a room message with the publishing instance.
func NewRelayEvent(kind, origin, room, username, message string) *Event {
	return &Event{
		Kind:     kind,
		Room:     room,
		Username: username,
		Message:  message,
		Origin:   origin,
		SentAt:   time.Now(),
	}
}

// FromInstance reports whether the event was published by instanceID.
func (e *Event) FromInstance(instanceID string) bool {
	return e.Origin == instanceID
}

// Publisher sends an event to the relay of its room.
type Publisher interface {
	Publish(ctx context.Context, ev *Event) error
}

// Subscriber receives relay events of every room. The channel is closed when
// ctx is done or the subscription fails.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan *Event, error)
}

// Bus is a cluster relay transport.
type Bus interface {
	Publisher
	Subscriber
	io.Closer
}
