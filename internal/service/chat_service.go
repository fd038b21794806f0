package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-groupchat/internal/audit"
	"github.com/weiawesome/wes-io-groupchat/internal/domain"
	"github.com/weiawesome/wes-io-groupchat/internal/exchange"
	"github.com/weiawesome/wes-io-groupchat/internal/hub"
	"github.com/weiawesome/wes-io-groupchat/pkg/log"
	"github.com/weiawesome/wes-io-groupchat/pkg/pubsub"
)

type chatService struct {
	hub        *hub.Hub
	exchange   exchange.Manager
	publisher  pubsub.Publisher // nil when clustering is off
	instanceID string

	mu       sync.Mutex
	stopping bool
	inflight sync.WaitGroup
}

func NewChatService(h *hub.Hub, ex exchange.Manager, publisher pubsub.Publisher, instanceID string) ChatService {
	return &chatService{
		hub:        h,
		exchange:   ex,
		publisher:  publisher,
		instanceID: instanceID,
	}
}

func (s *chatService) HandleMessage(ctx context.Context, c *hub.Client, raw []byte) {
	l := log.Ctx(ctx)

	var env domain.InboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.SendMessage(domain.NewErrorEnvelope(domain.ErrCodeBadRequest, "invalid message format"))
		return
	}

	var err error
	switch env.Event {
	case domain.EventJoin:
		var d domain.JoinData
		if err = json.Unmarshal(env.Data, &d); err == nil {
			err = s.Join(ctx, c, d.Room, d.Username)
		}

	case domain.EventText:
		var d domain.TextData
		if err = json.Unmarshal(env.Data, &d); err == nil {
			err = s.Send(ctx, c, d.Room, d.Username, d.Message)
		}

	case domain.EventLeave:
		var d domain.LeaveData
		if err = json.Unmarshal(env.Data, &d); err == nil {
			err = s.Leave(ctx, c, d.Room, d.Username)
		}

	default:
		c.SendMessage(domain.NewErrorEnvelope(domain.ErrCodeUnknownEvent, "unknown event: "+env.Event))
		return
	}

	if err != nil {
		l.Debug().Err(err).Str("event", env.Event).Msg("event rejected")
		c.SendMessage(errorEnvelope(err))
	}
}

func errorEnvelope(err error) *domain.OutboundEnvelope {
	switch {
	case errors.Is(err, ErrNotInRoom):
		return domain.NewErrorEnvelope(domain.ErrCodeNotInRoom, err.Error())
	case errors.Is(err, ErrInvalidRoom), errors.Is(err, ErrEmptyMessage):
		return domain.NewErrorEnvelope(domain.ErrCodeBadRequest, err.Error())
	default:
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return domain.NewErrorEnvelope(domain.ErrCodeBadRequest, "invalid event data")
		}
		return domain.NewErrorEnvelope(domain.ErrCodeInternalError, "internal error")
	}
}

// displayName prefers the session identity, then the name the client sent.
func displayName(c *hub.Client, claimed string) string {
	if c.Username != "" {
		return c.Username
	}
	if claimed = strings.TrimSpace(claimed); claimed != "" {
		return claimed
	}
	return domain.GuestUsername
}

// Join adds the connection to room and announces it to every member,
// the joiner included. Joining a room twice does nothing.
func (s *chatService) Join(ctx context.Context, c *hub.Client, room, username string) error {
	if room == "" {
		return ErrInvalidRoom
	}
	name := displayName(c, username)

	if !s.hub.Join(c, room, name) {
		return nil
	}

	s.announce(ctx, room, domain.JoinAnnouncement(name))
	audit.LogWithTarget(ctx, audit.ActionJoinRoom, name, room, "joined room")
	return nil
}

// Leave removes the connection from room and tells the remaining members.
func (s *chatService) Leave(ctx context.Context, c *hub.Client, room, username string) error {
	if room == "" {
		return ErrInvalidRoom
	}

	m, ok := s.hub.Leave(c, room)
	if !ok {
		return ErrNotInRoom
	}

	s.announce(ctx, room, domain.LeaveAnnouncement(m.DisplayName))
	audit.LogWithTarget(ctx, audit.ActionLeaveRoom, m.DisplayName, room, "left room")
	return nil
}

// Send delivers the message to local members immediately, then publishes it
// to the group's broadcast channel and the cluster in the background.
// The sender does not need to be a member.
func (s *chatService) Send(ctx context.Context, c *hub.Client, room, username, body string) error {
	if room == "" {
		return ErrInvalidRoom
	}
	if strings.TrimSpace(body) == "" {
		return ErrEmptyMessage
	}
	name := displayName(c, username)

	if _, err := s.hub.Broadcast(room, domain.NewMessageEnvelope(room, name, body)); err != nil {
		return err
	}

	payload := domain.BrokerBody(name, body)
	s.goAsync(ctx, func(ctx context.Context) {
		if err := s.exchange.Publish(ctx, room, payload); err != nil {
			l := log.Ctx(ctx)
			l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to publish to broadcast channel")
		}
	})
	s.relay(ctx, pubsub.EventChatMessage, room, name, body)

	audit.LogWithTarget(ctx, audit.ActionSendMessage, name, room, "message sent")
	return nil
}

func (s *chatService) HandleDisconnect(c *hub.Client, left []hub.Membership) {
	ctx := log.WithStr(context.Background(), log.FieldConnectionID, c.ID)

	for _, m := range left {
		s.announce(ctx, m.Room, domain.LeaveAnnouncement(m.DisplayName))
		audit.LogWithTarget(ctx, audit.ActionLeaveRoom, m.DisplayName, m.Room, "left room on disconnect")
	}
	audit.LogWithDetail(ctx, audit.ActionDisconnect, c.Username, c.ID, "client disconnected")
}

func (s *chatService) announce(ctx context.Context, room, text string) {
	if _, err := s.hub.Broadcast(room, domain.NewMessageEnvelope(room, domain.SystemUsername, text)); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to broadcast announcement")
	}
	s.relay(ctx, pubsub.EventSystemMessage, room, domain.SystemUsername, text)
}

// relay forwards a room message to the other instances.
func (s *chatService) relay(ctx context.Context, eventType, room, username, message string) {
	if s.publisher == nil {
		return
	}

	ev := pubsub.NewRelayEvent(eventType, s.instanceID, room, username, message)

	s.goAsync(ctx, func(ctx context.Context) {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldRoom, room).Msg("failed to relay to cluster")
		}
	})
}

// Stop refuses new background publishes and waits for the in-flight ones.
func (s *chatService) Stop() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	s.inflight.Wait()
}

// goAsync runs fn in a tracked goroutine detached from ctx cancellation.
func (s *chatService) goAsync(ctx context.Context, fn func(context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		fn(context.WithoutCancel(ctx))
	}()
}

// RunRelay delivers events from other instances to local members until ctx
// is done, resubscribing after failures.
func (s *chatService) RunRelay(ctx context.Context, sub pubsub.Subscriber) {
	l := log.L().With().Str(log.FieldInstanceID, s.instanceID).Logger()

	for ctx.Err() == nil {
		events, err := sub.Subscribe(ctx)
		if err != nil {
			l.Warn().Err(err).Msg("cluster relay subscription failed, retrying in 2s")
		} else {
			l.Info().Msg("cluster relay subscribed")
			for ev := range events {
				s.deliverRemote(ev)
			}
		}

		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
		}
	}
}

func (s *chatService) deliverRemote(ev *pubsub.Event) {
	if ev.FromInstance(s.instanceID) {
		return
	}
	if _, err := s.hub.Broadcast(ev.Room, domain.NewMessageEnvelope(ev.Room, ev.Username, ev.Message)); err != nil {
		l := log.L()
		l.Error().Err(err).Str(log.FieldRoom, ev.Room).Str("origin", ev.Origin).Msg("failed to deliver relayed message")
	}
}
