package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-groupchat/internal/config"
	"github.com/weiawesome/wes-io-groupchat/internal/domain"
	"github.com/weiawesome/wes-io-groupchat/internal/exchange/exchangetest"
	"github.com/weiawesome/wes-io-groupchat/internal/hub"
	"github.com/weiawesome/wes-io-groupchat/pkg/pubsub"
)

type received struct {
	Event string             `json:"event"`
	Data  domain.ChatMessage `json:"data"`
}

type fakeBus struct {
	mu        sync.Mutex
	published []*pubsub.Event
	events    chan *pubsub.Event
}

func newFakeBus() *fakeBus {
	return &fakeBus{events: make(chan *pubsub.Event, 16)}
}

func (b *fakeBus) Publish(ctx context.Context, ev *pubsub.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, ev)
	return nil
}

func (b *fakeBus) Published() []*pubsub.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*pubsub.Event(nil), b.published...)
}

func (b *fakeBus) Subscribe(ctx context.Context) (<-chan *pubsub.Event, error) {
	return b.events, nil
}

type chatFixture struct {
	t        *testing.T
	hub      *hub.Hub
	svc      ChatService
	recorder *exchangetest.Recorder
}

func newChatFixture(t *testing.T, bus pubsub.Publisher) *chatFixture {
	t.Helper()

	h := hub.NewHub()
	rec := exchangetest.NewRecorder()
	svc := NewChatService(h, rec, bus, "instance-a")
	h.OnDisconnect(svc.HandleDisconnect)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		svc.Stop()
		cancel()
		<-done
	})

	return &chatFixture{t: t, hub: h, svc: svc, recorder: rec}
}

func (f *chatFixture) connect(id, username string) *hub.Client {
	c := hub.NewClient(id, f.hub, nil, username, config.WebSocketConfig{SendBuffer: 32})
	require.NoError(f.t, f.hub.Register(c))
	return c
}

func messages(t *testing.T, c *hub.Client) []domain.ChatMessage {
	t.Helper()
	var out []domain.ChatMessage
	for {
		select {
		case raw, ok := <-c.Send:
			if !ok {
				return out
			}
			var r received
			require.NoError(t, json.Unmarshal(raw, &r))
			require.Equal(t, domain.EventMessage, r.Event)
			r.Data.Room = ""
			out = append(out, r.Data)
		default:
			return out
		}
	}
}

func msg(username, message string) domain.ChatMessage {
	return domain.ChatMessage{Username: username, Message: message}
}

func TestTwoMembersChatScenario(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()

	alice := f.connect("c1", "")
	bob := f.connect("c2", "")

	require.NoError(t, f.svc.Join(ctx, alice, "lobby", "alice"))
	require.NoError(t, f.svc.Join(ctx, bob, "lobby", "bob"))
	require.NoError(t, f.svc.Send(ctx, alice, "lobby", "alice", "hello"))

	assert.Equal(t, []domain.ChatMessage{
		msg("System", "alice has joined the room."),
		msg("System", "bob has joined the room."),
		msg("alice", "hello"),
	}, messages(t, alice))
	assert.Equal(t, []domain.ChatMessage{
		msg("System", "bob has joined the room."),
		msg("alice", "hello"),
	}, messages(t, bob))

	assert.Eventually(t, func() bool {
		return len(f.recorder.Published()) == 1
	}, time.Second, 10*time.Millisecond)
	f.svc.Stop()
	assert.Equal(t, []exchangetest.Published{{Name: "lobby", Body: "alice: hello"}}, f.recorder.Published())
}

func TestRoomIsolation(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()

	c1 := f.connect("c1", "")
	c2 := f.connect("c2", "")
	outsider := f.connect("c3", "")

	require.NoError(t, f.svc.Join(ctx, c1, "room1", "alice"))
	require.NoError(t, f.svc.Join(ctx, c2, "room1", "bob"))
	require.NoError(t, f.svc.Join(ctx, outsider, "room2", "carol"))
	messages(t, c1)
	messages(t, outsider)

	require.NoError(t, f.svc.Send(ctx, c2, "room1", "bob", "hi"))

	assert.Equal(t, []domain.ChatMessage{msg("bob", "hi")}, messages(t, c1))
	assert.Empty(t, messages(t, outsider))
}

func TestSendWithoutMembership(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()

	member := f.connect("c1", "")
	stranger := f.connect("c2", "")
	require.NoError(t, f.svc.Join(ctx, member, "lobby", "alice"))
	messages(t, member)

	require.NoError(t, f.svc.Send(ctx, stranger, "lobby", "mallory", "psst"))

	assert.Equal(t, []domain.ChatMessage{msg("mallory", "psst")}, messages(t, member))
	assert.Empty(t, messages(t, stranger))
}

func TestJoinTwiceAnnouncesOnce(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()

	c := f.connect("c1", "")
	require.NoError(t, f.svc.Join(ctx, c, "lobby", "alice"))
	require.NoError(t, f.svc.Join(ctx, c, "lobby", "alice"))

	assert.Equal(t, []domain.ChatMessage{msg("System", "alice has joined the room.")}, messages(t, c))
}

func TestSessionIdentityWins(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()

	signedIn := f.connect("c1", "alice")
	guest := f.connect("c2", "")
	require.NoError(t, f.svc.Join(ctx, signedIn, "lobby", "someone-else"))
	require.NoError(t, f.svc.Join(ctx, guest, "lobby", ""))

	assert.Equal(t, []string{"Guest", "alice"}, f.hub.Members("lobby"))
}

func TestLeaveAnnouncesToRemaining(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()

	alice := f.connect("c1", "")
	bob := f.connect("c2", "")
	require.NoError(t, f.svc.Join(ctx, alice, "lobby", "alice"))
	require.NoError(t, f.svc.Join(ctx, bob, "lobby", "bob"))
	messages(t, alice)
	messages(t, bob)

	require.NoError(t, f.svc.Leave(ctx, bob, "lobby", "bob"))
	assert.Equal(t, []domain.ChatMessage{msg("System", "bob has left the room.")}, messages(t, alice))
	assert.Empty(t, messages(t, bob))

	assert.ErrorIs(t, f.svc.Leave(ctx, bob, "lobby", "bob"), ErrNotInRoom)
}

func TestDisconnectAnnouncesLeave(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()

	alice := f.connect("c1", "")
	bob := f.connect("c2", "")
	require.NoError(t, f.svc.Join(ctx, alice, "lobby", "alice"))
	require.NoError(t, f.svc.Join(ctx, bob, "lobby", "bob"))
	messages(t, alice)

	f.hub.Unregister(bob)

	var got []domain.ChatMessage
	assert.Eventually(t, func() bool {
		got = append(got, messages(t, alice)...)
		return len(got) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, msg("System", "bob has left the room."), got[0])
	assert.False(t, f.hub.IsMember(bob, "lobby"))
}

func TestPublishFailureDoesNotBlockLocalDelivery(t *testing.T) {
	f := newChatFixture(t, nil)
	f.recorder.SetPublishErr(errors.New("broker down"))
	ctx := context.Background()

	c := f.connect("c1", "")
	require.NoError(t, f.svc.Join(ctx, c, "lobby", "alice"))
	messages(t, c)

	require.NoError(t, f.svc.Send(ctx, c, "lobby", "alice", "still here"))
	assert.Equal(t, []domain.ChatMessage{msg("alice", "still here")}, messages(t, c))
}

func TestHandleMessage(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()
	c := f.connect("c1", "")

	readError := func() domain.ErrorData {
		t.Helper()
		select {
		case raw := <-c.Send:
			var env struct {
				Event string           `json:"event"`
				Data  domain.ErrorData `json:"data"`
			}
			require.NoError(t, json.Unmarshal(raw, &env))
			require.Equal(t, domain.EventError, env.Event)
			return env.Data
		case <-time.After(time.Second):
			t.Fatal("no error envelope")
			return domain.ErrorData{}
		}
	}

	f.svc.HandleMessage(ctx, c, []byte(`not json`))
	assert.Equal(t, domain.ErrCodeBadRequest, readError().Code)

	f.svc.HandleMessage(ctx, c, []byte(`{"event":"dance","data":{}}`))
	assert.Equal(t, domain.ErrCodeUnknownEvent, readError().Code)

	f.svc.HandleMessage(ctx, c, []byte(`{"event":"join","data":{"room":""}}`))
	assert.Equal(t, domain.ErrCodeBadRequest, readError().Code)

	f.svc.HandleMessage(ctx, c, []byte(`{"event":"leave","data":{"room":"lobby"}}`))
	assert.Equal(t, domain.ErrCodeNotInRoom, readError().Code)

	f.svc.HandleMessage(ctx, c, []byte(`{"event":"join","data":{"room":"lobby","username":"alice"}}`))
	f.svc.HandleMessage(ctx, c, []byte(`{"event":"text","data":{"room":"lobby","username":"alice","message":"hi"}}`))
	assert.Equal(t, []domain.ChatMessage{
		msg("System", "alice has joined the room."),
		msg("alice", "hi"),
	}, messages(t, c))
}

func TestClusterRelay(t *testing.T) {
	bus := newFakeBus()
	f := newChatFixture(t, bus)
	ctx := context.Background()

	c := f.connect("c1", "")
	require.NoError(t, f.svc.Join(ctx, c, "lobby", "alice"))
	messages(t, c)

	t.Run("publishes with origin", func(t *testing.T) {
		require.NoError(t, f.svc.Send(ctx, c, "lobby", "alice", "hi"))
		messages(t, c)

		assert.Eventually(t, func() bool {
			for _, ev := range bus.Published() {
				if ev.Kind == pubsub.EventChatMessage {
					return ev.Origin == "instance-a" && ev.Room == "lobby" && ev.Message == "hi"
				}
			}
			return false
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("delivers remote events and skips own", func(t *testing.T) {
		relayCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go f.svc.RunRelay(relayCtx, bus)

		bus.events <- pubsub.NewRelayEvent(pubsub.EventChatMessage, "instance-a", "lobby", "alice", "echo")
		bus.events <- pubsub.NewRelayEvent(pubsub.EventChatMessage, "instance-b", "lobby", "bob", "from b")

		var got []domain.ChatMessage
		assert.Eventually(t, func() bool {
			got = append(got, messages(t, c)...)
			return len(got) >= 1
		}, time.Second, 10*time.Millisecond)
		assert.Equal(t, []domain.ChatMessage{msg("bob", "from b")}, got)
	})
}

// gatedExchange holds every Publish until release is closed.
type gatedExchange struct {
	*exchangetest.Recorder
	release chan struct{}
}

func (g *gatedExchange) Publish(ctx context.Context, name string, body []byte) error {
	<-g.release
	return g.Recorder.Publish(ctx, name, body)
}

func TestStopWaitsForInflightPublishes(t *testing.T) {
	ex := &gatedExchange{Recorder: exchangetest.NewRecorder(), release: make(chan struct{})}
	h := hub.NewHub()
	svc := NewChatService(h, ex, nil, "instance-a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := hub.NewClient("c1", h, nil, "", config.WebSocketConfig{SendBuffer: 32})
	require.NoError(t, h.Register(c))
	require.NoError(t, svc.Join(ctx, c, "lobby", "alice"))
	require.NoError(t, svc.Send(ctx, c, "lobby", "alice", "pending"))

	stopped := make(chan struct{})
	go func() {
		svc.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a publish was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(ex.release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the publish finished")
	}
	assert.Equal(t, []exchangetest.Published{{Name: "lobby", Body: "alice: pending"}}, ex.Published())

	// Nothing is published once stopped.
	require.NoError(t, svc.Send(ctx, c, "lobby", "alice", "late"))
	assert.Len(t, ex.Published(), 1)
}
