package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/weiawesome/wes-io-groupchat/pkg/log"
)

// ErrHubStopped is returned by Register once Run has returned.
var ErrHubStopped = errors.New("hub stopped")

// Member is one connection's presence in a room.
type Member struct {
	Client      *Client
	DisplayName string
}

// Membership is a room a client was in when it disconnected.
type Membership struct {
	Room        string
	DisplayName string
}

// DisconnectFunc is called after a client is unregistered, outside the hub
// lock, with the rooms it was removed from.
type DisconnectFunc func(client *Client, left []Membership)

type Hub struct {
	clients    map[string]*Client            // clientID -> client
	rooms      map[string]map[string]*Member // room -> clientID -> member
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex

	onDisconnect DisconnectFunc
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Member),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// OnDisconnect installs the disconnect callback. Call before Run.
func (h *Hub) OnDisconnect(fn DisconnectFunc) {
	h.onDisconnect = fn
}

// Run serves register/unregister until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	l := log.L()
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if !client.closed {
				h.clients[client.ID] = client
			}
			h.mu.Unlock()
			l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			left, ok := h.remove(client)
			if !ok {
				continue
			}
			l.Debug().Str(log.FieldConnectionID, client.ID).Int("rooms", len(left)).Msg("client unregistered")
			if h.onDisconnect != nil {
				h.onDisconnect(client, left)
			}

		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

func (h *Hub) remove(client *Client) ([]Membership, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.closed {
		return nil, false
	}
	client.closed = true

	var left []Membership
	for room, members := range h.rooms {
		if m, ok := members[client.ID]; ok {
			left = append(left, Membership{Room: room, DisplayName: m.DisplayName})
			delete(members, client.ID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.clients, client.ID)
	close(client.Send)

	sort.Slice(left, func(i, j int) bool { return left[i].Room < left[j].Room })
	return left, true
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		if !client.closed {
			client.closed = true
			close(client.Send)
		}
		delete(h.clients, id)
	}
	h.rooms = make(map[string]map[string]*Member)
	l := log.L()
	l.Info().Msg("hub stopped")
}

// Register hands client to the Run loop. After shutdown the client is marked
// closed, so it can never join a room, and ErrHubStopped is returned.
func (h *Hub) Register(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.done:
		h.mu.Lock()
		client.closed = true
		h.mu.Unlock()
		return ErrHubStopped
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Join adds client to room under displayName. It returns false when the
// client is already a member or has been unregistered.
func (h *Hub) Join(client *Client, room, displayName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.closed {
		return false
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Member)
		h.rooms[room] = members
	}
	if _, exists := members[client.ID]; exists {
		return false
	}
	members[client.ID] = &Member{Client: client, DisplayName: displayName}
	return true
}

// Leave removes client from room and returns the membership it had.
func (h *Hub) Leave(client *Client, room string) (Membership, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return Membership{}, false
	}
	m, ok := members[client.ID]
	if !ok {
		return Membership{}, false
	}
	delete(members, client.ID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	return Membership{Room: room, DisplayName: m.DisplayName}, true
}

// Broadcast delivers message to every current member of room and returns the
// number of members it was queued for. Members whose queue is full are
// dropped.
func (h *Hub) Broadcast(room string, message interface{}) (int, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return 0, err
	}
	return h.BroadcastRaw(room, data), nil
}

// BroadcastRaw sends already-encoded bytes to every member of room.
func (h *Hub) BroadcastRaw(room string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, m := range h.rooms[room] {
		select {
		case m.Client.Send <- data:
			delivered++
		default:
			l := log.L()
			l.Warn().Str(log.FieldConnectionID, m.Client.ID).Str(log.FieldRoom, room).Msg("send queue full, dropping client")
			go h.Unregister(m.Client)
		}
	}
	return delivered
}

// IsMember reports whether client is currently in room.
func (h *Hub) IsMember(client *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][client.ID]
	return ok
}

// Members returns the sorted display names currently in room.
func (h *Hub) Members(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.rooms[room]))
	for _, m := range h.rooms[room] {
		names = append(names, m.DisplayName)
	}
	sort.Strings(names)
	return names
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
