package hub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-groupchat/internal/config"
	"github.com/weiawesome/wes-io-groupchat/pkg/log"
)

var ErrSendQueueFull = errors.New("send queue full")

// Client is one websocket connection. Send is closed by the hub on
// unregister, which makes WritePump say goodbye and return.
type Client struct {
	ID       string
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte
	Username string // session identity, empty for guests
	config   config.WebSocketConfig

	closed bool // guarded by Hub.mu
}

func NewClient(id string, hub *Hub, conn *websocket.Conn, username string, cfg config.WebSocketConfig) *Client {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return &Client{
		ID:       id,
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, cfg.SendBuffer),
		Username: username,
		config:   cfg,
	}
}

// ReadPump hands every inbound frame to handle until the peer goes away or
// stops answering pings, then unregisters the client.
func (c *Client) ReadPump(ctx context.Context, handle func(context.Context, *Client, []byte)) {
	l := log.Ctx(ctx)
	frames := 0
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
		l.Debug().Int("frames", frames).Msg("websocket reader stopped")
	}()

	if c.config.MaxMessageSize > 0 {
		c.Conn.SetReadLimit(c.config.MaxMessageSize)
	}
	extend := func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	}
	extend("")
	c.Conn.SetPongHandler(extend)

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				l.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		frames++
		handle(ctx, c, frame)
	}
}

// WritePump is the only writer on Conn. It forwards queued frames and pings
// the peer every PingInterval.
func (c *Client) WritePump(ctx context.Context) {
	ping := time.NewTicker(c.config.PingInterval)
	defer func() {
		ping.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			deadline := time.Now().Add(c.config.WriteWait)
			if !ok {
				c.Conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				return
			}
			c.Conn.SetWriteDeadline(deadline)
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				l := log.Ctx(ctx)
				l.Debug().Err(err).Msg("websocket write failed")
				return
			}

		case <-ping.C:
			if err := c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteWait)); err != nil {
				return
			}
		}
	}
}

// SendMessage queues message for this client only. A client that already
// left drops it silently.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	if c.closed {
		return nil
	}

	select {
	case c.Send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}
