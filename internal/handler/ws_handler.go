package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-groupchat/internal/config"
	"github.com/weiawesome/wes-io-groupchat/internal/hub"
	"github.com/weiawesome/wes-io-groupchat/internal/service"
	"github.com/weiawesome/wes-io-groupchat/pkg/log"
	"github.com/weiawesome/wes-io-groupchat/pkg/middleware"
)

type WSHandler struct {
	hub      *hub.Hub
	service  service.ChatService
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, wsCfg config.WebSocketConfig) *WSHandler {
	ws := &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
	}
	ws.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     ws.checkOrigin,
	}
	return ws
}

// checkOrigin allows the configured origins, or only the serving host when
// none are configured. "*" allows any origin.
func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(h.wsCfg.AllowedOrigins) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range h.wsCfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	l := log.Ctx(c.Request.Context())

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, middleware.GetUsername(c), h.wsCfg)
	if err := h.hub.Register(client); err != nil {
		l.Warn().Err(err).Msg("rejecting websocket")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"), time.Now().Add(time.Second))
		conn.Close()
		return
	}

	// The request context ends when this handler returns; the connection
	// outlives it.
	ctx := log.WithStr(context.WithoutCancel(c.Request.Context()), log.FieldConnectionID, client.ID)
	l = log.Ctx(ctx)
	l.Debug().Str(log.FieldUsername, client.Username).Msg("websocket connected")

	go client.WritePump(ctx)
	go client.ReadPump(ctx, h.service.HandleMessage)
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}
