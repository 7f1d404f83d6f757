package realtime

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Authenticator resolves a credential to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Principal, error)
}

// Handler upgrades HTTP connections to websocket clients. The credential is
// read from the token query parameter or a bearer Authorization header.
type Handler struct {
	hub        *Hub
	auth       Authenticator
	upgrader   websocket.Upgrader
	sendBuffer int
	logger     *zap.Logger
}

// NewHandler builds the upgrade handler. An empty allowedOrigins list only
// admits same-host origins; "*" admits any.
func NewHandler(hub *Hub, auth Authenticator, allowedOrigins []string, sendBuffer int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r, allowedOrigins)
			},
		},
		sendBuffer: sendBuffer,
		logger:     logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, err := h.auth.Authenticate(r.Context(), credential(r))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, principal, h.sendBuffer)
	h.hub.Register(client)
	channels := ChannelsFor(principal)
	for _, channel := range channels {
		h.hub.Join(client.ID, channel)
	}
	h.hub.PublishToConnection(client.ID, EventConnected, map[string]any{
		"connectionId": client.ID,
		"channels":     channels,
	})
	h.logger.Info("realtime client connected",
		zap.String("conn_id", client.ID),
		zap.String("user_id", principal.ID),
		zap.String("role", string(principal.Role)))

	go h.writePump(client)
	h.readPump(client)
}

// readPump drains client frames so control messages are processed. Clients
// have nothing to say beyond pongs and close.
func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func credential(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func originAllowed(r *http.Request, allowList []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := hostOnly(originURL.Host)
	if originHost == "" {
		return false
	}
	if originHost == hostOnly(r.Host) {
		return true
	}
	for _, candidate := range allowList {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.EqualFold(strings.TrimSuffix(candidate, "/"), originURL.Scheme+"://"+originURL.Host) {
			return true
		}
	}
	return false
}

func hostOnly(host string) string {
	host = strings.TrimSpace(strings.ToLower(host))
	if parsed, _, err := net.SplitHostPort(host); err == nil {
		return strings.Trim(parsed, "[]")
	}
	return strings.Trim(host, "[]")
}
