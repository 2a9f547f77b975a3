package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/storyfab/storyfab-api/internal/notification"
	"github.com/storyfab/storyfab-api/internal/service/auth"
)

// Websocket timing limits.
const (
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 4096
)

// WSHandler upgrades websocket connections and wires them into the
// notification registry as push channels.
type WSHandler struct {
	registry   *notification.Registry
	jwtService auth.JWTService
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewWSHandler creates a new WSHandler with the given dependencies.
func NewWSHandler(
	registry *notification.Registry,
	jwtService auth.JWTService,
	logger *slog.Logger,
) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		registry:   registry,
		jwtService: jwtService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.With(slog.String("component", "ws_handler")),
	}
}

// Serve handles GET /ws?token=...
// Browsers cannot set an Authorization header on websocket upgrades, so the
// token travels as a query parameter and is validated before upgrading.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token required", http.StatusUnauthorized)
		return
	}

	claims, err := h.jwtService.ValidateToken(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	channel := newWSChannel(conn)
	h.registry.Register(claims.UserID, channel)
	h.logger.Info("websocket connected", "user_id", claims.UserID)

	// Confirm the connection so clients know delivery is live.
	if err := channel.Send(notification.NewNotificationEvent("connected")); err != nil {
		h.registry.Unregister(claims.UserID, channel)
		_ = channel.Close()
		return
	}

	go h.readLoop(claims.UserID, channel)
}

// readLoop consumes inbound frames until the peer goes away. Client pings are
// answered with pong events; any readable frame refreshes the activity clock.
func (h *WSHandler) readLoop(userID int64, channel *wsChannel) {
	defer func() {
		h.registry.Unregister(userID, channel)
		_ = channel.Close()
		h.logger.Info("websocket disconnected", "user_id", userID)
	}()

	channel.conn.SetReadLimit(wsReadLimit)
	for {
		_, data, err := channel.conn.ReadMessage()
		if err != nil {
			return
		}
		channel.touch()

		var inbound struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &inbound); err != nil {
			continue
		}
		if inbound.Type == notification.EventTypePing {
			if err := channel.Send(notification.NewPongEvent()); err != nil {
				return
			}
		}
	}
}

// wsChannel adapts a gorilla websocket connection to the notification
// Channel interface. Writes are serialized; gorilla connections allow only
// one concurrent writer.
type wsChannel struct {
	conn *websocket.Conn

	mu         sync.Mutex
	lastActive time.Time
	closed     bool
}

// Ensure wsChannel implements notification.Channel
var _ notification.Channel = (*wsChannel)(nil)

func newWSChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{
		conn:       conn,
		lastActive: time.Now(),
	}
}

// Send implements notification.Channel.Send
func (c *wsChannel) Send(event *notification.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(event); err != nil {
		return err
	}
	c.lastActive = time.Now()
	return nil
}

// Ping implements notification.Channel.Ping
func (c *wsChannel) Ping() error {
	return c.Send(notification.NewPingEvent())
}

// LastActive implements notification.Channel.LastActive
func (c *wsChannel) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// Close implements notification.Channel.Close
func (c *wsChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// touch refreshes the activity clock on inbound traffic.
func (c *wsChannel) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}
