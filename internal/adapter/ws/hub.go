// Package ws pushes feed updates, alerts, and chat traffic to browser clients
// over a single websocket endpoint.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cosmicwatch/neo-watch-service/internal/auth"
	"github.com/cosmicwatch/neo-watch-service/internal/domain"
	"github.com/cosmicwatch/neo-watch-service/internal/observability"
)

const (
	chatHistoryLimit = 50

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendQueueSize  = 32
)

// ChatStore persists and replays chat-channel messages.
type ChatStore interface {
	RecentMessages(ctx context.Context, limit int) ([]domain.ChatMessage, error)
	InsertMessage(ctx context.Context, m domain.ChatMessage) (domain.ChatMessage, error)
	UserName(ctx context.Context, userID int64) (string, error)
}

// TokenValidator resolves an access token into session claims.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// envelope is the wire frame in both directions: a named event plus payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type chatPayload struct {
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans broadcast frames out to all connected clients. A client that
// cannot keep up loses frames rather than stalling the hub.
type Hub struct {
	store   ChatStore
	tokens  TokenValidator
	logger  *slog.Logger
	metrics *observability.Metrics

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a Hub. Clients are admitted through HandleConnection.
func NewHub(store ChatStore, tokens TokenValidator, logger *slog.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		store:   store,
		tokens:  tokens,
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The endpoint carries no credentials at upgrade time, so any
			// origin may connect, matching the public read-only API.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Broadcast queues one event for every connected client. It never blocks:
// frames to clients with a full send queue are dropped and counted.
func (h *Hub) Broadcast(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("broadcast payload not serializable", "event", event, "error", err)
		return
	}
	frame, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		h.logger.Error("broadcast frame not serializable", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.metrics.WSMessagesDropped.Inc()
			h.logger.Warn("dropped frame for slow client", "client_id", c.id, "event", event)
		}
	}
}

// HandleConnection upgrades an HTTP request and services the client until it
// disconnects.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}

	h.register(c)
	h.sendChatHistory(r.Context(), c)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.metrics.WSClients.Inc()
	h.logger.Info("websocket client connected", "client_id", c.id)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	if present {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	if present {
		h.metrics.WSClients.Dec()
		h.logger.Info("websocket client disconnected", "client_id", c.id)
	}
}

// sendChatHistory replays the most recent chat messages to a newly connected
// client. History failures degrade to an empty backlog instead of refusing
// the connection.
func (h *Hub) sendChatHistory(ctx context.Context, c *client) {
	history, err := h.store.RecentMessages(ctx, chatHistoryLimit)
	if err != nil {
		h.logger.Error("chat history unavailable", "client_id", c.id, "error", err)
		history = []domain.ChatMessage{}
	}

	data, err := json.Marshal(history)
	if err != nil {
		return
	}
	frame, err := json.Marshal(envelope{Event: "chat_history", Data: data})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
		h.metrics.WSMessagesDropped.Inc()
	}
}

// readPump consumes frames from one client until the connection breaks.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "client_id", c.id, "error", err)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.logger.Warn("unreadable client frame", "client_id", c.id, "error", err)
			continue
		}
		if env.Event == "chat_message" {
			h.handleChatMessage(c, env.Data)
		}
	}
}

// handleChatMessage persists one inbound chat message and fans it out. An
// invalid or absent token demotes the sender to Guest instead of rejecting
// the message.
func (h *Hub) handleChatMessage(c *client, data json.RawMessage) {
	var payload chatPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.logger.Warn("unreadable chat payload", "client_id", c.id, "error", err)
		return
	}
	text := strings.TrimSpace(payload.Message)
	if text == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := domain.ChatMessage{SenderName: "Guest", Text: text}
	if payload.Token != "" {
		if claims, err := h.tokens.Validate(payload.Token); err == nil {
			if name, err := h.store.UserName(ctx, claims.UserID); err == nil {
				msg.UserID = &claims.UserID
				msg.SenderName = name
			}
		}
	}

	saved, err := h.store.InsertMessage(ctx, msg)
	if err != nil {
		h.logger.Error("chat message not persisted", "client_id", c.id, "error", err)
		return
	}
	h.Broadcast("chat_message", saved)
}

// writePump drains one client's send queue and keeps the connection alive
// with pings.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
