package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/interfaces"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSMessage is the envelope of every message pushed to clients.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketHandler pushes execution-log and bot-state events to connected
// clients.
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	eventService     interfaces.EventService
	subscriptions    map[interfaces.EventType]string
	serverInstanceID string // Clients compare it to detect a server restart
}

func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]*sync.Mutex),
		eventService:     eventService,
		subscriptions:    make(map[interfaces.EventType]string),
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized")

	if eventService != nil {
		h.subscribe(interfaces.EventExecutionAppended)
		h.subscribe(interfaces.EventBotStateChanged)
	}
	return h
}

func (h *WebSocketHandler) subscribe(eventType interfaces.EventType) {
	id, err := h.eventService.Subscribe(eventType, func(ctx context.Context, event interfaces.Event) error {
		h.Broadcast(string(event.Type), event.Payload)
		return nil
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe WebSocket handler")
		return
	}
	h.subscriptions[eventType] = id
}

// Close drops the event subscriptions. Connected clients are left to the
// HTTP server shutdown.
func (h *WebSocketHandler) Close() {
	h.logger.Debug().Int("clients", h.ClientCount()).Msg("Closing WebSocket handler")
	if h.eventService == nil {
		return
	}
	for eventType, id := range h.subscriptions {
		if err := h.eventService.Unsubscribe(eventType, id); err != nil {
			h.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to unsubscribe WebSocket handler")
		}
	}
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	mutex := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = mutex
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", total).Msg("WebSocket client connected")

	h.send(conn, mutex, WSMessage{
		Type:    "hello",
		Payload: map[string]string{"server_instance_id": h.serverInstanceID},
	})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Int("clients", remaining).Msg("WebSocket client disconnected")
	}()

	// Read until the client goes away; inbound messages are ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// Broadcast sends {"type": msgType, "payload": payload} to every client.
func (h *WebSocketHandler) Broadcast(msgType string, payload interface{}) {
	msg := WSMessage{Type: msgType, Payload: payload}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn, mutex := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, mutex)
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		h.send(conn, mutexes[i], msg)
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebSocketHandler) send(conn *websocket.Conn, mutex *sync.Mutex, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	mutex.Lock()
	defer mutex.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send WebSocket message")
	}
}
