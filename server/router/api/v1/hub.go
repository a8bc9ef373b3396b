package v1

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/hrygo/harvestline/plugin/ai/session"
)

const (
	hubWriteWait  = 10 * time.Second
	hubBufferSize = 256
)

// HubEvent is one frame of the dashboard stream.
type HubEvent struct {
	Type         string            `json:"type"`
	Conversation *session.Summary  `json:"conversation,omitempty"`
	Chats        []session.Summary `json:"chats,omitempty"`
}

// Hub pushes conversation changes to connected dashboards.
type Hub struct {
	conversations session.ConversationService
	upgrader      websocket.Upgrader

	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub(conversations session.ConversationService) *Hub {
	return &Hub{
		conversations: conversations,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, hubBufferSize),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It closes every client when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Publish queues a conversation change. It never blocks the store; a
// full queue drops the frame.
func (h *Hub) Publish(summary session.Summary) {
	data, err := json.Marshal(HubEvent{Type: "conversation", Conversation: &summary})
	if err != nil {
		slog.Error("failed to encode hub event", slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		slog.Warn("dashboard stream queue full, dropping update", slog.String("user_id", summary.UserID))
	}
}

// ClientCount returns the number of connected dashboards.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request, sends the current list, then streams changes.
// GET /api/admin/ws
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return nil
	}

	snapshot := HubEvent{Type: "snapshot", Chats: h.conversations.List(c.Request().Context())}
	_ = conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
	if err := conn.WriteJSON(snapshot); err != nil {
		conn.Close()
		return nil
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return nil
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}
