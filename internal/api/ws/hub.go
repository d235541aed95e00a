package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // operator consoles are served from other origins
	},
}

// Client represents a connected WebSocket client.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	action models.AuditAction // optional filter
}

type message struct {
	data   []byte
	action models.AuditAction
}

// Hub maintains active WebSocket clients and broadcasts access decisions.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub event loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
				observability.WSConnections.Dec()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "filter", client.action)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				observability.WSConnections.Dec()
			}
			h.mu.Unlock()
			slog.Debug("ws client disconnected")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.action != "" && client.action != msg.action {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// slow client
					delete(h.clients, client)
					close(client.send)
					observability.WSConnections.Dec()
				}
			}
			h.mu.Unlock()
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Record queues the outcome for connected clients. It never blocks; when the
// broadcast queue is full the outcome is dropped for live viewers only.
func (h *Hub) Record(_ context.Context, out *models.VerificationOutcome) error {
	data, err := json.Marshal(dto.WSEvent{Type: "verification", Data: dto.NewVerifyResponse(out)})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- message{data: data, action: out.Action()}:
		observability.AuditRecords.WithLabelValues("ws", "ok").Inc()
	default:
		observability.AuditRecords.WithLabelValues("ws", "dropped").Inc()
		slog.Warn("ws broadcast queue full, dropping outcome", "verification", out.ID)
	}
	return nil
}

// HandleWS upgrades the request. ?action=access_granted|access_denied
// restricts the feed.
func (h *Hub) HandleWS(c *gin.Context) {
	var action models.AuditAction
	switch strings.ToUpper(c.Query("action")) {
	case "":
	case string(models.ActionAccessGranted):
		action = models.ActionAccessGranted
	case string(models.ActionAccessDenied):
		action = models.ActionAccessDenied
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action filter"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 64),
		action: action,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		// Incoming messages are ignored; reading detects disconnects.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
