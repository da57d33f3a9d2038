package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"room-sync/internal/logging"
	"room-sync/internal/models"
	"room-sync/internal/services"
)

// Hub tracks every open connection, joined to a room or not, so the server
// can count them and tell them all about a shutdown.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// drop detaches a client from the hub and its room. Idempotent: the read
// pump and Shutdown may both get here.
func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	_, known := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if !known {
		return
	}
	c.svc.HandleDisconnect(c)
	c.close()
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown notifies every client and closes their connections. Queued
// messages, the shutdown notice included, are flushed by each write pump
// before its close frame goes out.
func (h *Hub) Shutdown(reason string) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	notice := models.NewServerShutdown(reason)
	for _, c := range clients {
		_ = c.Send(notice)
		c.svc.HandleDisconnect(c)
		c.close()
	}
}

// Handler upgrades HTTP requests into sync sessions.
type Handler struct {
	svc       *services.SyncService
	log       *logging.Logger
	hub       *Hub
	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

func NewHandler(svc *services.SyncService, log *logging.Logger, hub *Hub, heartbeat time.Duration) *Handler {
	return &Handler{
		svc:       svc,
		log:       log,
		hub:       hub,
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origins are wide open, matching the CORS policy of the
			// REST surface.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	client := newClient(uuid.NewString(), h.svc, h.log, conn, h.heartbeat)
	h.hub.add(client)
	h.log.Debugf("session %s connected", client.ID())

	go client.writePump()
	client.readPump(h.hub)
}
