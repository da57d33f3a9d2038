package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"room-sync/internal/room"
	"room-sync/internal/ws"
)

// RoomHandler serves the thin REST shell around the sync engine: room
// creation, code validation and health.
type RoomHandler struct {
	registry *room.Registry
	hub      *ws.Hub
}

func NewRoomHandler(registry *room.Registry, hub *ws.Hub) *RoomHandler {
	return &RoomHandler{registry: registry, hub: hub}
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	for i := 0; i < 5; i++ {
		code := room.NewCode()
		if _, created := h.registry.GetOrCreate(code); created {
			c.JSON(http.StatusOK, gin.H{"room": code})
			return
		}
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "could not allocate a room code"})
}

func (h *RoomHandler) ValidateRoom(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"exists": h.registry.Has(c.Param("code"))})
}

func (h *RoomHandler) Health(c *gin.Context) {
	rooms, members := h.registry.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"rooms":       rooms,
		"members":     members,
		"connections": h.hub.Count(),
	})
}
