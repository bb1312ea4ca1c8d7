package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Gallery/internal/app"
	"github.com/dkeye/Gallery/internal/core"
	"github.com/dkeye/Gallery/internal/domain"
)

type NickRequest struct {
	Name string `json:"name" binding:"required,max=36"`
}

type RoomResponse struct {
	core.RoomInfo
	Players core.PlayerMap `json:"players"`
}

type handlers struct {
	rooms    core.RoomManager
	registry *app.Registry
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"rooms":    len(h.rooms.List()),
		"sessions": h.registry.SessionCount(),
	})
}

func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.rooms.List())
}

func (h *handlers) getRoom(c *gin.Context) {
	room, ok := h.lookup(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	snap, err := room.Snapshot(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, RoomResponse{RoomInfo: room.Info(), Players: snap})
}

func (h *handlers) stopRoom(c *gin.Context) {
	name, err := domain.ParseRoomName(c.Param("name"))
	if err != nil || !h.rooms.StopRoom(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) whoAmI(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.GetOrCreateUser(c.GetString("client_token")))
}

func (h *handlers) rename(c *gin.Context) {
	var req NickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name"})
		return
	}
	u, err := h.registry.UpdateUsername(c.GetString("client_token"), req.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *handlers) lookup(c *gin.Context) (core.RoomService, bool) {
	name, err := domain.ParseRoomName(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return nil, false
	}
	room, ok := h.rooms.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return nil, false
	}
	return room, true
}
