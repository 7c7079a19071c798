package controller

import (
	"net/http"

	"go-stranger/internal/infrastructure/realtime"

	"github.com/gin-gonic/gin"
)

// SignalSocketController exposes the rendezvous hub over a websocket.
type SignalSocketController struct {
	Hub *realtime.Hub
}

func NewSignalSocketController(hub *realtime.Hub) *SignalSocketController {
	return &SignalSocketController{Hub: hub}
}

func (h *SignalSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.Query("id"); id != "" && !realtime.ValidAddress(id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		h.Hub.ServeHTTP(c.Writer, c.Request)
	}
}

// StatsController reports hub occupancy.
type StatsController struct {
	Hub *realtime.Hub
}

func NewStatsController(hub *realtime.Hub) *StatsController {
	return &StatsController{Hub: hub}
}

func (h *StatsController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"registered": h.Hub.Router().Count()})
	}
}
