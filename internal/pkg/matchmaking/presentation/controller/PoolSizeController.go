package controller

import (
	"context"
	"net/http"
	"time"

	"go-stranger/internal/pkg/matchmaking/application/usecase"

	"github.com/gin-gonic/gin"
)

// PoolSizeController reports how many participants are currently waiting.
type PoolSizeController struct {
	Pool *usecase.WaitingPool
}

func NewPoolSizeController(pool *usecase.WaitingPool) *PoolSizeController {
	return &PoolSizeController{Pool: pool}
}

func (h *PoolSizeController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		n, err := h.Pool.Size(ctx)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"waiting": n})
	}
}
