package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	cport "go-stranger/internal/infrastructure/cache/port"
	"go-stranger/internal/pkg/matchmaking/application/usecase"

	"github.com/gin-gonic/gin"
)

const (
	PresenceCountKey = "presence:count"
	presenceCountTTL = 2 * time.Second
)

// PresenceCountController serves the online count. The count sweeps stale
// records first, so it is cached briefly to keep polling clients cheap.
type PresenceCountController struct {
	Registry *usecase.PresenceRegistry
	Cache    cport.Cache
}

func NewPresenceCountController(registry *usecase.PresenceRegistry, cache cport.Cache) *PresenceCountController {
	return &PresenceCountController{Registry: registry, Cache: cache}
}

func (h *PresenceCountController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		if h.Cache != nil {
			if v, err := h.Cache.Get(ctx, PresenceCountKey); err == nil {
				if n, err := strconv.ParseInt(v, 10, 64); err == nil {
					c.JSON(http.StatusOK, gin.H{"online": n, "cached": true})
					return
				}
			}
		}

		n, err := h.Registry.CountActive(ctx)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, usecase.ErrPersistence) {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		if h.Cache != nil {
			_ = h.Cache.Set(ctx, PresenceCountKey, strconv.FormatInt(n, 10), presenceCountTTL)
		}
		c.JSON(http.StatusOK, gin.H{"online": n, "cached": false})
	}
}
