package v1

import (
	cport "go-stranger/internal/infrastructure/cache/port"
	"go-stranger/internal/infrastructure/realtime"
	"go-stranger/internal/pkg/matchmaking/application/usecase"
	httpHandler "go-stranger/internal/pkg/matchmaking/presentation/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts all version 1 API routes under /api/v1
func RegisterRoutes(r *gin.Engine, registry *usecase.PresenceRegistry, pool *usecase.WaitingPool, cache cport.Cache, hub *realtime.Hub) {
	v1 := r.Group("/api/v1")
	httpHandler.RegisterRoutes(v1, httpHandler.Deps{
		Registry: registry,
		Pool:     pool,
		Cache:    cache,
		Hub:      hub,
	})
}
