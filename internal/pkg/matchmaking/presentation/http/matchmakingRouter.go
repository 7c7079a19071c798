package http

import (
	cport "go-stranger/internal/infrastructure/cache/port"
	"go-stranger/internal/infrastructure/realtime"
	"go-stranger/internal/pkg/matchmaking/application/usecase"
	"go-stranger/internal/pkg/matchmaking/presentation/controller"

	"github.com/gin-gonic/gin"
)

// Deps are the collaborators the matchmaking routes are built from.
type Deps struct {
	Registry *usecase.PresenceRegistry
	Pool     *usecase.WaitingPool
	Cache    cport.Cache
	Hub      *realtime.Hub
}

// RegisterRoutes binds the matchmaking endpoints under g, one controller per endpoint.
func RegisterRoutes(g *gin.RouterGroup, d Deps) {
	countCtl := controller.NewPresenceCountController(d.Registry, d.Cache)
	poolCtl := controller.NewPoolSizeController(d.Pool)
	socketCtl := controller.NewSignalSocketController(d.Hub)
	statsCtl := controller.NewStatsController(d.Hub)

	// GET /api/v1/presence/count -> online participants
	g.GET("/presence/count", countCtl.Handle())

	// GET /api/v1/pool/size -> participants waiting for a match
	g.GET("/pool/size", poolCtl.Handle())

	// GET /api/v1/signal/ws -> rendezvous websocket (?id= reclaims an address)
	g.GET("/signal/ws", socketCtl.Handle())

	// GET /api/v1/signal/stats -> registered sockets on this node
	g.GET("/signal/stats", statsCtl.Handle())
}
