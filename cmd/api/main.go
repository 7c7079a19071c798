package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	v1 "go-stranger/cmd/api/router/v1"
	cacheadapter "go-stranger/internal/infrastructure/cache/adapter"
	cport "go-stranger/internal/infrastructure/cache/port"
	"go-stranger/internal/infrastructure/config"
	"go-stranger/internal/infrastructure/realtime"
	"go-stranger/internal/pkg/matchmaking/application/usecase"
	"go-stranger/internal/pkg/matchmaking/persistence"

	"github.com/gin-gonic/gin"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load .env file
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	stores, err := persistence.Open(startCtx, cfg, "go-stranger-api", logger)
	cancel()
	if err != nil {
		log.Fatalf("failed to open stores: %v", err)
	}
	defer stores.Close()

	registry := usecase.NewPresenceRegistry(stores.Presence, cfg.StalenessThreshold, usecase.WithPresenceLogger(logger))
	defer registry.Stop()
	pool := usecase.NewWaitingPool(stores.Waiting, logger)

	var cache cport.Cache = cacheadapter.NewMemoryCache()
	if stores.Redis != nil {
		cache = cacheadapter.NewRedisCache(stores.Redis, "go-stranger:api")
	}

	router := realtime.NewRouter()
	defer router.Close()
	hub := realtime.NewHub(router, logger)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "OK",
		})
	})
	v1.RegisterRoutes(r, registry, pool, cache, hub)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("api listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}
