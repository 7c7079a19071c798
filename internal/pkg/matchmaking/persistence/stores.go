package persistence

import (
	"context"
	"fmt"
	"log/slog"

	cacheadapter "go-stranger/internal/infrastructure/cache/adapter"
	"go-stranger/internal/infrastructure/config"
	"go-stranger/internal/infrastructure/database"
	"go-stranger/internal/pkg/matchmaking/persistence/repository/adapter"
	repository "go-stranger/internal/pkg/matchmaking/persistence/repository/port"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
)

// Stores are the shared coordination stores selected by PRESENCE_BACKEND.
//
//	postgres: presence and waiting pool in Postgres
//	redis:    presence in Redis, waiting pool in Postgres
//	memory:   both in process (single process only)
type Stores struct {
	Presence repository.PresenceRepository
	Waiting  repository.WaitingPoolRepository

	// Pool and Redis are nil when the backend does not need them.
	Pool  *pgxpool.Pool
	Redis *redis.Client
}

// Open connects the stores for cfg. Postgres gets its schema ensured. A Redis
// client is also opened whenever REDIS_URL is set, for the caller to share.
func Open(ctx context.Context, cfg config.Config, appName string, logger *slog.Logger) (*Stores, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stores{}

	if cfg.PresenceBackend == config.BackendMemory {
		s.Presence = adapter.NewMemoryPresenceRepository()
		s.Waiting = adapter.NewMemoryWaitingPoolRepository()
		logger.Warn("using in-process stores; matchmaking is limited to this process")
	} else {
		pool, err := database.Connect(ctx, cfg.DBURL, database.WithApplicationName(appName))
		if err != nil {
			return nil, err
		}
		s.Pool = pool
		if err := adapter.EnsureSchema(ctx, pool); err != nil {
			s.Close()
			return nil, err
		}
		s.Presence = adapter.NewPgPresenceRepository(pool)
		s.Waiting = adapter.NewPgWaitingPoolRepository(pool)
	}

	if cfg.RedisURL != "" || cfg.PresenceBackend == config.BackendRedis {
		client, err := cacheadapter.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("presence backend %q: %w", cfg.PresenceBackend, err)
		}
		s.Redis = client
		if cfg.PresenceBackend == config.BackendRedis {
			s.Presence = adapter.NewRedisPresenceRepository(client, "")
		}
	}

	logger.Info("stores ready", "presence_backend", cfg.PresenceBackend)
	return s, nil
}

// Close releases every connection the stores opened.
func (s *Stores) Close() {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
}
