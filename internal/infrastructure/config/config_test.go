package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := FromMap(map[string]string{})

	assert.Equal(t, "ws://localhost:8080/api/v1/signal/ws", cfg.SignalURL)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, BackendPostgres, cfg.PresenceBackend)
	assert.Equal(t, 10*time.Second, cfg.StalenessThreshold)
	assert.Equal(t, 5*time.Second, cfg.CountRefreshInterval)
	assert.Equal(t, 1500*time.Millisecond, cfg.SearchInterval)
	assert.Equal(t, 20, cfg.SearchMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.DialDelay)
	assert.Equal(t, 10*time.Second, cfg.DialTimeout)
	assert.Equal(t, 10*time.Second, cfg.OpenTimeout)
	assert.Equal(t, 15*time.Second, cfg.AwaitIncomingTimeout)
	assert.Equal(t, 2*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 2*time.Minute, cfg.WaitingEntryMaxAge)
	assert.Equal(t, defaultSTUN, cfg.STUNURLs)
	assert.NotEmpty(t, cfg.IdentityFile)
	assert.Equal(t, 10, cfg.AsynqConcurrency)
	assert.Equal(t, map[string]int{"maintenance": 1, "default": 1}, cfg.AsynqQueues)
}

func TestParsesDotEnvContent(t *testing.T) {
	env, err := godotenv.Unmarshal(`
DB_URL=postgresql+asyncpg://u:p@db:5432/app
REDIS_URL=redis://cache:6379/0
PRESENCE_BACKEND=Redis
STALENESS_THRESHOLD=4s
SEARCH_MAX_ATTEMPTS=5
DIAL_DELAY=250ms
STUN_URLS= stun:a:3478 , ,stun:b:3478
ASYNQ_QUEUES=maintenance=3,default
IDENTITY_FILE=/tmp/id
`)
	require.NoError(t, err)

	cfg := FromMap(env)
	assert.Equal(t, "postgresql+asyncpg://u:p@db:5432/app", cfg.DBURL)
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
	assert.Equal(t, BackendRedis, cfg.PresenceBackend)
	assert.Equal(t, 4*time.Second, cfg.StalenessThreshold)
	assert.Equal(t, 5, cfg.SearchMaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.DialDelay)
	assert.Equal(t, []string{"stun:a:3478", "stun:b:3478"}, cfg.STUNURLs)
	assert.Equal(t, map[string]int{"maintenance": 3, "default": 1}, cfg.AsynqQueues)
	assert.Equal(t, "/tmp/id", cfg.IdentityFile)
}

func TestMalformedValuesFallBack(t *testing.T) {
	cfg := FromMap(map[string]string{
		"PRESENCE_BACKEND":    "mongo",
		"STALENESS_THRESHOLD": "soon",
		"SEARCH_INTERVAL":     "-1s",
		"SEARCH_MAX_ATTEMPTS": "0",
		"ASYNQ_CONCURRENCY":   "many",
		"ASYNQ_QUEUES":        " , ",
	})

	assert.Equal(t, BackendPostgres, cfg.PresenceBackend)
	assert.Equal(t, 10*time.Second, cfg.StalenessThreshold)
	assert.Equal(t, 1500*time.Millisecond, cfg.SearchInterval)
	assert.Equal(t, 20, cfg.SearchMaxAttempts)
	assert.Equal(t, 10, cfg.AsynqConcurrency)
	assert.Equal(t, map[string]int{"maintenance": 1, "default": 1}, cfg.AsynqQueues)
}

func TestParseQueueWeights(t *testing.T) {
	assert.Equal(t, map[string]int{"critical": 6, "default": 3, "low": 1},
		ParseQueueWeights("critical=6, default=3,low=1"))
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, ParseQueueWeights("a=0,b=x,=4"))
	assert.Empty(t, ParseQueueWeights(""))
}

func TestLoadDotEnvKeepsExistingVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SEARCH_MAX_ATTEMPTS=7\nDIAL_TIMEOUT=3s\n"), 0o600))
	t.Setenv("DIAL_TIMEOUT", "4s")
	t.Setenv("SEARCH_MAX_ATTEMPTS", "")
	require.NoError(t, os.Unsetenv("SEARCH_MAX_ATTEMPTS"))

	require.NoError(t, LoadDotEnv(path))
	t.Cleanup(func() { _ = os.Unsetenv("SEARCH_MAX_ATTEMPTS") })

	cfg := Load()
	assert.Equal(t, 7, cfg.SearchMaxAttempts)
	assert.Equal(t, 4*time.Second, cfg.DialTimeout)
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	assert.Error(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}
