package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

var defaultSTUN = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:global.stun.twilio.com:3478",
}

// Config is the process configuration shared by the api, worker and client binaries.
type Config struct {
	DBURL           string
	RedisURL        string
	SignalURL       string
	HTTPAddr        string
	PresenceBackend string

	StalenessThreshold   time.Duration
	CountRefreshInterval time.Duration
	SearchInterval       time.Duration
	SearchMaxAttempts    int
	DialDelay            time.Duration
	DialTimeout          time.Duration
	OpenTimeout          time.Duration
	AwaitIncomingTimeout time.Duration
	ReconnectDelay       time.Duration
	WaitingEntryMaxAge   time.Duration

	STUNURLs     []string
	IdentityFile string

	AsynqConcurrency int
	AsynqQueues      map[string]int
}

// LoadDotEnv loads a .env file into the process environment. Existing variables win.
func LoadDotEnv(paths ...string) error {
	return godotenv.Load(paths...)
}

// Load reads the configuration from the process environment.
func Load() Config {
	return FromLookup(os.LookupEnv)
}

// FromMap reads the configuration from a set of key/value pairs, e.g. the
// result of godotenv.Read or godotenv.Unmarshal.
func FromMap(env map[string]string) Config {
	return FromLookup(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
}

// FromLookup builds a Config from lookup. Missing or malformed values fall back to defaults.
func FromLookup(lookup func(string) (string, bool)) Config {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	cfg := Config{
		DBURL:                get("DB_URL"),
		RedisURL:             get("REDIS_URL"),
		SignalURL:            orDefault(get("SIGNAL_URL"), "ws://localhost:8080/api/v1/signal/ws"),
		HTTPAddr:             orDefault(get("HTTP_ADDR"), ":8080"),
		PresenceBackend:      BackendPostgres,
		StalenessThreshold:   duration(get("STALENESS_THRESHOLD"), 10*time.Second),
		CountRefreshInterval: duration(get("COUNT_REFRESH_INTERVAL"), 5*time.Second),
		SearchInterval:       duration(get("SEARCH_INTERVAL"), 1500*time.Millisecond),
		SearchMaxAttempts:    positiveInt(get("SEARCH_MAX_ATTEMPTS"), 20),
		DialDelay:            duration(get("DIAL_DELAY"), 500*time.Millisecond),
		DialTimeout:          duration(get("DIAL_TIMEOUT"), 10*time.Second),
		OpenTimeout:          duration(get("OPEN_TIMEOUT"), 10*time.Second),
		AwaitIncomingTimeout: duration(get("AWAIT_INCOMING_TIMEOUT"), 15*time.Second),
		ReconnectDelay:       duration(get("RECONNECT_DELAY"), 2*time.Second),
		WaitingEntryMaxAge:   duration(get("WAITING_ENTRY_MAX_AGE"), 2*time.Minute),
		STUNURLs:             csv(get("STUN_URLS"), defaultSTUN),
		IdentityFile:         get("IDENTITY_FILE"),
		AsynqConcurrency:     positiveInt(get("ASYNQ_CONCURRENCY"), 10),
		AsynqQueues:          map[string]int{"maintenance": 1, "default": 1},
	}

	switch b := strings.ToLower(get("PRESENCE_BACKEND")); b {
	case BackendPostgres, BackendRedis, BackendMemory:
		cfg.PresenceBackend = b
	}
	if cfg.IdentityFile == "" {
		cfg.IdentityFile = defaultIdentityFile()
	}
	if q := ParseQueueWeights(get("ASYNQ_QUEUES")); len(q) > 0 {
		cfg.AsynqQueues = q
	}
	return cfg
}

// ParseQueueWeights parses strings like "critical=6,default=3,low=1" into a map.
func ParseQueueWeights(s string) map[string]int {
	res := make(map[string]int)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		name := strings.TrimSpace(kv[0])
		if name == "" {
			continue
		}
		w := 1
		if len(kv) == 2 {
			if i, err := strconv.Atoi(strings.TrimSpace(kv[1])); err == nil && i > 0 {
				w = i
			}
		}
		res[name] = w
	}
	return res
}

func defaultIdentityFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "go-stranger", "identity")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func duration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func positiveInt(v string, def int) int {
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return def
	}
	return i
}

func csv(v string, def []string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), def...)
	}
	return out
}
