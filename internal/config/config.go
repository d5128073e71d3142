// Package config loads service settings from the environment.
package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store backends.
const (
	BackendRedis  = "redis"
	BackendTables = "tables"
	BackendMemory = "memory"
	BackendFile   = "file"
)

// Identity modes.
const (
	IdentityAnonymous = "anonymous"
	IdentityJWKS      = "jwks"
)

// Config holds everything cmd/board-sync needs to wire the service.
type Config struct {
	Debug   bool
	LogFile string

	AppID   string
	BoardID string

	Backend               string
	RedisConnectionString string
	UpdatesChannel        string
	StorageConnection     string
	BoardsTable           string
	EventsQueue           string
	TablesPollInterval    time.Duration
	BoardsDir             string

	IdentityMode    string
	LocalAuthSecret string
	Auth0Domain     string
	Auth0Audience   string
	BearerToken     string
	IdentityTimeout time.Duration

	WriteWorkers   int
	WriteBuffer    int
	WriteTimeout   time.Duration
	HandoffTimeout time.Duration

	ListenAddr string
}

// Load reads and validates the configuration.
func Load() (Config, error) {
	var err error
	cfg := Config{
		LogFile:               os.Getenv("LOG_FILE"),
		AppID:                 envString("BOARD_APP_ID", "default-kanban-app"),
		BoardID:               envString("BOARD_ID", "main-board"),
		Backend:               strings.ToLower(envString("STORE_BACKEND", BackendRedis)),
		RedisConnectionString: os.Getenv("REDIS_CONNECTION_STRING"),
		UpdatesChannel:        envString("BOARD_UPDATES_CHANNEL", "board-updates"),
		StorageConnection:     os.Getenv("STORAGE_CONNECTION_STRING"),
		BoardsTable:           envString("BOARDS_TABLE", "boards"),
		EventsQueue:           os.Getenv("BOARD_EVENTS_QUEUE"),
		BoardsDir:             envString("BOARDS_DIR", "data"),
		IdentityMode:          strings.ToLower(envString("IDENTITY_MODE", IdentityAnonymous)),
		LocalAuthSecret:       os.Getenv("LOCAL_AUTH_SHARED_SECRET"),
		Auth0Domain:           os.Getenv("AUTH0_DOMAIN"),
		Auth0Audience:         os.Getenv("AUTH0_AUDIENCE"),
		BearerToken:           os.Getenv("AUTH_BEARER_TOKEN"),
		ListenAddr:            ":" + envString("BOARD_SYNC_PORT", "8080"),
	}
	if cfg.Debug, err = envBool("DEBUG", false); err != nil {
		return Config{}, err
	}
	if cfg.TablesPollInterval, err = envDur("TABLES_POLL_INTERVAL", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.IdentityTimeout, err = envDur("IDENTITY_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.WriteWorkers, err = envInt("WRITE_WORKERS", 4); err != nil {
		return Config{}, err
	}
	if cfg.WriteBuffer, err = envInt("WRITE_BUFFER", 64); err != nil {
		return Config{}, err
	}
	if cfg.WriteTimeout, err = envDur("WRITE_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.HandoffTimeout, err = handoffTimeout(); err != nil {
		return Config{}, err
	}

	switch cfg.Backend {
	case BackendRedis:
		if cfg.RedisConnectionString == "" {
			return Config{}, fmt.Errorf("missing redis config")
		}
	case BackendTables:
		if cfg.StorageConnection == "" {
			return Config{}, fmt.Errorf("missing storage config")
		}
	case BackendMemory, BackendFile:
	default:
		return Config{}, fmt.Errorf("unsupported STORE_BACKEND value %q", cfg.Backend)
	}

	switch cfg.IdentityMode {
	case IdentityAnonymous:
	case IdentityJWKS:
		if cfg.Auth0Domain == "" || cfg.Auth0Audience == "" {
			return Config{}, fmt.Errorf("missing Auth0 config")
		}
	default:
		return Config{}, fmt.Errorf("unsupported IDENTITY_MODE value %q", cfg.IdentityMode)
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be greater than zero", key)
	}
	return n, nil
}

func envDur(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be greater than zero", key)
	}
	return d, nil
}

// handoffTimeout reads WRITE_HANDOFF_TIMEOUT. Zero or a negative value turns
// the wait off and is returned as -1 so it is not mistaken for "unset".
func handoffTimeout() (time.Duration, error) {
	v := os.Getenv("WRITE_HANDOFF_TIMEOUT")
	if v == "" {
		return 25 * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid WRITE_HANDOFF_TIMEOUT: %w", err)
	}
	if d <= 0 {
		return -1, nil
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// RedisOptions parses a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func RedisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts
}
