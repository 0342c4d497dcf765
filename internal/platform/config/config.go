package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type HTTPConfig struct {
	Addr        string
	CORSOrigins string
}

type GRPCConfig struct {
	Addr string
}

type StoreConfig struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
}

type RedisConfig struct {
	URL      string
	CacheTTL time.Duration
}

type LockConfig struct {
	Wait time.Duration
	TTL  time.Duration
}

type NATSConfig struct {
	Enabled bool
	URL     string
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	LogFormat   string
	Env         string
	JWTSecret   string

	HTTP  HTTPConfig
	GRPC  GRPCConfig
	Store StoreConfig
	Redis RedisConfig
	Lock  LockConfig
	NATS  NATSConfig
}

// IsProduction reports whether APP_ENV is production.
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func Load() (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: env("SERVICE_NAME"),
		LogLevel:    env("LOG_LEVEL"),
		LogFormat:   strings.ToLower(env("LOG_FORMAT")),
		Env:         env("APP_ENV"),
		JWTSecret:   env("JWT_SECRET"),
		HTTP: HTTPConfig{
			Addr:        env("HTTP_ADDR"),
			CORSOrigins: env("CORS_ALLOWED_ORIGINS"),
		},
		GRPC: GRPCConfig{Addr: env("GRPC_ADDR")},
		Store: StoreConfig{
			Driver:      strings.ToLower(env("STORE_DRIVER")),
			DatabaseURL: env("DATABASE_URL"),
			SQLitePath:  env("SQLITE_PATH"),
		},
		Redis: RedisConfig{URL: env("REDIS_URL")},
		NATS:  NATSConfig{URL: env("NATS_URL")},
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.GRPC.Addr == "" {
		cfg.GRPC.Addr = ":9090"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}

	var err error
	if cfg.Redis.CacheTTL, err = durationEnv("THREAD_CACHE_TTL", 30*time.Second); err != nil {
		return AppConfig{}, err
	}
	if cfg.Lock.Wait, err = durationEnv("LOCK_WAIT", 2*time.Second); err != nil {
		return AppConfig{}, err
	}
	if cfg.Lock.TTL, err = durationEnv("LOCK_TTL", 10*time.Second); err != nil {
		return AppConfig{}, err
	}
	if cfg.NATS.Enabled, err = boolEnv("NATS_ENABLED", cfg.NATS.URL != ""); err != nil {
		return AppConfig{}, err
	}

	if cfg.Store.Driver == "" {
		switch {
		case cfg.Store.DatabaseURL != "":
			cfg.Store.Driver = StorePostgres
		case cfg.Store.SQLitePath != "":
			cfg.Store.Driver = StoreSQLite
		default:
			cfg.Store.Driver = StoreMemory
		}
	}
	switch cfg.Store.Driver {
	case StoreMemory:
		if cfg.IsProduction() {
			return AppConfig{}, errors.New("in-memory store is not allowed in production; set DATABASE_URL or SQLITE_PATH")
		}
	case StorePostgres:
		if cfg.Store.DatabaseURL == "" {
			return AppConfig{}, errors.New("DATABASE_URL is required for STORE_DRIVER=postgres")
		}
	case StoreSQLite:
		if cfg.Store.SQLitePath == "" {
			cfg.Store.SQLitePath = "threads.db"
		}
	default:
		return AppConfig{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
	}
	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := env(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := env(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid bool %q", key, v)
	}
	return b, nil
}
