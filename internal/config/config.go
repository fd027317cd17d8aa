package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Cache backends accepted by CACHE_BACKEND
const (
	CacheMemory   = "memory"
	CacheFile     = "file"
	CacheSQLite   = "sqlite"
	CachePostgres = "postgres"
	CacheRedis    = "redis"
)

type RoutingConfig struct {
	BaseURL        string
	Profile        string
	MaxAttempts    int
	RetryBackoff   time.Duration
	RequestTimeout time.Duration
	RateLimit      float64
}

type DispatchConfig struct {
	LookupWorkers int
	HourlyWage    float64
	RunTimeout    time.Duration
}

type CacheConfig struct {
	Backend     string
	File        string
	SQLitePath  string
	PostgresDSN string
	RedisAddr   string
	RedisTTL    time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// Config is the resolved configuration for the CLI and the HTTP service
type Config struct {
	Routing    RoutingConfig
	Dispatch   DispatchConfig
	Cache      CacheConfig
	ServerAddr string
	Log        LogConfig

	// EnvFileLoaded is false when no .env file was found
	EnvFileLoaded bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ROUTING_BASE_URL", "http://router.project-osrm.org")
	v.SetDefault("ROUTING_PROFILE", "driving")
	v.SetDefault("ROUTING_MAX_ATTEMPTS", 3)
	v.SetDefault("ROUTING_RETRY_BACKOFF", "60s")
	v.SetDefault("ROUTING_REQUEST_TIMEOUT", "30s")
	v.SetDefault("ROUTING_RATE_LIMIT", 5.0)

	v.SetDefault("DISPATCH_LOOKUP_WORKERS", 8)
	v.SetDefault("DISPATCH_HOURLY_WAGE", 30.0)
	v.SetDefault("DISPATCH_ROUND_TIMEOUT", "0s")

	v.SetDefault("CACHE_BACKEND", CacheFile)
	v.SetDefault("CACHE_FILE", "")
	v.SetDefault("SQLITE_PATH", "")
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_TTL", "168h")

	v.SetDefault("SERVER_ADDR", "127.0.0.1:8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
}

// Load resolves configuration from defaults, an optional config file,
// a .env file and the environment, in increasing priority.
// An empty path searches for config.{yaml,json,toml} in ./data/ and the working directory.
func Load(path string) (*Config, error) {
	envLoaded := godotenv.Load() == nil

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./data/")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("fatal error config file: %w", err)
			}
		}
	}

	cfg := &Config{
		Routing: RoutingConfig{
			BaseURL:        v.GetString("ROUTING_BASE_URL"),
			Profile:        v.GetString("ROUTING_PROFILE"),
			MaxAttempts:    v.GetInt("ROUTING_MAX_ATTEMPTS"),
			RetryBackoff:   v.GetDuration("ROUTING_RETRY_BACKOFF"),
			RequestTimeout: v.GetDuration("ROUTING_REQUEST_TIMEOUT"),
			RateLimit:      v.GetFloat64("ROUTING_RATE_LIMIT"),
		},
		Dispatch: DispatchConfig{
			LookupWorkers: v.GetInt("DISPATCH_LOOKUP_WORKERS"),
			HourlyWage:    v.GetFloat64("DISPATCH_HOURLY_WAGE"),
			RunTimeout:    v.GetDuration("DISPATCH_ROUND_TIMEOUT"),
		},
		Cache: CacheConfig{
			Backend:     strings.ToLower(strings.TrimSpace(v.GetString("CACHE_BACKEND"))),
			File:        v.GetString("CACHE_FILE"),
			SQLitePath:  v.GetString("SQLITE_PATH"),
			PostgresDSN: v.GetString("POSTGRES_DSN"),
			RedisAddr:   v.GetString("REDIS_ADDR"),
			RedisTTL:    v.GetDuration("REDIS_TTL"),
		},
		ServerAddr: v.GetString("SERVER_ADDR"),
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		EnvFileLoaded: envLoaded,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the rest of the program cannot work with
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case CacheMemory, CacheFile, CacheSQLite, CacheRedis:
	case CachePostgres:
		if c.Cache.PostgresDSN == "" {
			return errors.New("config: POSTGRES_DSN is required when CACHE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("config: unknown CACHE_BACKEND %q", c.Cache.Backend)
	}

	if c.Routing.MaxAttempts < 1 {
		return fmt.Errorf("config: ROUTING_MAX_ATTEMPTS must be at least 1, got %d", c.Routing.MaxAttempts)
	}
	if c.Routing.RetryBackoff < 0 {
		return errors.New("config: ROUTING_RETRY_BACKOFF must not be negative")
	}
	if c.Dispatch.LookupWorkers < 1 {
		return fmt.Errorf("config: DISPATCH_LOOKUP_WORKERS must be at least 1, got %d", c.Dispatch.LookupWorkers)
	}
	if c.Dispatch.HourlyWage < 0 {
		return errors.New("config: DISPATCH_HOURLY_WAGE must not be negative")
	}
	return nil
}
