// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	Database DatabaseConfig
	Redis    RedisConfig
	Room     RoomConfig
}

// DatabaseConfig selects and configures the persistence backend.
type DatabaseConfig struct {
	Driver         string // "sqlite" or "mongo"
	Path           string
	MongoURI       string
	MongoDatabase  string
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// RedisConfig configures the optional room metadata cache.
// An empty Addr disables caching.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RoomConfig controls room lifetime and per-session limits.
type RoomConfig struct {
	Capacity            int
	TTL                 time.Duration
	TimerDefaultSeconds int
	TimerMaxSeconds     int
	ChatMaxLength       int
	ChatMaxHistory      int
	SweepInterval       time.Duration
	InterviewerControls bool
	SendBuffer          int
}

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "3001"),
		FrontendURL:     getEnv("FRONTEND_URL", ""),
		LogLevel:        getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Database: DatabaseConfig{
			Driver:         strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
			Path:           getEnv("DB_PATH", "./data/pairroom.db"),
			MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase:  getEnv("MONGO_DATABASE", "pairroom"),
			MaxRetries:     getEnvInt("DB_MAX_RETRIES", 3),
			RetryBaseDelay: getEnvDuration("DB_RETRY_BASE_DELAY", 50*time.Millisecond),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("REDIS_ROOM_TTL", 10*time.Minute),
		},
		Room: RoomConfig{
			Capacity:            getEnvInt("ROOM_CAPACITY", 2),
			TTL:                 getEnvDuration("ROOM_TTL", 4*time.Hour),
			TimerDefaultSeconds: getEnvInt("TIMER_DEFAULT_SECONDS", 1800),
			TimerMaxSeconds:     getEnvInt("TIMER_MAX_SECONDS", 4*60*60),
			ChatMaxLength:       getEnvInt("CHAT_MAX_LENGTH", 500),
			ChatMaxHistory:      getEnvInt("CHAT_MAX_HISTORY", 1000),
			SweepInterval:       getEnvDuration("EXPIRY_SWEEP_INTERVAL", time.Hour),
			InterviewerControls: getEnvBool("INTERVIEWER_CONTROLS", true),
			SendBuffer:          getEnvInt("WS_SEND_BUFFER", 64),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case DriverMongo:
		if c.Database.MongoURI == "" {
			return fmt.Errorf("MONGO_URI cannot be empty")
		}
		if c.Database.MongoDatabase == "" {
			return fmt.Errorf("MONGO_DATABASE cannot be empty")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverMongo, c.Database.Driver)
	}
	if c.Database.MaxRetries <= 0 {
		return fmt.Errorf("DB_MAX_RETRIES must be > 0")
	}
	if c.Room.Capacity < 1 {
		return fmt.Errorf("ROOM_CAPACITY must be >= 1")
	}
	if c.Room.TTL <= 0 {
		return fmt.Errorf("ROOM_TTL must be > 0")
	}
	if c.Room.TimerMaxSeconds <= 0 {
		return fmt.Errorf("TIMER_MAX_SECONDS must be > 0")
	}
	if c.Room.TimerDefaultSeconds <= 0 || c.Room.TimerDefaultSeconds > c.Room.TimerMaxSeconds {
		return fmt.Errorf("TIMER_DEFAULT_SECONDS must be in (0, %d]", c.Room.TimerMaxSeconds)
	}
	if c.Room.ChatMaxLength <= 0 {
		return fmt.Errorf("CHAT_MAX_LENGTH must be > 0")
	}
	if c.Room.ChatMaxHistory <= 0 {
		return fmt.Errorf("CHAT_MAX_HISTORY must be > 0")
	}
	if c.Room.SweepInterval <= 0 {
		return fmt.Errorf("EXPIRY_SWEEP_INTERVAL must be > 0")
	}
	if c.Room.SendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("90s", "4h") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
