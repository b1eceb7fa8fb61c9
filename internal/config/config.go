// Package config provides configuration for the diagram relay.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kre8/diagram-relay/internal/model"
)

// Config holds the relay configuration.
type Config struct {
	// Server settings
	Port           string
	AllowedOrigins []string
	Debug          bool

	// Storage
	DBPath        string
	RetentionDays int
	PurgeInterval time.Duration // 0 disables the background purge

	// Watchers
	PollInterval time.Duration
	WatchTimeout time.Duration
	MaxWatchers  int // 0 means unlimited

	// Change feed. An empty RedisAddr leaves the relay on polling alone.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	// Logging
	LogLevel string
}

// Load reads an optional .env file and then environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8765"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		Debug:          getEnvBool("DEBUG", false),
		DBPath:         getEnv("DB_PATH", "data/diagrams.db"),
		RetentionDays:  getEnvInt("RETENTION_DAYS", model.DefaultRetentionDays),
		PurgeInterval:  getEnvMillis("PURGE_INTERVAL_MS", time.Hour),
		PollInterval:   getEnvMillis("POLL_INTERVAL_MS", time.Second),
		WatchTimeout:   getEnvMillis("WATCH_TIMEOUT_MS", 300*time.Second),
		MaxWatchers:    getEnvInt("MAX_WATCHERS", 0),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RedisChannel:   getEnv("REDIS_CHANNEL", "diagram-relay:responses"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that durations and limits are usable.
func (c *Config) Validate() error {
	var errs []error
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL_MS must be positive"))
	}
	if c.WatchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("WATCH_TIMEOUT_MS must be positive"))
	}
	if c.MaxWatchers < 0 {
		errs = append(errs, fmt.Errorf("MAX_WATCHERS must not be negative"))
	}
	if c.RetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("RETENTION_DAYS must be positive"))
	}
	if c.PurgeInterval < 0 {
		errs = append(errs, fmt.Errorf("PURGE_INTERVAL_MS must not be negative"))
	}
	if c.DBPath == "" {
		errs = append(errs, fmt.Errorf("DB_PATH is required"))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvMillis(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
