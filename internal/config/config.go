package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL        string
	PoolSize           int
	PoolAcquireTimeout time.Duration

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Sessions
	SingleSession        bool
	SessionIdleTimeout   time.Duration
	SessionSweepInterval time.Duration

	// Background work
	TaskStopTimeout time.Duration
	PollInterval    time.Duration

	// Storage
	StoragePath string

	// Logging
	LogLevel  string
	LogFormat string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		DatabaseURL:          mustGetEnv("DATABASE_URL"),
		PoolSize:             getEnvAsIntOrDefault("POOL_SIZE", 10),
		PoolAcquireTimeout:   getEnvAsDurationOrDefault("POOL_ACQUIRE_TIMEOUT", 3*time.Second),
		RedisURL:             mustGetEnv("REDIS_URL"),
		JWTSecret:            mustGetEnv("JWT_SECRET"),
		SingleSession:        getEnvAsBoolOrDefault("SINGLE_SESSION", true),
		SessionIdleTimeout:   getEnvAsDurationOrDefault("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionSweepInterval: getEnvAsDurationOrDefault("SESSION_SWEEP_INTERVAL", time.Minute),
		TaskStopTimeout:      getEnvAsDurationOrDefault("TASK_STOP_TIMEOUT", 5*time.Second),
		PollInterval:         getEnvAsDurationOrDefault("POLL_INTERVAL", 15*time.Second),
		StoragePath:          getEnvOrDefault("STORAGE_PATH", "./uploads"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "text"),
		FrontendURL:          getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	if cfg.PoolSize <= 0 {
		panic(fmt.Sprintf("POOL_SIZE must be positive, got %d", cfg.PoolSize))
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvAsDurationOrDefault accepts Go duration strings ("5s", "30m").
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
