package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Hub      HubConfig
	Tokens   TokensConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	CORSAllowedOrigins string // comma-separated, or "*" for all (e.g. http://localhost:3000,http://localhost:3001)
	LogLevel           string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/streamhub?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings. An empty Addr disables cross-instance notifications.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// HubConfig tunes the realtime hub.
type HubConfig struct {
	MaxPerStream        int
	HeartbeatInterval   time.Duration
	ReapInterval        time.Duration
	IdleTimeout         time.Duration
	StatsInterval       time.Duration
	CollaboratorTimeout time.Duration
	SendBuffer          int
	RatePerSecond       float64
	RateBurst           int
}

// TokensConfig controls the token blacklist cleanup loop.
type TokensConfig struct {
	CleanupInterval time.Duration
	Retention       time.Duration
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
			LogLevel:           getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "streamhub"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", ""),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Hub: HubConfig{
			MaxPerStream:        getEnvInt("HUB_MAX_PER_STREAM", 1000),
			HeartbeatInterval:   getEnvSeconds("HUB_HEARTBEAT_SEC", 30),
			ReapInterval:        getEnvSeconds("HUB_REAP_SEC", 60),
			IdleTimeout:         getEnvSeconds("HUB_IDLE_TIMEOUT_SEC", 300),
			StatsInterval:       getEnvSeconds("HUB_STATS_SEC", 3),
			CollaboratorTimeout: getEnvSeconds("HUB_COLLABORATOR_TIMEOUT_SEC", 5),
			SendBuffer:          getEnvInt("HUB_SEND_BUFFER", 256),
			RatePerSecond:       getEnvFloat("HUB_RATE_PER_SEC", 20),
			RateBurst:           getEnvInt("HUB_RATE_BURST", 40),
		},
		Tokens: TokensConfig{
			CleanupInterval: time.Duration(getEnvInt("TOKEN_CLEANUP_HOURS", 6)) * time.Hour,
			Retention:       time.Duration(getEnvInt("TOKEN_RETENTION_HOURS", 168)) * time.Hour,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Hub.MaxPerStream <= 0 {
		return fmt.Errorf("HUB_MAX_PER_STREAM must be positive, got %d", c.Hub.MaxPerStream)
	}
	if c.Hub.IdleTimeout <= c.Hub.HeartbeatInterval {
		return fmt.Errorf("HUB_IDLE_TIMEOUT_SEC (%s) must exceed HUB_HEARTBEAT_SEC (%s)", c.Hub.IdleTimeout, c.Hub.HeartbeatInterval)
	}
	if c.Hub.StatsInterval <= 0 || c.Hub.ReapInterval <= 0 {
		return fmt.Errorf("hub intervals must be positive")
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
