package config

import (
	"fmt"
	"time"

	"github.com/RishiKendai/keyguard/internal/configs/env"
)

// Config holds all configuration for the keystroke backend
type Config struct {
	// MongoDB
	MongoURI    string
	MongoDBName string

	// Redis
	RedisHost          string
	RedisPassword      string
	RedisDB            int
	RedisStreamKey     string
	RedisConsumerGroup string
	RedisDeadLetterKey string
	StreamRetention    time.Duration
	SessionTTL         time.Duration

	// JWT
	JWTSecret string

	// Rate Limiting
	RateLimitRPS float64

	// Stream retries
	MaxRetries      int
	RetryBaseDelay  time.Duration
	ConsumerWorkers int

	// Logging
	LogLevel  string
	LogFormat string

	// Server
	ServerPort  string
	MetricsPort string
}

func Load() (*Config, error) {
	cfg := &Config{}

	// MongoDB
	cfg.MongoURI = env.GetEnv("MONGO_URI", "")
	cfg.MongoDBName = env.GetEnv("MONGO_DB_NAME", "")

	// Redis
	cfg.RedisHost = env.GetEnv("REDIS_HOST", "localhost:6379")
	cfg.RedisPassword = env.GetEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = env.GetEnvInt("REDIS_DB", 0)
	cfg.RedisStreamKey = env.GetEnv("REDIS_STREAM_KEY", "keystroke:paste:stream")
	cfg.RedisConsumerGroup = env.GetEnv("REDIS_CONSUMER_GROUP", "keystroke:paste:group")
	cfg.RedisDeadLetterKey = env.GetEnv("REDIS_DEAD_LETTER_KEY", "keystroke:paste:dlq")
	retentionHours := env.GetEnvInt("STREAM_RETENTION_HOURS", 24)
	cfg.StreamRetention = time.Duration(retentionHours) * time.Hour
	cfg.SessionTTL = env.GetEnvDuration("SESSION_TTL", 12*time.Hour)

	// JWT
	cfg.JWTSecret = env.GetEnv("JWT_SECRET", "")

	// Rate Limiting
	cfg.RateLimitRPS = env.GetEnvFloat("RATE_LIMIT_RPS", 20.0)

	// Stream retries
	cfg.MaxRetries = env.GetEnvInt("STREAM_MAX_RETRIES", 3)
	cfg.RetryBaseDelay = env.GetEnvDuration("STREAM_RETRY_BASE_DELAY", 500*time.Millisecond)
	// 0 sizes the pool from the CPU count
	cfg.ConsumerWorkers = env.GetEnvInt("STREAM_CONSUMER_WORKERS", 0)

	// Logging
	cfg.LogLevel = env.GetEnv("LOG_LEVEL", "info")
	cfg.LogFormat = env.GetEnv("LOG_FORMAT", "json")

	// Server
	cfg.ServerPort = env.GetEnv("SERVER_PORT", "8000")
	cfg.MetricsPort = env.GetEnv("METRICS_PORT", "2112")

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.MongoDBName == "" {
		return fmt.Errorf("MONGO_DB_NAME is required")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be greater than 0")
	}
	if c.StreamRetention <= 0 {
		return fmt.Errorf("STREAM_RETENTION_HOURS must be greater than 0")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be greater than 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("STREAM_MAX_RETRIES must not be negative")
	}
	return nil
}

// ClientConfig configures the editor-side reporter used by the keyguard CLI.
type ClientConfig struct {
	BaseURL  string
	Token    string
	Language string
	Debounce time.Duration
	// ExitTimeout bounds the synchronous exit report sent on teardown.
	ExitTimeout time.Duration
	LogLevel    string
}

func LoadClient() *ClientConfig {
	return &ClientConfig{
		BaseURL:     env.GetEnv("KEYGUARD_API_URL", "http://localhost:8000"),
		Token:       env.GetEnv("KEYGUARD_TOKEN", ""),
		Language:    env.GetEnv("KEYGUARD_LANGUAGE", "python"),
		Debounce:    env.GetEnvDuration("KEYGUARD_DEBOUNCE", 500*time.Millisecond),
		ExitTimeout: env.GetEnvDuration("KEYGUARD_EXIT_TIMEOUT", 2*time.Second),
		LogLevel:    env.GetEnv("LOG_LEVEL", "info"),
	}
}

func (c *ClientConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("KEYGUARD_API_URL is required")
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("KEYGUARD_DEBOUNCE must be greater than 0")
	}
	return nil
}
