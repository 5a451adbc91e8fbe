package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Automation AutomationConfig
	Messaging  MessagingConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines API token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// AutomationConfig tunes the expiry sweeper.
type AutomationConfig struct {
	SweepIntervalSeconds   int
	SweepBatchLimit        int
	TicketTimeoutSeconds   int
	GreetingTimeoutSeconds int
}

// MessagingConfig points at the outbound message transport.
type MessagingConfig struct {
	WebhookURL     string
	TimeoutSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "kanban-automation-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Automation: AutomationConfig{
			SweepIntervalSeconds:   getEnvAsInt("SWEEP_INTERVAL_SECONDS", 60),
			SweepBatchLimit:        getEnvAsInt("SWEEP_BATCH_LIMIT", 500),
			TicketTimeoutSeconds:   getEnvAsInt("SWEEP_TICKET_TIMEOUT_SECONDS", 15),
			GreetingTimeoutSeconds: getEnvAsInt("GREETING_TIMEOUT_SECONDS", 10),
		},
		Messaging: MessagingConfig{
			WebhookURL:     getEnv("MESSAGING_WEBHOOK_URL", ""),
			TimeoutSeconds: getEnvAsInt("MESSAGING_TIMEOUT_SECONDS", 10),
		},
	}

	if cfg.Automation.SweepIntervalSeconds <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive")
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SweepInterval returns how often the expiry sweeper runs.
func (a AutomationConfig) SweepInterval() time.Duration {
	return time.Duration(a.SweepIntervalSeconds) * time.Second
}

// TicketTimeout bounds the processing of a single ticket within a sweep.
func (a AutomationConfig) TicketTimeout() time.Duration {
	if a.TicketTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(a.TicketTimeoutSeconds) * time.Second
}

// GreetingTimeout bounds a single greeting dispatch.
func (a AutomationConfig) GreetingTimeout() time.Duration {
	if a.GreetingTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(a.GreetingTimeoutSeconds) * time.Second
}

// Timeout returns the outbound HTTP timeout for the messaging webhook.
func (m MessagingConfig) Timeout() time.Duration {
	if m.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(m.TimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
