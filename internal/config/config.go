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
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Crypto       CryptoConfig
	Flow         FlowConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	// MediaBaseURL is the public base under which stored media keys are
	// resolvable by channel clients.
	MediaBaseURL string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior. Pretty switches to a
// human-readable console encoding for local development.
type LoggerConfig struct {
	Level  string
	Pretty bool
}

// CryptoConfig holds the message-body encryption secret.
type CryptoConfig struct {
	MessageSecret string
}

// FlowConfig tunes ticket acquisition and the bot state machine.
type FlowConfig struct {
	LockTTLSeconds       int
	LockWaitSeconds      int
	InvalidOptionMessage string
	RetryCloseMessage    string
	AbsenceMessage       string
	AbsenceCooldownMin   int
}

// NotificationConfig holds the outbound change-notification endpoint.
type NotificationConfig struct {
	WebhookURL string
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
			Name:                  getEnv("APP_NAME", "chatflow-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			MediaBaseURL:          getEnv("MEDIA_BASE_URL", "http://localhost:8080/media"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnvAsBool("LOG_PRETTY", false),
		},
		Crypto: CryptoConfig{
			MessageSecret: getEnv("MESSAGE_ENCRYPTION_SECRET", "dev-secret"),
		},
		Flow: FlowConfig{
			LockTTLSeconds:       getEnvAsInt("TICKET_LOCK_TTL_SECONDS", 10),
			LockWaitSeconds:      getEnvAsInt("TICKET_LOCK_WAIT_SECONDS", 10),
			InvalidOptionMessage: getEnv("FLOW_INVALID_OPTION_MESSAGE", "Desculpe, não entendi. Escolha uma das opções listadas."),
			RetryCloseMessage:    getEnv("FLOW_RETRY_CLOSE_MESSAGE", "Não conseguimos entender sua resposta. Este atendimento será encerrado."),
			AbsenceMessage:       getEnv("FLOW_ABSENCE_MESSAGE", "Estamos fora do horário de atendimento. Retornaremos assim que possível."),
			AbsenceCooldownMin:   getEnvAsInt("FLOW_ABSENCE_COOLDOWN_MINUTES", 30),
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
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

// LockTTL returns how long a ticket-creation marker survives a crashed holder.
func (f FlowConfig) LockTTL() time.Duration {
	if f.LockTTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(f.LockTTLSeconds) * time.Second
}

// LockWait bounds how long a losing caller polls for the winner's ticket.
func (f FlowConfig) LockWait() time.Duration {
	if f.LockWaitSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(f.LockWaitSeconds) * time.Second
}

// AbsenceCooldown is the minimum interval between absence notices per ticket.
func (f FlowConfig) AbsenceCooldown() time.Duration {
	if f.AbsenceCooldownMin <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(f.AbsenceCooldownMin) * time.Minute
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
