package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full process configuration, populated from the environment.
type Config struct {
	Service   ServiceConfig
	Server    ServerConfig
	Database  DatabaseConfig
	NATS      NATSConfig
	SMTP      SMTPConfig
	Scheduler SchedulerConfig
	Outbox    OutboxConfig
	Directory DirectoryConfig
}

type ServiceConfig struct {
	Name        string `env:"SERVICE_NAME" envDefault:"be-oa-approvals"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Version     string `env:"SERVICE_VERSION" envDefault:"dev"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	// BaseURL is prepended to action links embedded in notification emails.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:3001"`
}

type ServerConfig struct {
	Port            int           `env:"HTTP_PORT" envDefault:"8086"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type DatabaseConfig struct {
	Host        string        `env:"DB_HOST" envDefault:"localhost"`
	Port        int           `env:"DB_PORT" envDefault:"5432"`
	User        string        `env:"DB_USER" envDefault:"postgres"`
	Password    string        `env:"DB_PASSWORD" envDefault:"postgres"`
	Database    string        `env:"DB_NAME" envDefault:"oa_approvals"`
	SSLMode     string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns    int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns    int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	MaxConnTime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxIdleTime time.Duration `env:"DB_MAX_CONN_IDLE" envDefault:"30m"`
}

type NATSConfig struct {
	URL     string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	Enabled bool   `env:"NATS_ENABLED" envDefault:"true"`
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST" envDefault:"localhost"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	User     string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM" envDefault:"oa-system@officeflow.local"`
}

type SchedulerConfig struct {
	// TickInterval is how often the escalation scan runs.
	TickInterval time.Duration `env:"REMINDER_TICK_INTERVAL" envDefault:"1h"`
	Enabled      bool          `env:"REMINDER_SCHEDULER_ENABLED" envDefault:"true"`
}

type OutboxConfig struct {
	PollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"5s"`
	BatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"50"`
	MaxAttempts  int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"25"`
	MaxBackoff   time.Duration `env:"OUTBOX_MAX_BACKOFF" envDefault:"10m"`
	LockTTL      time.Duration `env:"OUTBOX_LOCK_TTL" envDefault:"60s"`
}

// DirectoryConfig points at the platform user-directory service, which
// resolves role holders and email addresses.
type DirectoryConfig struct {
	BaseURL string        `env:"DIRECTORY_URL" envDefault:"http://localhost:8081"`
	Timeout time.Duration `env:"DIRECTORY_TIMEOUT" envDefault:"5s"`
}

// Load reads .env (when present) and parses the environment into Config.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// DSN renders the Postgres connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}
