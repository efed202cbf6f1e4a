// Package config defines the global configuration structure for the DuePoint
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup.
package config

import (
	"time"
)

// Config is the top-level configuration struct for the DuePoint service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"duepoint"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	Email    EmailConfig
	Reminder ReminderConfig
	Sweep    SweepConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public base URL for invoice share links embedded in reminder emails
	// (no trailing slash), e.g. https://pay.duepoint.io
	ShareBaseURL   string        `envconfig:"SHARE_BASE_URL" validate:"required,url"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// EmailConfig holds email delivery provider credentials and sender identity.
type EmailConfig struct {
	Enabled        bool          `envconfig:"FEATURE_ENABLE_EMAIL" default:"true"`
	SendGridAPIKey string        `envconfig:"SENDGRID_API_KEY" validate:"required"`
	FromAddress    string        `envconfig:"EMAIL_FROM_ADDRESS" default:"billing@duepoint.io"`
	FromName       string        `envconfig:"EMAIL_FROM_NAME" default:"DuePoint Billing"`
	Timeout        time.Duration `envconfig:"EMAIL_TIMEOUT" default:"10s"`
}

// ReminderConfig holds the fixed reminder offsets relative to an invoice's
// due date. These are system-wide constants, not per-invoice settings.
type ReminderConfig struct {
	BeforeDueDays int `envconfig:"REMINDER_BEFORE_DUE_DAYS" default:"3" validate:"min=1,max=30"`
	AfterDueDays  int `envconfig:"REMINDER_AFTER_DUE_DAYS" default:"7" validate:"min=1,max=90"`
	// ActorIdleEviction is how long a tenant actor may sit idle in memory
	// before the runtime evicts it. Durable state makes eviction safe at any
	// point.
	ActorIdleEviction time.Duration `envconfig:"ACTOR_IDLE_EVICTION" default:"15m"`
}

// SweepConfig holds the catch-up sweep schedule and fan-out limits.
type SweepConfig struct {
	// Schedule is a cron expression (with optional seconds field disabled);
	// the default runs every 15 minutes.
	Schedule    string `envconfig:"SWEEP_SCHEDULE" default:"*/15 * * * *"`
	Concurrency int    `envconfig:"SWEEP_CONCURRENCY" default:"8" validate:"min=1,max=64"`
}

// MetricsConfig holds CloudWatch metric emission settings. When disabled, a
// no-op emitter is wired instead.
type MetricsConfig struct {
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"false"`
	Namespace string `envconfig:"METRICS_NAMESPACE" default:"DuePoint"`
	Region    string `envconfig:"AWS_REGION" default:"us-east-1"`
}
