// Package config defines the global configuration structure for The Puppy Day
// notification service. Configuration is loaded once at process initialization
// and is immutable thereafter. It follows 12-Factor App principles by strictly
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

	"puppyday/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the notification service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"puppyday-notifications"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	// MockMode routes all deliveries through in-process stub providers and
	// bypasses cron authentication. Set for local development and CI only.
	MockMode bool `envconfig:"MOCK_MODE" default:"false"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Email    EmailConfig
	SMS      SMSConfig
	Cron     CronConfig
	Jobs     JobsConfig
	Feature  FeatureConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public base URL for tracking links embedded in emails (no trailing slash)
	APIExternalURL  string        `envconfig:"API_EXTERNAL_URL" validate:"required,url"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Resource Identifiers
	WaitlistQueueURL string `envconfig:"SQS_WAITLIST_QUEUE" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// EmailConfig holds email delivery sender configuration.
type EmailConfig struct {
	FromAddress string `envconfig:"EMAIL_FROM_ADDRESS" default:"hello@thepuppyday.com" validate:"email"`
	FromName    string `envconfig:"EMAIL_FROM_NAME" default:"The Puppy Day"`
}

// SMSConfig holds SMS delivery sender configuration.
type SMSConfig struct {
	SenderID string `envconfig:"SMS_SENDER_ID" default:"PuppyDay"`
}

// CronConfig holds authentication for the scheduler-invoked endpoints.
type CronConfig struct {
	Secret SecretString `envconfig:"CRON_SECRET" validate:"required,min=16"`
}

// JobsConfig holds tuning parameters for the scheduled notification jobs.
type JobsConfig struct {
	// Appointments scheduled within [now+Min, now+Max) receive a reminder.
	ReminderLookaheadMin time.Duration `envconfig:"REMINDER_LOOKAHEAD_MIN" default:"24h"`
	ReminderLookaheadMax time.Duration `envconfig:"REMINDER_LOOKAHEAD_MAX" default:"48h"`
	// A customer notified within the cooldown window is not re-notified by
	// the retention job.
	RetentionCooldown time.Duration `envconfig:"RETENTION_COOLDOWN" default:"720h"`
	// Grooming cadence assumed for breeds without a recommended frequency.
	RetentionDefaultWeeks int           `envconfig:"RETENTION_DEFAULT_WEEKS" default:"8" validate:"min=1,max=52"`
	RetryBatchSize        int           `envconfig:"RETRY_BATCH_SIZE" default:"50" validate:"min=1,max=500"`
	LockTTL               time.Duration `envconfig:"JOB_LOCK_TTL" default:"5m"`
	WaitlistOfferTTL      time.Duration `envconfig:"WAITLIST_OFFER_TTL" default:"2h"`
}

// FeatureConfig holds emergency kill switches for delivery channels.
type FeatureConfig struct {
	EnableEmail bool `envconfig:"FEATURE_ENABLE_EMAIL" default:"true"`
	EnableSMS   bool `envconfig:"FEATURE_ENABLE_SMS" default:"true"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
