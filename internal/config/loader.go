// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs in due-date arithmetic.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigErrorType classifies configuration loading failures.
type ConfigErrorType string

const (
	ConfigErrorTypeEnv        ConfigErrorType = "env"
	ConfigErrorTypeValidation ConfigErrorType = "validation"
)

// ConfigError is a diagnostic error type returned by Load to aid debugging.
// It wraps a ConfigErrorType and an underlying error message.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load resolves the full Config from the environment. The optional dotenvPath
// points to a .env file loaded below OS environment precedence; an absent file
// is not an error.
func Load(dotenvPath string) (*Config, error) {
	// All due-date arithmetic assumes UTC; enforce it process-wide.
	time.Local = time.UTC
	_ = os.Setenv("TZ", "UTC")

	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !os.IsNotExist(err) {
			return nil, &ConfigError{
				Type:    ConfigErrorTypeEnv,
				Message: fmt.Sprintf("loading dotenv file %q", dotenvPath),
				Err:     err,
			}
		}
	} else {
		// Default .env in the working directory, best effort.
		_ = godotenv.Load()
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ConfigErrorTypeEnv,
			Message: "processing environment variables",
			Err:     err,
		}
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate runs struct-tag validation over the populated config and performs
// the cross-field checks that tags cannot express.
func validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return &ConfigError{
			Type:    ConfigErrorTypeValidation,
			Message: "config validation failed",
			Err:     err,
		}
	}

	if cfg.Database.MinConns > cfg.Database.MaxConns {
		return &ConfigError{
			Type:    ConfigErrorTypeValidation,
			Message: fmt.Sprintf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", cfg.Database.MinConns, cfg.Database.MaxConns),
		}
	}

	return nil
}
