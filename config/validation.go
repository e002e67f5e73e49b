package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateConfig checks that the configuration is usable for the current environment
func ValidateConfig(cfg *Config) error {
	var errs []error

	if u, err := url.Parse(cfg.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{Field: "api_url", Message: fmt.Sprintf("invalid URL %q", cfg.APIBaseURL)})
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "request_timeout", Message: "must be positive"})
	}
	if cfg.NotifyDuration <= 0 {
		errs = append(errs, ValidationError{Field: "notify_duration", Message: "must be positive"})
	}

	switch cfg.SessionBackend {
	case SessionMemory:
	case SessionRedis:
		if cfg.RedisURL == "" {
			errs = append(errs, ValidationError{Field: "redis_url", Message: "required for the redis session backend"})
		}
	case SessionSQL:
		if cfg.SQLDriver != "sqlite" && cfg.SQLDriver != "postgres" {
			errs = append(errs, ValidationError{Field: "sql_driver", Message: fmt.Sprintf("unsupported driver %q", cfg.SQLDriver)})
		}
		if cfg.SQLDSN == "" {
			errs = append(errs, ValidationError{Field: "sql_dsn", Message: "required for the sql session backend"})
		}
	default:
		errs = append(errs, ValidationError{Field: "session_backend", Message: fmt.Sprintf("unknown backend %q", cfg.SessionBackend)})
	}

	if cfg.S3Bucket != "" && cfg.AWSRegion == "" {
		errs = append(errs, ValidationError{Field: "aws_region", Message: "required when s3_bucket is set"})
	}

	// The reference backend must not sign tokens with an empty key outside development
	if cfg.Environment.RequiresSecrets() && strings.TrimSpace(cfg.JWTSecret) == "" {
		errs = append(errs, ValidationError{Field: "jwt_secret", Message: fmt.Sprintf("required in %s environment", cfg.Environment)})
	}

	return errors.Join(errs...)
}
