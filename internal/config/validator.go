package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers the config-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	if err := v.RegisterValidation("redis_url", validateRedisURL); err != nil {
		return fmt.Errorf("failed to register redis_url validator: %w", err)
	}
	return nil
}

// validateDuration accepts a positive Go duration string.
func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// validateRedisURL accepts redis:// and rediss:// URLs with a host.
func validateRedisURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	return (u.Scheme == "redis" || u.Scheme == "rediss") && u.Host != ""
}

// Validate validates the Config using struct tags and cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateBackend(); err != nil {
		return err
	}
	return nil
}

// validateBackend checks that the chosen backend has what it needs.
func (c *Config) validateBackend() error {
	switch c.Session.Backend {
	case BackendFile, BackendSQLite:
		if c.Session.Path == "" {
			return fmt.Errorf("session.path is required for the %s backend", c.Session.Backend)
		}
	case BackendRedis:
		if c.Session.RedisURL == "" {
			return errors.New("session.redis_url is required for the redis backend")
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "duration":
		return fmt.Sprintf("%s must be a positive duration like \"30s\"", field)
	case "redis_url":
		return fmt.Sprintf("%s must be a redis:// or rediss:// URL", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
