// Package config - validation logic for configuration values
package config

import (
	"errors"
	"fmt"
	"net/url"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s - %s", e.Field, e.Message)
}

// Validate checks all configuration values for validity
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.Telemetry.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "telemetry.base_url",
			Message: "must be an absolute http(s) URL",
		})
	}

	if c.Telemetry.FingerprintVersion <= 0 {
		errs = append(errs, ValidationError{
			Field:   "telemetry.fingerprint_version",
			Message: "must be greater than 0",
		})
	}

	if c.Telemetry.ClientVersion == "" {
		errs = append(errs, ValidationError{
			Field:   "telemetry.client_version",
			Message: "must not be empty",
		})
	}

	if c.Telemetry.RequestTimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "telemetry.request_timeout_seconds",
			Message: "must be greater than 0",
		})
	}

	if c.Telemetry.ReadRetries < 1 {
		errs = append(errs, ValidationError{
			Field:   "telemetry.read_retries",
			Message: "must be at least 1",
		})
	}

	if c.Verifier.Attempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "verifier.attempts",
			Message: "must be at least 1",
		})
	}

	if c.Verifier.DelayMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "verifier.delay_ms",
			Message: "must not be negative",
		})
	}

	if c.Browser.ViewportWidth <= 0 {
		errs = append(errs, ValidationError{
			Field:   "browser.viewport_width",
			Message: "must be greater than 0",
		})
	}

	if c.Browser.ViewportHeight <= 0 {
		errs = append(errs, ValidationError{
			Field:   "browser.viewport_height",
			Message: "must be greater than 0",
		})
	}

	if c.Storage.DatabasePath == "" {
		errs = append(errs, ValidationError{
			Field:   "storage.database_path",
			Message: "must not be empty",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ValidateForCollector checks if config is valid for running the collection service
func (c *Config) ValidateForCollector() error {
	var errs []error

	if c.Collector.ListenAddr == "" {
		errs = append(errs, ValidationError{
			Field:   "collector.listen_addr",
			Message: "must not be empty",
		})
	}

	if c.Collector.DatabasePath == "" {
		errs = append(errs, ValidationError{
			Field:   "collector.database_path",
			Message: "must not be empty",
		})
	}

	if c.Collector.WritesPerHour <= 0 {
		errs = append(errs, ValidationError{
			Field:   "collector.writes_per_hour",
			Message: "must be greater than 0",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
