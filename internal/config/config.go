// Package config
package config

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nmslite/antprobe/internal/cgminer"
	"github.com/nmslite/antprobe/internal/metrics"
)

// Config holds one invocation's settings. It is filled from the command line
// only; the probe reads no config file and no environment.
type Config struct {
	Family     string `validate:"required"`
	Target     string `validate:"required,ip"`
	Metric     string `validate:"required,metric"`
	Port       int    `validate:"min=1,max=65535"`
	TimeoutMS  int    `validate:"min=1,max=600000"`
	EnablePing bool
	Logging    LoggingConfig
}

type LoggingConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=text json"`
}

// Default returns a config for the cgminer API port with a one second
// timeout and ping disabled.
func Default() *Config {
	return &Config{
		Port:      cgminer.DefaultPort,
		TimeoutMS: 1000,
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Timeout returns the connection timeout as a duration
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Address returns the device's host:port
func (c *Config) Address() string {
	return net.JoinHostPort(c.Target, strconv.Itoa(c.Port))
}

// SetTimeoutSeconds sets the timeout from the seconds given on the command line
func (c *Config) SetTimeoutSeconds(s float64) {
	c.TimeoutMS = int(s * 1000)
}

// SetVerbosity maps the number of -v flags to a log level
func (l *LoggingConfig) SetVerbosity(v int) {
	switch {
	case v >= 2:
		l.Level = "debug"
	case v == 1:
		l.Level = "info"
	}
}

// Global validator instance
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("metric", func(fl validator.FieldLevel) bool {
		return metrics.IsKnown(fl.Field().String())
	})
	return v
}

// ValidationError represents a field-level validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors holds multiple validation errors
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Error implements the error interface for ValidationErrors
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		messages[i] = e.Message
	}
	return strings.Join(messages, "; ")
}

// Validate checks the arguments before any network traffic happens
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validation failed: %w", err)
	}
	validationErrs := &ValidationErrors{}
	for _, e := range fieldErrs {
		validationErrs.Errors = append(validationErrs.Errors, ValidationError{
			Field:   toSnakeCase(e.Field()),
			Message: formatValidationMessage(e),
		})
	}
	return validationErrs
}

// formatValidationMessage creates human-readable error messages
func formatValidationMessage(e validator.FieldError) string {
	field := toSnakeCase(e.Field())
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "ip":
		return fmt.Sprintf("%q is not a valid IP address", e.Value())
	case "metric":
		names := make([]string, 0)
		for _, n := range metrics.Names() {
			names = append(names, string(n))
		}
		return fmt.Sprintf("%q is not a valid metric (valid: %s)", e.Value(), strings.Join(names, ", "))
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, e.Tag())
	}
}

// toSnakeCase converts PascalCase/camelCase to snake_case, keeping
// acronyms together ("TimeoutMS" -> "timeout_ms")
func toSnakeCase(s string) string {
	var result strings.Builder
	prevLower := false
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			if prevLower {
				result.WriteByte('_')
			}
			result.WriteByte(byte(r + 'a' - 'A'))
			prevLower = false
		} else {
			result.WriteRune(r)
			prevLower = true
		}
	}
	return result.String()
}

// InitLogger builds the process logger. Output goes to w (stderr), never to
// stdout, which carries the metric value.
func InitLogger(cfg LoggingConfig, w io.Writer) *slog.Logger {
	var handler slog.Handler

	// Set log level
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// Set format
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
