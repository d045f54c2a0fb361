// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log builds the structured loggers used by the CLI and the
// library packages.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format represents the log output format.
type Format string

const (
	// FormatJSON outputs logs in JSON format for machine parsing.
	FormatJSON Format = "json"
	// FormatText outputs logs in human-readable text format.
	FormatText Format = "text"
)

const (
	// LevelTrace is more verbose than Debug, used for request/response bodies.
	LevelTrace = slog.Level(-8)
)

// Standard field keys.
const (
	// ComponentKey names the emitting component (session, oauth2, storage...).
	ComponentKey = "component"
	// ProfileKey is the config profile in use.
	ProfileKey = "profile"
	// StorageKeyKey is the token storage record key.
	StorageKeyKey = "storage_key"
	// AttemptKey is the 1-based attempt number within a retry loop.
	AttemptKey = "attempt"
	// DurationKey is the field key for duration in milliseconds.
	DurationKey = "duration_ms"
	// CorrelationIDKey is the per-request correlation identifier.
	CorrelationIDKey = "correlation_id"
)

// Config configures logger creation.
type Config struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Default: info
	Level string

	// Format sets the output format (json, text).
	// Default: json
	Format Format

	// Output is the writer for log output.
	// Default: os.Stderr
	Output io.Writer

	// AddSource adds source file and line information to logs.
	// Default: false
	AddSource bool
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:     "info",
		Format:    FormatJSON,
		Output:    os.Stderr,
		AddSource: false,
	}
}

// FromEnv builds a Config from environment variables.
//
//	APICLIENT_DEBUG=1|true   debug level with source info
//	APICLIENT_LOG_LEVEL      level (overrides LOG_LEVEL)
//	LOG_LEVEL                level
//	LOG_FORMAT               json or text
//	LOG_SOURCE=1             add source info
func FromEnv() *Config {
	cfg := DefaultConfig()

	debug := os.Getenv("APICLIENT_DEBUG")
	if debug == "true" || debug == "1" {
		cfg.Level = "debug"
		cfg.AddSource = true
	}

	if debug == "" {
		if level := os.Getenv("APICLIENT_LOG_LEVEL"); level != "" {
			cfg.Level = strings.ToLower(level)
		} else if level := os.Getenv("LOG_LEVEL"); level != "" {
			cfg.Level = strings.ToLower(level)
		}
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Format = Format(strings.ToLower(format))
	}

	if os.Getenv("LOG_SOURCE") == "1" {
		cfg.AddSource = true
	}

	return cfg
}

// New creates a new slog.Logger with the given configuration.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(output, opts)
	case FormatJSON:
		fallthrough
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops everything. Used as a test default.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDefault returns logger, or slog.Default() when logger is nil.
func OrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent adds a component field to the logger.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return OrDefault(logger).With(ComponentKey, component)
}

// WithCorrelationID adds a correlation ID field to the logger.
func WithCorrelationID(logger *slog.Logger, correlationID string) *slog.Logger {
	return OrDefault(logger).With(CorrelationIDKey, correlationID)
}

// Error creates an error attribute.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// SanitizeSecret fully redacts a secret value.
func SanitizeSecret(string) string {
	return "[REDACTED]"
}

// SanitizeToken keeps the last 4 characters of a token for correlation.
func SanitizeToken(token string) string {
	if len(token) <= 8 {
		return "[REDACTED]"
	}
	return "..." + token[len(token)-4:]
}

// Trace logs at trace level if enabled.
func Trace(logger *slog.Logger, msg string, attrs ...slog.Attr) {
	if !logger.Enabled(context.Background(), LevelTrace) {
		return
	}
	logger.LogAttrs(context.Background(), LevelTrace, msg, attrs...)
}
