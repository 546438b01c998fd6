// Package logging provides structured logging for reparcel.
// It uses Go's standard library slog package for structured logging with
// support for different output formats and log levels, plus a capture
// pipeline that records per-execution logs for later inspection.
//
// Example usage:
//
//	logger, err := logging.New(logging.Config{
//		Level:  "info",
//		Format: "json",
//	})
//	logger.Info("stage completed", "stage", "indices", "duration_ms", 5310)
//	logger.Error("stage failed", "stage", "erp", "contract", "40312", "error", err)
package logging

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config holds the configuration for the logger.
type Config struct {
	// Level sets the minimum log level: debug, info, warn or error.
	Level string `yaml:"level"`
	// Format selects the output encoding: json or text.
	Format string `yaml:"format"`
	// Output is the destination: stdout, stderr, or a file path.
	Output string `yaml:"output"`
	// AddSource adds source code position to log records.
	AddSource bool `yaml:"add_source"`
}

// setDefaults fills unset fields: info level, json format, stdout.
func (cfg *Config) setDefaults() {
	cfg.Level = cmp.Or(cfg.Level, "info")
	cfg.Format = cmp.Or(cfg.Format, "json")
	cfg.Output = cmp.Or(cfg.Output, "stdout")
}

// Logger wraps slog.Logger.
type Logger struct {
	*slog.Logger
}

// New creates a logger from cfg.
func New(cfg Config) (*Logger, error) {
	cfg.setDefaults()

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	writer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: rfc3339Time,
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	case "text":
		handler = slog.NewTextHandler(writer, opts)
	default:
		return nil, fmt.Errorf("invalid logging config: unsupported format %q", cfg.Format)
	}

	return &Logger{Logger: slog.New(handler)}, nil
}

// rfc3339Time renders the time attribute without sub-second noise.
func rfc3339Time(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
	}
	return a
}

// ParseLevel converts a string level to slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level: %s", level)
	}
}

// openOutput resolves the configured destination to a writer. Anything that
// is not stdout or stderr is treated as a file path and opened for append.
func openOutput(output string) (io.Writer, error) {
	switch output {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %q: %w", output, err)
		}
		return file, nil
	}
}
