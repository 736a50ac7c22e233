// Package telemetry wires structured logging and optional OTLP trace
// export for the lakeseed toolchain.
package telemetry

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Options control construction of the process logger.
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values fall
	// back to info.
	Level string

	// LogFile, when set, mirrors every record to the named file as
	// JSON. The console output stays human-readable text.
	LogFile string

	// Console receives the text output. Defaults to os.Stderr so
	// command results on stdout stay machine-consumable.
	Console io.Writer

	// Service is stamped onto every record.
	Service string
}

// ParseLevel maps a config string to a slog level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger. The returned close function
// releases the JSON log file if one was opened; it is safe to call
// when no file is in play.
func NewLogger(opts Options) (*slog.Logger, func() error, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	handler := slog.Handler(slog.NewTextHandler(console, handlerOpts))
	closer := func() error { return nil }

	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", opts.LogFile, err)
		}
		handler = slogmulti.Fanout(
			handler,
			slog.NewJSONHandler(f, handlerOpts),
		)
		closer = f.Close
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With(slog.String("service", opts.Service))
	}
	return logger, closer, nil
}

// SetDefault installs the logger as the process default so packages
// that fall back to slog.Default pick it up.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
