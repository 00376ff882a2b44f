// Package logging wires the process-wide structured logger. Adapted from
// josephblackelite-nhbchain/observability/logging/logging.go: a single
// slog.JSONHandler with renamed attres, bridged to the standard log package
// so packages that still call log.Printf keep working during the
// transition.
package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup configures the default slog logger to emit structured JSON with
// "service"/"env" attributes attached to every line, and returns it for
// components that want to hold their own reference instead of using
// slog.Default().
func Setup(service, env string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: false,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			default:
				return attr
			}
		},
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	base := slog.New(handler.WithAttrs(attrs))
	slog.SetDefault(base)

	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

// WithFields is a convenience wrapper matching the terse field-tagging style
// the rest of the codebase uses for per-component loggers.
func WithFields(logger *slog.Logger, kv ...any) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(kv...)
}
