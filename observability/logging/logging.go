// Package logging configures structured logging for the daemon. Production
// environments emit one JSON object per line with stable key names; local
// environments get the human-readable text handler at debug level.
package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

func levelFor(env string) slog.Level {
	switch env {
	case "dev", "local", "test":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// renameAttrs maps slog's default keys onto the names the log pipeline
// expects: timestamp, severity, message.
func renameAttrs(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "timestamp"
	case slog.LevelKey:
		attr = slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = "message"
	}
	return attr
}

// Setup installs the process-wide logger and returns it. Every line carries
// the service name and, when set, the environment. The standard library
// logger is redirected into the same handler so third-party packages that
// still call log.Printf land in the structured stream.
func Setup(service, env string) *slog.Logger {
	env = strings.TrimSpace(env)
	opts := &slog.HandlerOptions{Level: levelFor(env)}

	var handler slog.Handler
	if env == "dev" || env == "local" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		opts.ReplaceAttr = renameAttrs
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	handler = handler.WithAttrs(attrs)

	root := slog.New(handler)
	slog.SetDefault(root)

	bridge := slog.NewLogLogger(handler, slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return root
}
