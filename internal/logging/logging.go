// Package logging builds the process logger and carries it through
// contexts. Every record is tagged service=albaqer so the shop backend's
// log pipeline can tell the retrieval engine apart from the Express app.
//
//	LOG_LEVEL  = debug | info | warn | error   (default: info)
//	LOG_FORMAT = json | text                   (default: json)
//	LOG_SOURCE = true                          adds file:line to each record
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Service is the value of the service attribute on every record.
const Service = "albaqer"

type contextKey struct{}

// Options selects the handler New builds. The zero value is JSON at info.
type Options struct {
	Level     slog.Level
	Text      bool
	AddSource bool
}

// OptionsFromEnv reads LOG_LEVEL, LOG_FORMAT and LOG_SOURCE. Unknown levels
// fall back to info.
func OptionsFromEnv() Options {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(normaliseLevel(os.Getenv("LOG_LEVEL")))); err != nil {
		lvl = slog.LevelInfo
	}
	return Options{
		Level:     lvl,
		Text:      strings.EqualFold(os.Getenv("LOG_FORMAT"), "text"),
		AddSource: strings.EqualFold(os.Getenv("LOG_SOURCE"), "true"),
	}
}

// New returns a logger writing to stderr, configured from the environment.
func New() *slog.Logger {
	return NewWithWriter(os.Stderr, OptionsFromEnv())
}

// NewWithWriter returns a logger writing to w with opts.
func NewWithWriter(w io.Writer, opts Options) *slog.Logger {
	ho := &slog.HandlerOptions{Level: opts.Level, AddSource: opts.AddSource}
	var h slog.Handler
	if opts.Text {
		h = slog.NewTextHandler(w, ho)
	} else {
		h = slog.NewJSONHandler(w, ho)
	}
	return slog.New(h).With(slog.String("service", Service))
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or [slog.Default].
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// normaliseLevel maps the accepted aliases onto names slog understands.
func normaliseLevel(s string) string {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "":
		return "info"
	case "warning":
		return "warn"
	default:
		return s
	}
}
