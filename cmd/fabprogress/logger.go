package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"fabprogress/internal/config"
)

// fanout hands each record to every sink enabled for its level. Only the
// first sink's write error is returned.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var primary error
	for i, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && i == 0 {
			primary = err
		}
	}
	return primary
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

func consoleHandler(env string) slog.Handler {
	level := slog.LevelDebug
	if env == envProd {
		level = slog.LevelInfo
	}

	if env == envDev {
		return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
}

func parseLevel(s string) (slog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return slog.LevelError, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("error log level %q: %w", s, err)
	}
	return lvl, nil
}

// setupLogger logs to stdout and, when a path is configured, copies records
// at or above the configured level into a JSON file with source positions.
func setupLogger(env string, errLog config.ErrorLog) *slog.Logger {
	console := consoleHandler(env)
	if errLog.Path == "" {
		return slog.New(console)
	}

	log := slog.New(console)

	level, err := parseLevel(errLog.Level)
	if err != nil {
		log.Warn("invalid error log level, using error", slog.String("error", err.Error()))
		level = slog.LevelError
	}

	file, err := os.OpenFile(errLog.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warn("cannot open error log file", slog.String("path", errLog.Path), slog.String("error", err.Error()))
		return log
	}

	return slog.New(fanout{
		console,
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level, AddSource: true}),
	})
}
