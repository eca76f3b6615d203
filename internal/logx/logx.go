// Package logx sets up the engine's structured logger. File-only by
// construction: stdout and stderr are occupied by the wrapped child
// agent's terminal, so nothing may write there once the engine takes
// over the screen.
package logx

import (
	"fmt"
	"log/slog"
	"os"
)

// New opens path for append and returns a slog.Logger writing to it
// exclusively. level is one of "debug", "info", "warn", "error"; anything
// else defaults to "info".
func New(path, level string) (*slog.Logger, func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logx: open %s: %w", path, err)
	}

	handler := slog.NewTextHandler(f, &slog.HandlerOptions{
		Level: parseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("15:04:05.000"))
			}
			return a
		},
	})
	return slog.New(handler), f.Close, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
