package log

import (
	"log/slog"
	"os"

	"github.com/sirupsen/logrus"
)

func Setup(logLevel string) {
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	logrus.SetLevel(logrusLevel(logLevel))
}

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}

// NewEntry builds a logrus.Entry at the same level Setup configured slog
// with, for the packages (pkg/graph, pkg/handle, pkg/executor, ...) that
// log through logrus rather than slog.
func NewEntry(module string) *logrus.Entry {
	return logrus.WithField("module", module)
}

func logrusLevel(logLevel string) logrus.Level {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return logrus.InfoLevel
	}

	return level
}
