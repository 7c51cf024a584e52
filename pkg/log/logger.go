package log

import (
	"context"

	logrus "github.com/sirupsen/logrus"
)

type contextKey string

const loggerKey contextKey = "logger"

func CreateContextWithLogger(logger *logrus.Entry) (context.Context, context.CancelFunc) {

	ctx, cancel := context.WithCancel(context.Background())
	ctx = context.WithValue(ctx, loggerKey, logger)

	return ctx, cancel
}

// FromContext retrieves the logger stashed by CreateContextWithLogger, or
// a bare standard-logger entry if the context carries none.
func FromContext(ctx context.Context) *logrus.Entry {
	if logger, ok := ctx.Value(loggerKey).(*logrus.Entry); ok {
		return logger
	}

	return logrus.NewEntry(logrus.StandardLogger())
}
