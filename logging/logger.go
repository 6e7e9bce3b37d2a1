package logging

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

type Logger logrus.FieldLogger

func New() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{})
	return l
}

type loggerKey struct{}

// WithLogger stores the logger in the context, the logger can be later retrieved via LoggerFromContext.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext returns the logger attached to ctx, or the standard logrus logger.
func LoggerFromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return logrus.StandardLogger()
}
