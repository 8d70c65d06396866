package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
}

type logrusLogger struct {
	entry *logrus.Entry
}

func (l *logrusLogger) Debug(args ...any) {
	l.entry.Debug(args...)
}

func (l *logrusLogger) Debugf(format string, args ...any) {
	l.entry.Debugf(format, args...)
}

func (l *logrusLogger) Info(args ...any) {
	l.entry.Info(args...)
}

func (l *logrusLogger) Infof(format string, args ...any) {
	l.entry.Infof(format, args...)
}

func (l *logrusLogger) Error(args ...any) {
	l.entry.Error(args...)
}

func (l *logrusLogger) Errorf(format string, args ...any) {
	l.entry.Errorf(format, args...)
}

func (l *logrusLogger) Warn(args ...any) {
	l.entry.Warn(args...)
}

func (l *logrusLogger) Warnf(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

func (l *logrusLogger) Fatal(args ...any) {
	l.entry.Fatal(args...)
}

func (l *logrusLogger) Fatalf(format string, args ...any) {
	l.entry.Fatalf(format, args...)
}

func NewLogger(ctx context.Context) Logger {
	factory := GetLoggerFactory()
	if factory != nil {
		return factory.CreateLogger(ctx)
	}

	return newLogrusLogger(ctx)
}

func newLogrusLogger(ctx context.Context) Logger {
	logger := logrus.New()
	return &logrusLogger{entry: withRequestFields(logger.WithContext(ctx), ctx)}
}

// logrusFactory shares one configured logrus.Logger across every request.
type logrusFactory struct {
	base *logrus.Logger
}

func (f *logrusFactory) CreateLogger(ctx context.Context) Logger {
	return &logrusLogger{entry: withRequestFields(f.base.WithContext(ctx), ctx)}
}

// Configure installs a process-wide factory writing to stdout with the given
// level ("debug", "info", "warn", "error") and format ("text" or "json").
func Configure(level string, format string) error {
	return ConfigureOutput(os.Stdout, level, format)
}

func ConfigureOutput(out io.Writer, level string, format string) error {
	base, err := newBaseLogger(out, level, format)
	if err != nil {
		return err
	}
	SetLoggerFactory(&logrusFactory{base: base})
	return nil
}

func newBaseLogger(out io.Writer, level string, format string) (*logrus.Logger, error) {
	base := logrus.New()
	base.SetOutput(out)

	parsedLevel := logrus.InfoLevel
	if trimmed := strings.TrimSpace(level); trimmed != "" {
		var err error
		parsedLevel, err = logrus.ParseLevel(trimmed)
		if err != nil {
			return nil, err
		}
	}
	base.SetLevel(parsedLevel)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return base, nil
}
