package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/goliatone/go-logger/glog"
)

// Options controls the go-logger backed logger built by New.
type Options struct {
	Level  string
	Format string
	Writer io.Writer
}

// New builds a go-logger logger. Format "json" selects the JSON encoder,
// anything else keeps the console encoder.
func New(opts Options) Logger {
	out := opts.Writer
	if out == nil {
		out = os.Stderr
	}
	level := strings.TrimSpace(opts.Level)
	if level == "" {
		level = "info"
	}

	var base glog.Logger
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		base = glog.NewLogger(
			glog.WithWriter(out),
			glog.WithLoggerTypeJSON(),
			glog.WithLevel(level),
		)
	} else {
		base = glog.NewLogger(
			glog.WithWriter(out),
			glog.WithLevel(level),
		)
	}
	return FromGlog(base)
}

// FromGlog adapts a go-logger logger to Logger.
func FromGlog(logger glog.Logger) Logger {
	if logger == nil {
		return NewFmtLogger(nil)
	}
	return glogLogger{logger: logger}
}

type glogLogger struct {
	logger glog.Logger
}

func (l glogLogger) Trace(msg string, args ...any) { l.logger.Trace(msg, args...) }
func (l glogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l glogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l glogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l glogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l glogLogger) Fatal(msg string, args ...any) { l.logger.Fatal(msg, args...) }

func (l glogLogger) WithContext(ctx context.Context) Logger {
	return glogLogger{logger: l.logger.WithContext(ctx)}
}

func (l glogLogger) WithFields(fields map[string]any) Logger {
	if fl, ok := l.logger.(glog.FieldsLogger); ok {
		return glogLogger{logger: fl.WithFields(fields)}
	}
	return l
}
