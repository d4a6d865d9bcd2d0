package cron

import (
	"fmt"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/goliatone/go-scriptdesk/logging"
)

// Parser selects the cron expression dialect.
type Parser int

const (
	// StandardParser reads five fields plus @descriptors such as @every 1h.
	StandardParser Parser = iota
	// SecondsParser adds a leading seconds field.
	SecondsParser
)

func (p Parser) parser() rcron.Parser {
	fields := rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor
	if p == SecondsParser {
		fields |= rcron.Second
	}
	return rcron.NewParser(fields)
}

// ParseSpec checks expr the same way a scheduler built with p would.
func ParseSpec(p Parser, expr string) error {
	if expr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	_, err := p.parser().Parse(expr)
	return err
}

type Option func(*Scheduler)

// WithLocation sets the time zone recurring expressions are read in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithErrorHandler receives every failed run, recurring or one-shot.
func WithErrorHandler(handler func(error)) Option {
	return func(s *Scheduler) {
		s.errorHandler = handler
	}
}

func WithParser(p Parser) Option {
	return func(s *Scheduler) {
		s.parser = p
	}
}

// loggerAdapter adapts logging.Logger to robfig/cron's logger. robfig
// passes alternating keys and values rather than format arguments, and its
// info entries fire on every wake up so they go to debug.
type loggerAdapter struct {
	logger logging.Logger
}

func (l loggerAdapter) Info(msg string, keysAndValues ...any) {
	logging.WithFields(l.logger, pairs(keysAndValues)).Debug("cron: %s", msg)
}

func (l loggerAdapter) Error(err error, msg string, keysAndValues ...any) {
	logging.WithFields(l.logger, pairs(keysAndValues)).Error("cron: %s: %v", msg, err)
}

func pairs(keysAndValues []any) map[string]any {
	if len(keysAndValues) == 0 {
		return nil
	}
	out := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}

// recoverLogger feeds panics caught by robfig's Recover wrapper to the
// scheduler's error handler.
type recoverLogger struct {
	handler func(error)
}

func (recoverLogger) Info(string, ...any) {}

func (r recoverLogger) Error(err error, msg string, keysAndValues ...any) {
	if err == nil {
		err = fmt.Errorf("%s %v", msg, keysAndValues)
	}
	r.handler(err)
}
