package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	scriptdesk "github.com/goliatone/go-scriptdesk"
	"github.com/goliatone/go-scriptdesk/logging"
)

// Job is the unit of work the scheduler runs.
type Job func(ctx context.Context) error

// JobOptions configures one scheduled job.
type JobOptions struct {
	// Name identifies the job in logs and panic reports.
	Name string
	// Expression is the cron spec for recurring jobs.
	Expression string
	// Timeout bounds a single run. Zero means no timeout.
	Timeout time.Duration
}

// Scheduler runs recurring cron jobs and one-shot delayed jobs.
type Scheduler struct {
	mu           sync.Mutex
	cron         *rcron.Cron
	location     *time.Location
	errorHandler func(error)

	logger logging.Logger
	parser Parser

	nextHandleID int64
	handles      map[int64]*jobHandle
}

// NewScheduler creates a new scheduler instance with the provided options.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		location: time.Local,
		parser:   StandardParser,
		handles:  make(map[int64]*jobHandle),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = logging.NewFmtLogger(nil).WithLevel(logging.LevelInfo)
	}
	if s.errorHandler == nil {
		logger := s.logger
		s.errorHandler = func(err error) { logger.Error("scheduled job failed: %v", err) }
	}

	s.cron = rcron.New(s.build()...)
	return s
}

// ScheduleCron schedules a recurring job by cron expression.
func (s *Scheduler) ScheduleCron(opts JobOptions, job Job) (Handle, error) {
	if opts.Expression == "" {
		return nil, fmt.Errorf("cron expression cannot be empty")
	}
	if job == nil {
		return nil, fmt.Errorf("job cannot be nil")
	}
	run := s.runnable(opts, job)

	sub := s.newHandle(opts.Name)
	entry := rcron.FuncJob(func() {
		if isTerminalStatus(sub.Status()) {
			return
		}

		sub.setStatus(ScheduleStatusRunning, nil)
		// a failed tick keeps the job scheduled; Err holds the last failure
		err := run()
		if err != nil {
			s.errorHandler(err)
		}
		sub.finishRun(ScheduleStatusIdle, err)
	})

	entryID, err := s.cron.AddJob(opts.Expression, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to add job: %w", err)
	}
	sub.entryID = int(entryID)
	s.storeHandle(sub)
	return sub, nil
}

// ScheduleAfter runs job once after delay.
func (s *Scheduler) ScheduleAfter(delay time.Duration, opts JobOptions, job Job) (Handle, error) {
	if delay < 0 {
		delay = 0
	}
	return s.ScheduleAt(time.Now().Add(delay), opts, job)
}

// ScheduleAt runs job once at a specific time. One-shot jobs fire whether
// or not Start has been called.
func (s *Scheduler) ScheduleAt(at time.Time, opts JobOptions, job Job) (Handle, error) {
	if job == nil {
		return nil, fmt.Errorf("job cannot be nil")
	}
	run := s.runnable(opts, job)

	sub := s.newHandle(opts.Name)
	s.storeHandle(sub)

	go func() {
		wait := time.Until(at)
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-sub.Done():
			return
		}

		if isTerminalStatus(sub.Status()) {
			return
		}
		sub.setStatus(ScheduleStatusRunning, nil)
		err := run()
		sub.finishRun(ScheduleStatusRunning, err)
		if err != nil {
			s.errorHandler(err)
			s.removeStoredHandle(sub.id)
			sub.setTerminal(ScheduleStatusFailed, err)
			return
		}
		s.removeStoredHandle(sub.id)
		sub.setTerminal(ScheduleStatusCompleted, nil)
	}()

	return sub, nil
}

// ScheduleCommand dispatches msg to cmd on every tick of opts.Expression.
func ScheduleCommand[T any](s *Scheduler, opts JobOptions, cmd scriptdesk.Commander[T], msg func() T) (Handle, error) {
	if s == nil {
		return nil, fmt.Errorf("scheduler cannot be nil")
	}
	if cmd == nil || msg == nil {
		return nil, fmt.Errorf("command and message builder are required")
	}
	return s.ScheduleCron(opts, func(ctx context.Context) error {
		m := msg()
		if err := scriptdesk.ValidateMessage(m); err != nil {
			return err
		}
		return cmd.Execute(ctx, m)
	})
}

// Start begins executing scheduled cron jobs.
func (s *Scheduler) Start(_ context.Context) error {
	s.cron.Start()
	return nil
}

// Stop stops executing scheduled jobs and marks active handles as stopped.
// It waits for running cron jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()

	var handles []*jobHandle
	s.mu.Lock()
	for _, handle := range s.handles {
		handles = append(handles, handle)
	}
	s.handles = make(map[int64]*jobHandle)
	s.mu.Unlock()

	for _, handle := range handles {
		if handle == nil {
			continue
		}
		if handle.entryID > 0 {
			s.cron.Remove(rcron.EntryID(handle.entryID))
		}
		if isTerminalStatus(handle.Status()) {
			continue
		}
		handle.setTerminal(ScheduleStatusStopped, nil)
	}

	if ctx == nil {
		return nil
	}
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports how many handles are still tracked.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *Scheduler) removeHandle(id int64) {
	handle := s.removeStoredHandle(id)
	if handle == nil {
		return
	}
	if handle.entryID > 0 {
		s.cron.Remove(rcron.EntryID(handle.entryID))
	}
}

func (s *Scheduler) removeStoredHandle(id int64) *jobHandle {
	if s == nil || id == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	handle := s.handles[id]
	delete(s.handles, id)
	return handle
}

func (s *Scheduler) storeHandle(handle *jobHandle) {
	if s == nil || handle == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handles == nil {
		s.handles = make(map[int64]*jobHandle)
	}
	s.handles[handle.id] = handle
}

func (s *Scheduler) newHandle(name string) *jobHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandleID++
	return &jobHandle{
		scheduler: s,
		id:        s.nextHandleID,
		name:      name,
		status:    ScheduleStatusScheduled,
		done:      make(chan struct{}),
	}
}

func isTerminalStatus(status ScheduleStatus) bool {
	switch status {
	case ScheduleStatusCompleted, ScheduleStatusCanceled, ScheduleStatusFailed, ScheduleStatusStopped:
		return true
	default:
		return false
	}
}

// runnable wraps job with the run timeout and turns panics into errors.
func (s *Scheduler) runnable(opts JobOptions, job Job) func() error {
	name := opts.Name
	if name == "" {
		name = "cron.job"
	}
	return func() (err error) {
		defer scriptdesk.Recover("cron.job", map[string]any{"job": name}, func(perr error) {
			s.logger.Error("%s", perr.Error())
			err = perr
		})

		ctx := context.Background()
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}
		return job(ctx)
	}
}

// build converts scheduler options to rcron options.
func (s *Scheduler) build() []rcron.Option {
	return []rcron.Option{
		rcron.WithLocation(s.location),
		rcron.WithParser(s.parser.parser()),
		rcron.WithChain(rcron.Recover(recoverLogger{handler: s.errorHandler})),
		rcron.WithLogger(loggerAdapter{logger: s.logger}),
	}
}
