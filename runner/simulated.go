package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-scriptdesk/cron"
	"github.com/goliatone/go-scriptdesk/execution"
	"github.com/goliatone/go-scriptdesk/lifecycle"
	"github.com/goliatone/go-scriptdesk/logging"
)

// Simulated stands in for a real script backend. Each Start schedules a
// running report after the start delay; that callback schedules the final
// report, so running always lands before completed or failed.
type Simulated struct {
	scheduler *cron.Scheduler

	startDelay    time.Duration
	completeDelay time.Duration
	result        string
	outcome       Outcome

	maxRetries    int
	retryStrategy RetryStrategy

	logger logging.Logger
	now    func() time.Time
}

var _ lifecycle.Runner = (*Simulated)(nil)

func NewSimulated(scheduler *cron.Scheduler, opts ...Option) *Simulated {
	r := &Simulated{
		scheduler:     scheduler,
		startDelay:    DefaultStartDelay,
		completeDelay: DefaultCompleteDelay,
		result:        DefaultResult,
		retryStrategy: NoDelayStrategy{},
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.logger = logging.Normalize(r.logger)
	if r.scheduler == nil {
		r.scheduler = cron.NewScheduler(cron.WithLogger(r.logger))
	}
	if r.outcome == nil {
		result := r.result
		r.outcome = func(string) (execution.Status, string) {
			return execution.StatusCompleted, result
		}
	}
	return r
}

// Start schedules the two status reports for executionID. Callbacks close
// over executionID and are never canceled.
func (r *Simulated) Start(ctx context.Context, executionID string, sink lifecycle.StatusSink) error {
	if sink == nil {
		return fmt.Errorf("runner: status sink is required")
	}
	log := logging.WithFields(r.logger.WithContext(ctx), map[string]any{"execution_id": executionID})

	_, err := r.scheduler.ScheduleAfter(r.startDelay, cron.JobOptions{Name: "runner.start"}, func(jobCtx context.Context) error {
		if err := r.report(jobCtx, sink, executionID, execution.StatusPatch(execution.StatusRunning)); err != nil {
			log.Warn("running report refused, not scheduling completion: %v", err)
			return err
		}

		_, err := r.scheduler.ScheduleAfter(r.completeDelay, cron.JobOptions{Name: "runner.finish"}, func(jobCtx context.Context) error {
			status, result := r.outcome(executionID)
			patch := execution.StatusPatch(status).WithResult(result).WithEndTime(r.now())
			if err := r.report(jobCtx, sink, executionID, patch); err != nil {
				log.Warn("%s report refused: %v", status, err)
				return err
			}
			log.Debug("execution finished as %s", status)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("runner: schedule %s: %w", executionID, err)
	}
	log.Debug("scheduled run in %s", r.startDelay)
	return nil
}

func (r *Simulated) report(ctx context.Context, sink lifecycle.StatusSink, id string, p execution.Patch) error {
	return withRetry(ctx, r.maxRetries, r.retryStrategy, func() error {
		return sink.OnStatusChange(ctx, id, p)
	}, func(attempt int, err error) {
		r.logger.Warn("status report for %s failed, attempt %d of %d: %v", id, attempt+1, r.maxRetries+1, err)
	})
}
