package runner

import (
	"time"

	"github.com/goliatone/go-scriptdesk/execution"
	"github.com/goliatone/go-scriptdesk/logging"
)

const (
	DefaultStartDelay    = time.Second
	DefaultCompleteDelay = 3 * time.Second
	DefaultResult        = "Script executed successfully"
	DefaultFailureResult = "Script execution failed"
)

// Outcome decides how the execution with the given id ends. It returns
// either completed or failed plus the result text.
type Outcome func(executionID string) (execution.Status, string)

type Option func(*Simulated)

// WithDelays sets the wait before running and the further wait before the
// final status.
func WithDelays(start, complete time.Duration) Option {
	return func(r *Simulated) {
		r.startDelay = start
		r.completeDelay = complete
	}
}

// WithResult sets the result text reported on completion.
func WithResult(result string) Option {
	return func(r *Simulated) {
		if result != "" {
			r.result = result
		}
	}
}

// WithFailure makes every run end as failed with result.
func WithFailure(result string) Option {
	return func(r *Simulated) {
		if result == "" {
			result = DefaultFailureResult
		}
		r.outcome = func(string) (execution.Status, string) {
			return execution.StatusFailed, result
		}
	}
}

func WithOutcome(fn Outcome) Option {
	return func(r *Simulated) {
		if fn != nil {
			r.outcome = fn
		}
	}
}

// WithRetry retries a status report up to max extra times when it fails
// on storage.
func WithRetry(max int, strategy RetryStrategy) Option {
	return func(r *Simulated) {
		if max < 0 {
			max = 0
		}
		r.maxRetries = max
		if strategy != nil {
			r.retryStrategy = strategy
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(r *Simulated) {
		r.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Simulated) {
		if now != nil {
			r.now = now
		}
	}
}
