package runner

import (
	"context"
	"time"

	scriptdesk "github.com/goliatone/go-scriptdesk"
)

// RetryStrategy picks the pause before a failed status report is sent
// again. attempt counts from 0.
type RetryStrategy interface {
	SleepDuration(attempt int, err error) time.Duration
}

// NoDelayStrategy resends at once.
type NoDelayStrategy struct{}

func (NoDelayStrategy) SleepDuration(int, error) time.Duration { return 0 }

// FixedDelayStrategy waits Delay between every attempt.
type FixedDelayStrategy struct {
	Delay time.Duration
}

func (s FixedDelayStrategy) SleepDuration(int, error) time.Duration { return s.Delay }

// ExponentialBackoffStrategy multiplies Base by Factor per attempt, capped
// at Max when Max is set.
//
//	WithRetry(2, ExponentialBackoffStrategy{Base: 50 * time.Millisecond, Factor: 2, Max: time.Second})
type ExponentialBackoffStrategy struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

func (e ExponentialBackoffStrategy) SleepDuration(attempt int, _ error) time.Duration {
	delay := float64(e.Base)
	for i := 0; i < attempt; i++ {
		delay *= e.Factor
		if e.Max > 0 && time.Duration(delay) >= e.Max {
			return e.Max
		}
	}
	if e.Max > 0 && time.Duration(delay) > e.Max {
		return e.Max
	}
	return time.Duration(delay)
}

// retryable reports whether a status report may succeed if sent again.
// Only storage failures are transient; a refused transition never is.
func retryable(err error) bool {
	return scriptdesk.HasCode(err, scriptdesk.CodeStorageFailed)
}

// withRetry calls send until it succeeds, fails for good or runs out of
// attempts. onRetry sees every failure that will be retried.
func withRetry(ctx context.Context, max int, strategy RetryStrategy, send func() error, onRetry func(attempt int, err error)) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = send(); err == nil || !retryable(err) || attempt >= max {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if delay := strategy.SleepDuration(attempt, err); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}
	}
}
