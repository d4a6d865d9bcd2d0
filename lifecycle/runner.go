package lifecycle

import (
	"context"

	"github.com/goliatone/go-scriptdesk/execution"
)

// StatusSink receives status updates from a runner.
type StatusSink interface {
	OnStatusChange(ctx context.Context, executionID string, patch execution.Patch) error
}

// StatusSinkFunc adapts a function to StatusSink.
type StatusSinkFunc func(ctx context.Context, executionID string, patch execution.Patch) error

func (f StatusSinkFunc) OnStatusChange(ctx context.Context, executionID string, patch execution.Patch) error {
	return f(ctx, executionID, patch)
}

// Runner executes an approved execution and reports back through sink,
// first with running and then with completed or failed.
type Runner interface {
	Start(ctx context.Context, executionID string, sink StatusSink) error
}
