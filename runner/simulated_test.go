package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scriptdesk "github.com/goliatone/go-scriptdesk"
	"github.com/goliatone/go-scriptdesk/access"
	"github.com/goliatone/go-scriptdesk/cron"
	"github.com/goliatone/go-scriptdesk/execution"
	"github.com/goliatone/go-scriptdesk/form"
	"github.com/goliatone/go-scriptdesk/lifecycle"
	"github.com/goliatone/go-scriptdesk/logging"
	"github.com/goliatone/go-scriptdesk/script"
)

type call struct {
	id    string
	patch execution.Patch
}

type recordingSink struct {
	mu    sync.Mutex
	calls []call
	fail  func(n int) error
}

func (s *recordingSink) OnStatusChange(_ context.Context, id string, p execution.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{id: id, patch: p})
	if s.fail != nil {
		return s.fail(len(s.calls))
	}
	return nil
}

func (s *recordingSink) snapshot() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

func fast(opts ...Option) *Simulated {
	base := []Option{WithDelays(5*time.Millisecond, 10*time.Millisecond), WithLogger(logging.Nop{})}
	sched := cron.NewScheduler(cron.WithErrorHandler(func(error) {}))
	return NewSimulated(sched, append(base, opts...)...)
}

func TestSimulatedReportsRunningThenCompleted(t *testing.T) {
	sink := &recordingSink{}
	r := fast(WithResult("all good"))

	require.NoError(t, r.Start(context.Background(), "42", sink))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, 5*time.Millisecond)

	calls := sink.snapshot()
	assert.Equal(t, "42", calls[0].id)
	assert.Equal(t, execution.StatusRunning, *calls[0].patch.Status)
	assert.Nil(t, calls[0].patch.EndTime)

	assert.Equal(t, "42", calls[1].id)
	assert.Equal(t, execution.StatusCompleted, *calls[1].patch.Status)
	assert.Equal(t, "all good", *calls[1].patch.Result)
	assert.NotNil(t, calls[1].patch.EndTime)
}

func TestSimulatedFailureOutcome(t *testing.T) {
	sink := &recordingSink{}
	r := fast(WithFailure(""))

	require.NoError(t, r.Start(context.Background(), "7", sink))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, 5*time.Millisecond)

	final := sink.snapshot()[1].patch
	assert.Equal(t, execution.StatusFailed, *final.Status)
	assert.Equal(t, DefaultFailureResult, *final.Result)
}

func TestSimulatedStopsWhenRunningRefused(t *testing.T) {
	sink := &recordingSink{fail: func(int) error { return scriptdesk.ErrInvalidTransition }}
	r := fast()

	require.NoError(t, r.Start(context.Background(), "1", sink))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, sink.snapshot(), 1)
}

func TestSimulatedRetriesStorageFailures(t *testing.T) {
	sink := &recordingSink{fail: func(n int) error {
		if n == 1 {
			return scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "disk busy", nil, nil)
		}
		return nil
	}}
	r := fast(WithRetry(2, NoDelayStrategy{}))

	require.NoError(t, r.Start(context.Background(), "9", sink))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 3 }, time.Second, 5*time.Millisecond)

	calls := sink.snapshot()
	assert.Equal(t, execution.StatusRunning, *calls[0].patch.Status)
	assert.Equal(t, execution.StatusRunning, *calls[1].patch.Status)
	assert.Equal(t, execution.StatusCompleted, *calls[2].patch.Status)
}

func TestSimulatedRequiresSink(t *testing.T) {
	assert.Error(t, fast().Start(context.Background(), "1", nil))
}

func TestSimulatedDrivesController(t *testing.T) {
	ctx := context.Background()
	store, err := execution.NewStore(ctx, nil)
	require.NoError(t, err)

	catalog, err := script.NewCatalog(script.Definition{
		ID:   "1",
		Name: "User Data Analysis",
		Type: "analysis",
		Sections: []script.Section{{
			ID:     "filters",
			Title:  "Filters",
			Inputs: []script.Input{{Name: "user_status", Label: "User Status", Type: script.TypeText, Required: true}},
		}},
	})
	require.NoError(t, err)

	ctrl := lifecycle.NewController(store, catalog, lifecycle.WithRunner(fast()))
	adminUser := access.User{ID: "1", Name: "Admin User", Role: access.RoleAdmin, Permissions: access.DefaultCapabilities(access.RoleAdmin)}
	regularUser := access.User{ID: "2", Name: "Regular User", Role: access.RoleUser, Permissions: access.DefaultCapabilities(access.RoleUser)}
	sub := form.Submission{ScriptID: "1", ExecutionName: "audit", Inputs: script.Values{"user_status": script.Scalar("active")}}

	statuses := make(map[string][]execution.Status)
	var mu sync.Mutex
	store.SubscribeUpdated(func(_ context.Context, evt execution.RecordUpdated) error {
		mu.Lock()
		statuses[evt.Record.ID] = append(statuses[evt.Record.ID], evt.Record.Status)
		mu.Unlock()
		return nil
	})
	seen := func(id string) []execution.Status {
		mu.Lock()
		defer mu.Unlock()
		return append([]execution.Status(nil), statuses[id]...)
	}

	rec, err := ctrl.Submit(ctx, adminUser, sub)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusAboutToRun, rec.Status)

	require.Eventually(t, func() bool { return len(seen(rec.ID)) == 2 }, 2*time.Second, 5*time.Millisecond)

	done, _ := store.Get(rec.ID)
	assert.Equal(t, DefaultResult, done.Result)
	require.NotNil(t, done.EndTime)

	pending, err := ctrl.Submit(ctx, regularUser, sub)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusPendingApproval, pending.Status)

	_, err = ctrl.Approve(ctx, adminUser, pending.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(seen(pending.ID)) == 3 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []execution.Status{execution.StatusRunning, execution.StatusCompleted}, seen(rec.ID))
	assert.Equal(t, []execution.Status{
		execution.StatusAboutToRun, execution.StatusRunning, execution.StatusCompleted,
	}, seen(pending.ID))
	final, _ := store.Get(pending.ID)
	assert.Equal(t, "Admin User", final.ApprovedBy)
}
