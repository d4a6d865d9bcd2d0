package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	scriptdesk "github.com/goliatone/go-scriptdesk"
	"github.com/goliatone/go-scriptdesk/logging"
)

func count(c *atomic.Int32) Job {
	return func(context.Context) error {
		c.Add(1)
		return nil
	}
}

func TestScheduleAfterCompletesAndReportsStatus(t *testing.T) {
	scheduler := NewScheduler()
	var n atomic.Int32

	handle, err := scheduler.ScheduleAfter(50*time.Millisecond, JobOptions{Name: "once"}, count(&n))
	if err != nil {
		t.Fatalf("schedule after: %v", err)
	}

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("expected handle completion")
	}

	if got := n.Load(); got != 1 {
		t.Fatalf("expected one execution, got %d", got)
	}
	if status := handle.Status(); status != ScheduleStatusCompleted {
		t.Fatalf("expected completed status, got %s", status)
	}
	if handle.Name() != "once" || handle.Runs() != 1 {
		t.Fatalf("expected handle once with one run, got %q with %d", handle.Name(), handle.Runs())
	}
	if pending := scheduler.Pending(); pending != 0 {
		t.Fatalf("expected completed handle to be released, %d pending", pending)
	}
}

func TestScheduleAfterNestedRunsInOrder(t *testing.T) {
	scheduler := NewScheduler()
	order := make(chan string, 2)

	_, err := scheduler.ScheduleAfter(10*time.Millisecond, JobOptions{Name: "first"}, func(context.Context) error {
		order <- "first"
		_, err := scheduler.ScheduleAfter(10*time.Millisecond, JobOptions{Name: "second"}, func(context.Context) error {
			order <- "second"
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("schedule after: %v", err)
	}

	for _, want := range []string{"first", "second"} {
		select {
		case got := <-order:
			if got != want {
				t.Fatalf("expected %s, got %s", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestScheduleAtCancelPreventsExecution(t *testing.T) {
	scheduler := NewScheduler()
	var n atomic.Int32

	handle, err := scheduler.ScheduleAt(time.Now().Add(250*time.Millisecond), JobOptions{}, count(&n))
	if err != nil {
		t.Fatalf("schedule at: %v", err)
	}

	handle.Cancel()

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("expected canceled handle to close done channel")
	}

	time.Sleep(300 * time.Millisecond)
	if got := n.Load(); got != 0 {
		t.Fatalf("expected zero executions after cancel, got %d", got)
	}
	if status := handle.Status(); status != ScheduleStatusCanceled {
		t.Fatalf("expected canceled status, got %s", status)
	}
}

func TestScheduleAfterReportsFailures(t *testing.T) {
	var reported atomic.Value
	scheduler := NewScheduler(WithErrorHandler(func(err error) { reported.Store(err) }))

	boom := errors.New("boom")
	handle, err := scheduler.ScheduleAfter(0, JobOptions{}, func(context.Context) error { return boom })
	if err != nil {
		t.Fatalf("schedule after: %v", err)
	}
	<-handle.Done()

	if status := handle.Status(); status != ScheduleStatusFailed {
		t.Fatalf("expected failed status, got %s", status)
	}
	if !errors.Is(handle.Err(), boom) {
		t.Fatalf("expected handle error to be boom, got %v", handle.Err())
	}
	if got, _ := reported.Load().(error); !errors.Is(got, boom) {
		t.Fatalf("expected error handler to receive boom, got %v", got)
	}
}

func TestScheduleAfterRecoversPanics(t *testing.T) {
	scheduler := NewScheduler(WithLogger(logging.Nop{}), WithErrorHandler(func(error) {}))

	handle, err := scheduler.ScheduleAfter(0, JobOptions{Name: "explodes"}, func(context.Context) error {
		panic("kaboom")
	})
	if err != nil {
		t.Fatalf("schedule after: %v", err)
	}
	<-handle.Done()

	if status := handle.Status(); status != ScheduleStatusFailed {
		t.Fatalf("expected failed status, got %s", status)
	}
	if handle.Err() == nil {
		t.Fatal("expected panic to surface as an error")
	}
}

func TestJobTimeoutBoundsContext(t *testing.T) {
	scheduler := NewScheduler(WithErrorHandler(func(error) {}))

	handle, err := scheduler.ScheduleAfter(0, JobOptions{Timeout: 20 * time.Millisecond}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("schedule after: %v", err)
	}

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("expected timeout to end the job")
	}
	if !errors.Is(handle.Err(), context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", handle.Err())
	}
}

func TestScheduleCronCancelableHandle(t *testing.T) {
	scheduler := NewScheduler()
	var n atomic.Int32

	handle, err := scheduler.ScheduleCron(JobOptions{Expression: "@every 1s"}, count(&n))
	if err != nil {
		t.Fatalf("schedule cron: %v", err)
	}

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("scheduler start: %v", err)
	}
	defer scheduler.Stop(context.Background())

	deadline := time.After(2500 * time.Millisecond)
	for n.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected at least one cron run")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	handle.Cancel()
	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("expected cancel to close handle done channel")
	}

	if status := handle.Status(); status != ScheduleStatusCanceled {
		t.Fatalf("expected canceled status, got %s", status)
	}
}

func TestScheduleCronKeepsRunningAfterFailure(t *testing.T) {
	var failures atomic.Int32
	scheduler := NewScheduler(WithErrorHandler(func(error) { failures.Add(1) }))

	boom := errors.New("boom")
	handle, err := scheduler.ScheduleCron(JobOptions{Name: "flaky", Expression: "@every 1s"}, func(context.Context) error {
		return boom
	})
	if err != nil {
		t.Fatalf("schedule cron: %v", err)
	}
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("scheduler start: %v", err)
	}
	defer scheduler.Stop(context.Background())

	deadline := time.After(3500 * time.Millisecond)
	for handle.Runs() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected two runs, got %d", handle.Runs())
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	if status := handle.Status(); isTerminalStatus(status) {
		t.Fatalf("expected failing cron job to stay scheduled, got %s", status)
	}
	if !errors.Is(handle.Err(), boom) {
		t.Fatalf("expected last error boom, got %v", handle.Err())
	}
	if failures.Load() < 2 {
		t.Fatalf("expected every failure reported, got %d", failures.Load())
	}
}

func TestSchedulerStopMarksHandleStopped(t *testing.T) {
	scheduler := NewScheduler()
	handle, err := scheduler.ScheduleCron(JobOptions{Expression: "@every 5s"}, count(new(atomic.Int32)))
	if err != nil {
		t.Fatalf("schedule cron: %v", err)
	}

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("scheduler start: %v", err)
	}

	if err := scheduler.Stop(context.Background()); err != nil {
		t.Fatalf("scheduler stop: %v", err)
	}

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("expected handle done on stop")
	}

	if status := handle.Status(); status != ScheduleStatusStopped {
		t.Fatalf("expected stopped status, got %s", status)
	}
}

type tick struct{ n int32 }

func (tick) Type() string    { return "cron::tick" }
func (tick) Validate() error { return nil }

func TestScheduleCommand(t *testing.T) {
	scheduler := NewScheduler()
	var seen atomic.Int32
	var built atomic.Int32

	handle, err := ScheduleCommand[tick](scheduler, JobOptions{Name: "tick", Expression: "@every 1s"},
		scriptdesk.CommandFunc[tick](func(_ context.Context, msg tick) error {
			seen.Store(msg.n)
			return nil
		}),
		func() tick { return tick{n: built.Add(1)} },
	)
	if err != nil {
		t.Fatalf("schedule command: %v", err)
	}
	if handle.ID() == 0 {
		t.Fatal("expected non-zero handle id")
	}

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("scheduler start: %v", err)
	}
	defer scheduler.Stop(context.Background())

	deadline := time.After(2500 * time.Millisecond)
	for seen.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected command to run")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}
}

func TestScheduleCronValidation(t *testing.T) {
	scheduler := NewScheduler()

	if _, err := scheduler.ScheduleCron(JobOptions{}, count(new(atomic.Int32))); err == nil {
		t.Fatal("expected empty expression error")
	}
	if _, err := scheduler.ScheduleCron(JobOptions{Expression: "@every 1s"}, nil); err == nil {
		t.Fatal("expected nil job error")
	}
	if _, err := scheduler.ScheduleCron(JobOptions{Expression: "not a spec"}, count(new(atomic.Int32))); err == nil {
		t.Fatal("expected invalid expression error")
	}
	if _, err := ScheduleCommand[tick](nil, JobOptions{Expression: "@every 1s"}, nil, nil); err == nil {
		t.Fatal("expected nil scheduler error")
	}
}

func TestParseSpecDialects(t *testing.T) {
	if err := ParseSpec(StandardParser, "0 9 * * 1-5"); err != nil {
		t.Fatalf("standard spec: %v", err)
	}
	if err := ParseSpec(StandardParser, "@every 1h"); err != nil {
		t.Fatalf("descriptor spec: %v", err)
	}
	if err := ParseSpec(StandardParser, "*/30 * * * * *"); err == nil {
		t.Fatal("expected six fields to be rejected by the standard parser")
	}
	if err := ParseSpec(SecondsParser, "*/30 * * * * *"); err != nil {
		t.Fatalf("seconds spec: %v", err)
	}
	if err := ParseSpec(SecondsParser, ""); err == nil {
		t.Fatal("expected empty spec to be rejected")
	}
}

func TestScheduleCronUsesConfiguredParser(t *testing.T) {
	scheduler := NewScheduler(WithLogger(logging.Nop{}), WithParser(SecondsParser), WithLocation(time.UTC))
	if _, err := scheduler.ScheduleCron(JobOptions{Expression: "0 9 * * 1-5"}, count(new(atomic.Int32))); err == nil {
		t.Fatal("expected five field spec to be rejected by the seconds parser")
	}

	handle, err := scheduler.ScheduleCron(JobOptions{Name: "tick", Expression: "* * * * * *"}, count(new(atomic.Int32)))
	if err != nil {
		t.Fatalf("schedule cron: %v", err)
	}
	handle.Cancel()
	if status := handle.Status(); status != ScheduleStatusCanceled {
		t.Fatalf("expected canceled status, got %s", status)
	}
}
