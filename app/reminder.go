package app

import (
	"context"
	"time"

	scriptdesk "github.com/goliatone/go-scriptdesk"
	"github.com/goliatone/go-scriptdesk/cron"
	"github.com/goliatone/go-scriptdesk/dispatcher"
	"github.com/goliatone/go-scriptdesk/execution"
)

// PendingReminder reports the executions waiting for an approver.
type PendingReminder struct {
	Count int       `json:"count"`
	IDs   []string  `json:"ids"`
	At    time.Time `json:"at"`
}

func (PendingReminder) Type() string { return "app::pending_reminder" }

func (r PendingReminder) Validate() error {
	if r.Count != len(r.IDs) {
		return scriptdesk.CloneError(scriptdesk.ErrValidation, "reminder count does not match ids", nil, map[string]any{
			"count": r.Count,
			"ids":   len(r.IDs),
		})
	}
	return nil
}

// Pending snapshots the executions in pending_approval.
func (s *State) Pending() PendingReminder {
	pending := s.store.Filter(execution.ByStatus(execution.StatusPendingApproval))
	ids := make([]string, 0, len(pending))
	for _, rec := range pending {
		ids = append(ids, rec.ID)
	}
	return PendingReminder{Count: len(ids), IDs: ids, At: time.Now().UTC()}
}

// SubscribeReminders registers fn for every reminder tick.
func (s *State) SubscribeReminders(fn func(ctx context.Context, r PendingReminder) error) dispatcher.Subscription {
	return dispatcher.SubscribeFunc(s.events, fn)
}

// Remind publishes one reminder. Nothing is published when no execution
// is pending.
func (s *State) Remind(ctx context.Context, r PendingReminder) error {
	if r.Count == 0 {
		return nil
	}
	s.logger.WithContext(ctx).Info("%d execution(s) waiting for approval", r.Count)
	return dispatcher.Dispatch(ctx, s.events, r)
}

func (s *State) scheduleReminder() (cron.Handle, error) {
	return cron.ScheduleCommand[PendingReminder](s.scheduler,
		cron.JobOptions{Name: "pending-approval-reminder", Expression: s.cfg.Reminder.Expression, Timeout: 30 * time.Second},
		scriptdesk.CommandFunc[PendingReminder](s.Remind),
		s.Pending,
	)
}
