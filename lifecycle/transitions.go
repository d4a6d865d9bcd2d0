package lifecycle

import (
	"slices"

	"github.com/goliatone/go-scriptdesk/execution"
)

// Event names a lifecycle transition.
type Event string

const (
	EventApprove  Event = "approve"
	EventReject   Event = "reject"
	EventStart    Event = "start"
	EventComplete Event = "complete"
	EventFail     Event = "fail"
)

// Transition is one row of the lifecycle table.
type Transition struct {
	Event Event
	From  []execution.Status
	To    execution.Status
}

var transitions = []Transition{
	{Event: EventApprove, From: []execution.Status{execution.StatusPendingApproval}, To: execution.StatusAboutToRun},
	{Event: EventReject, From: []execution.Status{execution.StatusPendingApproval}, To: execution.StatusRejected},
	{Event: EventStart, From: []execution.Status{execution.StatusAboutToRun}, To: execution.StatusRunning},
	{Event: EventComplete, From: []execution.Status{execution.StatusRunning}, To: execution.StatusCompleted},
	{Event: EventFail, From: []execution.Status{execution.StatusAboutToRun, execution.StatusRunning}, To: execution.StatusFailed},
}

// Transitions returns a copy of the lifecycle table.
func Transitions() []Transition {
	out := make([]Transition, 0, len(transitions))
	for _, tr := range transitions {
		tr.From = slices.Clone(tr.From)
		out = append(out, tr)
	}
	return out
}

// Lookup finds the transition for event out of from.
func Lookup(event Event, from execution.Status) (Transition, bool) {
	for _, tr := range transitions {
		if tr.Event == event && slices.Contains(tr.From, from) {
			return tr, true
		}
	}
	return Transition{}, false
}

// runnerEvent maps the status a runner reports to the event it stands for.
// Runners may only start, complete or fail an execution.
func runnerEvent(to execution.Status) (Event, bool) {
	switch to {
	case execution.StatusRunning:
		return EventStart, true
	case execution.StatusCompleted:
		return EventComplete, true
	case execution.StatusFailed:
		return EventFail, true
	default:
		return "", false
	}
}

// initialStatus seeds a fresh submission or rerun.
func initialStatus(autoApprove bool) execution.Status {
	if autoApprove {
		return execution.StatusAboutToRun
	}
	return execution.StatusPendingApproval
}
