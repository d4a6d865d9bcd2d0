package execution

import (
	"time"

	"github.com/goliatone/go-scriptdesk/script"
)

// Status is the lifecycle state of an execution.
type Status string

const (
	StatusPendingApproval Status = "pending_approval"
	StatusAboutToRun      Status = "about to run"
	StatusRunning         Status = "running"
	StatusCompleted       Status = "completed"
	StatusRejected        Status = "rejected"
	StatusFailed          Status = "failed"
)

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusPendingApproval,
		StatusAboutToRun,
		StatusRunning,
		StatusCompleted,
		StatusRejected,
		StatusFailed,
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusPendingApproval, StatusAboutToRun, StatusRunning,
		StatusCompleted, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusFailed
}

func (s Status) String() string { return string(s) }

// Record is one submitted execution. Inputs are captured at creation and
// never change afterwards.
type Record struct {
	ID              string        `json:"id"`
	ScriptID        string        `json:"scriptId"`
	ScriptName      string        `json:"scriptName"`
	Status          Status        `json:"status"`
	StartTime       time.Time     `json:"startTime"`
	EndTime         *time.Time    `json:"endTime,omitempty"`
	RequestedBy     string        `json:"requestedBy"`
	ApprovedBy      string        `json:"approvedBy,omitempty"`
	RejectedBy      string        `json:"rejectedBy,omitempty"`
	RejectionReason string        `json:"rejectionReason,omitempty"`
	ScriptType      string        `json:"scriptType"`
	ExecutionName   string        `json:"executionName"`
	Result          string        `json:"result,omitempty"`
	Inputs          script.Values `json:"inputs,omitempty"`
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	cp := r
	if r.EndTime != nil {
		end := *r.EndTime
		cp.EndTime = &end
	}
	cp.Inputs = r.Inputs.Clone()
	return cp
}

// Patch holds the fields a lifecycle transition may change. Nil fields are
// left untouched.
type Patch struct {
	Status          *Status
	EndTime         *time.Time
	Result          *string
	ApprovedBy      *string
	RejectedBy      *string
	RejectionReason *string
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.Status == nil && p.EndTime == nil && p.Result == nil &&
		p.ApprovedBy == nil && p.RejectedBy == nil && p.RejectionReason == nil
}

// Apply merges p into r and returns the result; r is not modified.
func (p Patch) Apply(r Record) Record {
	out := r.Clone()
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.EndTime != nil {
		end := *p.EndTime
		out.EndTime = &end
	}
	if p.Result != nil {
		out.Result = *p.Result
	}
	if p.ApprovedBy != nil {
		out.ApprovedBy = *p.ApprovedBy
	}
	if p.RejectedBy != nil {
		out.RejectedBy = *p.RejectedBy
	}
	if p.RejectionReason != nil {
		out.RejectionReason = *p.RejectionReason
	}
	return out
}

// Fields lists the names of the fields p sets, for logging.
func (p Patch) Fields() []string {
	var out []string
	if p.Status != nil {
		out = append(out, "status")
	}
	if p.EndTime != nil {
		out = append(out, "endTime")
	}
	if p.Result != nil {
		out = append(out, "result")
	}
	if p.ApprovedBy != nil {
		out = append(out, "approvedBy")
	}
	if p.RejectedBy != nil {
		out = append(out, "rejectedBy")
	}
	if p.RejectionReason != nil {
		out = append(out, "rejectionReason")
	}
	return out
}

// StatusPatch starts a patch that moves a record to s.
func StatusPatch(s Status) Patch {
	return Patch{Status: &s}
}

func (p Patch) WithEndTime(t time.Time) Patch {
	p.EndTime = &t
	return p
}

func (p Patch) WithResult(result string) Patch {
	p.Result = &result
	return p
}

func (p Patch) WithApprovedBy(name string) Patch {
	p.ApprovedBy = &name
	return p
}

func (p Patch) WithRejection(by, reason string) Patch {
	p.RejectedBy = &by
	p.RejectionReason = &reason
	return p
}
