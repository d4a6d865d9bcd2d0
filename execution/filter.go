package execution

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/itchyny/gojq"

	scriptdesk "github.com/goliatone/go-scriptdesk"
	"github.com/goliatone/go-scriptdesk/access"
)

// Predicate selects records.
type Predicate func(Record) bool

func ByStatus(status Status) Predicate {
	return func(r Record) bool { return r.Status == status }
}

// RequestedBy matches records requested by the named user exactly.
func RequestedBy(name string) Predicate {
	return func(r Record) bool { return r.RequestedBy == name }
}

// VisibleTo lets admins see every record and everyone else only their own.
func VisibleTo(u access.User) Predicate {
	if u.SeesAll() {
		return func(Record) bool { return true }
	}
	return RequestedBy(u.Name)
}

// And matches when every non-nil predicate matches.
func And(preds ...Predicate) Predicate {
	return func(r Record) bool {
		for _, p := range preds {
			if p != nil && !p(r) {
				return false
			}
		}
		return true
	}
}

// DashboardFilter mirrors the dashboard search fields. Text fields match
// case-insensitive substrings; blank fields match everything.
type DashboardFilter struct {
	ScriptName    string
	ExecutionName string
	ScriptType    string
	RequestedBy   string
	ApprovedBy    string
	ID            string
	Status        Status
	StartedAfter  *time.Time
	EndedBefore   *time.Time
}

// Predicate compiles the filter for viewer.
func (f DashboardFilter) Predicate(viewer access.User) Predicate {
	return And(VisibleTo(viewer), f.match)
}

func (f DashboardFilter) match(r Record) bool {
	if !containsFold(r.ScriptName, f.ScriptName) ||
		!containsFold(r.ExecutionName, f.ExecutionName) ||
		!containsFold(r.ScriptType, f.ScriptType) ||
		!containsFold(r.RequestedBy, f.RequestedBy) ||
		!strings.Contains(r.ID, f.ID) {
		return false
	}
	if f.ApprovedBy != "" && (r.ApprovedBy == "" || !containsFold(r.ApprovedBy, f.ApprovedBy)) {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.StartedAfter != nil && r.StartTime.Before(*f.StartedAfter) {
		return false
	}
	if f.EndedBefore != nil && (r.EndTime == nil || r.EndTime.After(*f.EndedBefore)) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// JQ compiles expr into a predicate evaluated against the JSON form of a
// record. The first result decides: false, null or an error reject.
func JQ(expr string) (Predicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return func(Record) bool { return true }, nil
	}
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, scriptdesk.CloneError(scriptdesk.ErrValidation, fmt.Sprintf("invalid jq expression %q", expr), err, nil)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, scriptdesk.CloneError(scriptdesk.ErrValidation, fmt.Sprintf("invalid jq expression %q", expr), err, nil)
	}

	return func(r Record) bool {
		doc, err := toDocument(r)
		if err != nil {
			return false
		}
		iter := code.Run(doc)
		v, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		return v != nil && v != false
	}, nil
}

func toDocument(r Record) (any, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
