package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	scriptdesk "github.com/goliatone/go-scriptdesk"
	"github.com/goliatone/go-scriptdesk/access"
	"github.com/goliatone/go-scriptdesk/execution"
	"github.com/goliatone/go-scriptdesk/form"
	"github.com/goliatone/go-scriptdesk/logging"
	"github.com/goliatone/go-scriptdesk/script"
)

const (
	UnknownScriptName = "Unknown Script"
	UnknownScriptType = "Unknown Type"

	DefaultRerunSuffix = " (rerun)"
)

// ScriptLookup resolves script definitions by id.
type ScriptLookup interface {
	Get(id string) (script.Definition, error)
}

// Controller owns every execution state change. Capability checks run
// before any mutation and denied actions are ignored.
type Controller struct {
	store       *execution.Store
	scripts     ScriptLookup
	runner      Runner
	ids         *execution.IDGenerator
	metrics     MetricsRecorder
	logger      logging.Logger
	now         func() time.Time
	rerunSuffix string
}

type Option func(*Controller)

func WithRunner(r Runner) Option {
	return func(c *Controller) {
		c.runner = r
	}
}

func WithMetrics(m MetricsRecorder) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

func WithIDGenerator(ids *execution.IDGenerator) Option {
	return func(c *Controller) {
		if ids != nil {
			c.ids = ids
		}
	}
}

func WithRerunSuffix(suffix string) Option {
	return func(c *Controller) {
		if suffix != "" {
			c.rerunSuffix = suffix
		}
	}
}

// NewController wires a controller over store. The id generator is seeded
// from the ids already in the store.
func NewController(store *execution.Store, scripts ScriptLookup, opts ...Option) *Controller {
	c := &Controller{
		store:       store,
		scripts:     scripts,
		metrics:     nopRecorder{},
		now:         time.Now,
		rerunSuffix: DefaultRerunSuffix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = logging.Normalize(c.logger)
	if c.ids == nil {
		c.ids = execution.NewIDGeneratorWithClock(c.now)
	}
	c.ids.Seed(store.IDs()...)
	return c
}

func (c *Controller) Store() *execution.Store { return c.store }

// Submit creates an execution for sub on behalf of user. Users that can
// both run and approve skip the approval queue and their execution is
// handed to the runner immediately.
func (c *Controller) Submit(ctx context.Context, user access.User, sub form.Submission) (*execution.Record, error) {
	log := c.opLogger(ctx, "submit", map[string]any{"script_id": sub.ScriptID, "user": user.Name})
	if !user.Can(access.RunScripts) {
		return c.deny(log, "submit", access.RunScripts)
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	name, kind := UnknownScriptName, UnknownScriptType
	if c.scripts != nil {
		if def, err := c.scripts.Get(sub.ScriptID); err == nil {
			name, kind = def.Name, def.Type
		} else {
			log.Warn("script %s not in catalog, recording as unknown", sub.ScriptID)
		}
	}

	autoApprove := user.AutoApproves()
	rec := execution.Record{
		ID:            c.ids.Next(),
		ScriptID:      sub.ScriptID,
		ScriptName:    name,
		Status:        initialStatus(autoApprove),
		StartTime:     c.now(),
		RequestedBy:   user.Name,
		ScriptType:    kind,
		ExecutionName: strings.TrimSpace(sub.ExecutionName),
		Inputs:        sub.Inputs.Clone(),
	}
	if autoApprove {
		rec.ApprovedBy = user.Name
	}
	return c.create(ctx, log, rec)
}

// Submitter adapts the controller to the form submit hook. current is
// consulted on every submission.
func (c *Controller) Submitter(current func() access.User) scriptdesk.Commander[form.Submission] {
	return scriptdesk.CommandFunc[form.Submission](func(ctx context.Context, sub form.Submission) error {
		_, err := c.Submit(ctx, current(), sub)
		return err
	})
}

// Approve moves a pending execution to about to run and starts it.
func (c *Controller) Approve(ctx context.Context, user access.User, id string) (*execution.Record, error) {
	log := c.opLogger(ctx, "approve", map[string]any{"execution_id": id, "user": user.Name})
	if !user.Can(access.ApproveRequests) {
		return c.deny(log, "approve", access.ApproveRequests)
	}

	rec, err := c.apply(ctx, log, id, EventApprove, func(execution.Record) execution.Patch {
		return execution.StatusPatch(execution.StatusAboutToRun).WithApprovedBy(user.Name)
	})
	if err != nil {
		return nil, err
	}
	c.start(ctx, log, rec.ID)
	return c.current(rec), nil
}

// Reject closes a pending execution. reason must not be blank.
func (c *Controller) Reject(ctx context.Context, user access.User, id, reason string) (*execution.Record, error) {
	log := c.opLogger(ctx, "reject", map[string]any{"execution_id": id, "user": user.Name})
	if !user.Can(access.ApproveRequests) {
		return c.deny(log, "reject", access.ApproveRequests)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, scriptdesk.CloneError(scriptdesk.ErrReasonRequired, "", nil, map[string]any{"execution_id": id})
	}

	rec, err := c.apply(ctx, log, id, EventReject, func(execution.Record) execution.Patch {
		return execution.StatusPatch(execution.StatusRejected).
			WithRejection(user.Name, reason).
			WithEndTime(c.now())
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Rerun creates a new execution from a completed one under user's name.
// The original record is left untouched.
func (c *Controller) Rerun(ctx context.Context, user access.User, id string) (*execution.Record, error) {
	log := c.opLogger(ctx, "rerun", map[string]any{"execution_id": id, "user": user.Name})
	if !user.Can(access.RerunScripts) {
		return c.deny(log, "rerun", access.RerunScripts)
	}

	orig, err := c.store.MustGet(id)
	if err != nil {
		return nil, err
	}
	if orig.Status != execution.StatusCompleted {
		return nil, invalidTransition("rerun", orig)
	}

	autoApprove := user.AutoApproves()
	rec := execution.Record{
		ID:            c.ids.Next(),
		ScriptID:      orig.ScriptID,
		ScriptName:    orig.ScriptName,
		Status:        initialStatus(autoApprove),
		StartTime:     c.now(),
		RequestedBy:   user.Name,
		ScriptType:    orig.ScriptType,
		ExecutionName: orig.ExecutionName + c.rerunSuffix,
		Inputs:        orig.Inputs.Clone(),
	}
	if autoApprove {
		rec.ApprovedBy = user.Name
	}
	log.Info("rerunning %s as %s", orig.ID, rec.ID)
	return c.create(ctx, log, rec)
}

// OnStatusChange is the runner's only way to move an execution. The patch
// must carry running, completed or failed and is checked against the
// lifecycle table, so terminal executions never change. Only the status,
// result and end time are taken from it; approval fields belong to Approve
// and Reject.
func (c *Controller) OnStatusChange(ctx context.Context, id string, patch execution.Patch) error {
	log := c.opLogger(ctx, "status_change", map[string]any{"execution_id": id})
	patch = execution.Patch{Status: patch.Status, Result: patch.Result, EndTime: patch.EndTime}
	if patch.Status == nil {
		return scriptdesk.CloneError(scriptdesk.ErrValidation, "status change requires a status", nil, map[string]any{
			"execution_id": id,
		})
	}
	event, ok := runnerEvent(*patch.Status)
	if !ok {
		return scriptdesk.CloneError(scriptdesk.ErrInvalidTransition, fmt.Sprintf("runner cannot set status %q", *patch.Status), nil, map[string]any{
			"execution_id": id,
			"to":           string(*patch.Status),
		})
	}
	if event != EventStart && patch.EndTime == nil {
		end := c.now()
		patch.EndTime = &end
	}

	rec, err := c.apply(ctx, log, id, event, func(execution.Record) execution.Patch { return patch })
	if err != nil {
		return err
	}
	if rec.Status.Terminal() && rec.EndTime != nil {
		c.metrics.RecordRunDuration(string(rec.Status), rec.EndTime.Sub(rec.StartTime))
	}
	return nil
}

func (c *Controller) create(ctx context.Context, log logging.Logger, rec execution.Record) (*execution.Record, error) {
	added, err := c.store.Add(ctx, rec)
	if err != nil {
		log.Error("could not record execution: %v", err)
		return nil, err
	}
	c.metrics.RecordSubmission(string(added.Status))
	log.Info("execution %s created with status %s", added.ID, added.Status)

	if added.Status == execution.StatusAboutToRun {
		c.start(ctx, log, added.ID)
		return c.current(added), nil
	}
	return &added, nil
}

// apply runs event against the stored record atomically.
func (c *Controller) apply(
	ctx context.Context,
	log logging.Logger,
	id string,
	event Event,
	patchFor func(execution.Record) execution.Patch,
) (execution.Record, error) {
	var tr Transition
	var from execution.Status
	rec, found, err := c.store.UpdateFunc(ctx, id, func(cur execution.Record) (execution.Patch, error) {
		var ok bool
		from = cur.Status
		if tr, ok = Lookup(event, cur.Status); !ok {
			return execution.Patch{}, invalidTransition(string(event), cur)
		}
		p := patchFor(cur)
		p.Status = &tr.To
		return p, nil
	})
	if !found {
		return execution.Record{}, scriptdesk.CloneError(scriptdesk.ErrExecutionNotFound, "", nil, map[string]any{
			"execution_id": id,
		})
	}
	if err != nil {
		log.Warn("%s rejected for %s: %v", event, id, err)
		return execution.Record{}, err
	}

	c.metrics.RecordTransition(string(event), string(from), string(tr.To))
	log.Info("execution %s: %s -> %s", id, from, tr.To)
	return rec, nil
}

// start hands an about to run execution to the runner. A runner that
// refuses the work fails the execution.
func (c *Controller) start(ctx context.Context, log logging.Logger, id string) {
	if c.runner == nil {
		log.Debug("no runner configured, %s stays about to run", id)
		return
	}
	if err := c.runner.Start(context.WithoutCancel(ctx), id, c); err != nil {
		log.Error("runner refused %s: %v", id, err)
		failed := execution.StatusPatch(execution.StatusFailed).WithResult(err.Error())
		if ferr := c.OnStatusChange(ctx, id, failed); ferr != nil {
			log.Error("could not mark %s failed: %v", id, ferr)
		}
	}
}

// current re-reads rec, since a synchronous runner may already have moved it.
func (c *Controller) current(rec execution.Record) *execution.Record {
	if latest, ok := c.store.Get(rec.ID); ok {
		return &latest
	}
	return &rec
}

func (c *Controller) deny(log logging.Logger, action string, missing access.Capability) (*execution.Record, error) {
	c.metrics.RecordDenied(action)
	log.Warn("%s ignored: missing capability %s", action, missing)
	return nil, nil
}

func (c *Controller) opLogger(ctx context.Context, op string, fields map[string]any) logging.Logger {
	f := map[string]any{
		"op":    op,
		"op_id": uuid.NewString(),
	}
	for k, v := range fields {
		f[k] = v
	}
	return logging.WithFields(c.logger.WithContext(ctx), f)
}

func invalidTransition(action string, rec execution.Record) error {
	return scriptdesk.CloneError(scriptdesk.ErrInvalidTransition,
		fmt.Sprintf("cannot %s execution in status %q", action, rec.Status), nil,
		map[string]any{
			"execution_id": rec.ID,
			"from":         string(rec.Status),
			"action":       action,
		})
}
