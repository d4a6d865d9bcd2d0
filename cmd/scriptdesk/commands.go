package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/goliatone/go-scriptdesk/app"
	"github.com/goliatone/go-scriptdesk/execution"
	"github.com/goliatone/go-scriptdesk/form"
	"github.com/goliatone/go-scriptdesk/script"
)

type ScriptsCmd struct {
	List ScriptsListCmd `cmd:"" default:"withargs" help:"List scripts, optionally filtered by name or tag."`
	Show ScriptsShowCmd `cmd:"" help:"Show the sections and inputs of a script."`
}

type ScriptsListCmd struct {
	Search string `help:"Case-insensitive name or tag filter." short:"s"`
}

func (c *ScriptsListCmd) Run(env *Env) error {
	defs := env.State.Catalog().All()
	if strings.TrimSpace(c.Search) != "" {
		defs = env.State.Catalog().Search(c.Search)
	}
	return env.emit(defs, func() error { return renderScripts(env.Out, defs) })
}

type ScriptsShowCmd struct {
	ID string `arg:"" help:"Script id."`
}

func (c *ScriptsShowCmd) Run(env *Env) error {
	def, err := env.State.Catalog().Get(c.ID)
	if err != nil {
		return err
	}
	return env.emit(def, func() error { return renderDefinition(env.Out, def) })
}

// WaitOptions is shared by commands that may start a run.
type WaitOptions struct {
	Wait    bool          `help:"Wait for the execution to settle." default:"true" negatable:""`
	Timeout time.Duration `help:"Upper bound for --wait." default:"30s"`
}

func (w WaitOptions) settle(env *Env, rec execution.Record) error {
	if w.Wait && !rec.Status.Terminal() && rec.Status != execution.StatusPendingApproval {
		ctx, cancel := context.WithTimeout(env.Ctx, w.Timeout)
		defer cancel()
		settled, err := env.State.Wait(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("waiting for %s: %w", rec.ID, err)
		}
		rec = settled
	}
	return env.emit(rec, func() error { return renderRecord(env.Out, rec) })
}

type SubmitCmd struct {
	ScriptID string   `arg:"" name:"script-id" help:"Script to run."`
	Name     string   `help:"Execution name." short:"n" required:""`
	Set      []string `help:"Input value as name=value. Repeat for array items." short:"s" sep:"none"`
	Row      []string `help:"Table row as name=col=value,col=value." short:"r" sep:"none"`

	WaitOptions `embed:""`
}

func (c *SubmitCmd) Run(env *Env) error {
	f, err := env.State.NewForm(c.ScriptID)
	if err != nil {
		return err
	}
	if err := fillForm(f, c.Set, c.Row); err != nil {
		return err
	}
	f.SetExecutionName(c.Name)
	if !f.RecomputeValidity() {
		renderFormErrors(env.Out, f)
		return fmt.Errorf("form for script %s is invalid", c.ScriptID)
	}

	var created *execution.Record
	sub := env.State.Store().SubscribeAdded(func(_ context.Context, evt execution.RecordAdded) error {
		rec := evt.Record
		created = &rec
		return nil
	})
	ok, err := f.Submit(env.Ctx)
	sub.Unsubscribe()
	if err != nil {
		return err
	}
	if !ok {
		renderFormErrors(env.Out, f)
		return fmt.Errorf("form for script %s is invalid", c.ScriptID)
	}
	if created == nil {
		return fmt.Errorf("%s is not allowed to run scripts", env.State.CurrentUser().Name)
	}
	return c.settle(env, *created)
}

func fillForm(f *form.Form, sets, rows []string) error {
	def := f.Definition()
	for _, raw := range sets {
		name, value, ok := strings.Cut(raw, "=")
		if !ok {
			return fmt.Errorf("--set %q: expected name=value", raw)
		}
		in, found := def.Input(name)
		if !found {
			return fmt.Errorf("--set %q: script %s has no input %q", raw, def.ID, name)
		}
		switch in.Kind() {
		case script.FieldArray:
			ed, err := f.Array(name)
			if err != nil {
				return err
			}
			ed.SetDraft(value)
			ed.Commit()
		case script.FieldTable:
			return fmt.Errorf("--set %q: %s is a table, use --row", raw, name)
		default:
			if err := f.Set(name, value); err != nil {
				return err
			}
		}
	}

	for _, raw := range rows {
		name, cells, ok := strings.Cut(raw, "=")
		if !ok {
			return fmt.Errorf("--row %q: expected name=col=value,...", raw)
		}
		idx, err := f.AddRow(name)
		if err != nil {
			return err
		}
		for _, cell := range strings.Split(cells, ",") {
			if strings.TrimSpace(cell) == "" {
				continue
			}
			key, value, ok := strings.Cut(cell, "=")
			if !ok {
				return fmt.Errorf("--row %q: cell %q is not col=value", raw, cell)
			}
			if err := f.SetCell(name, idx, strings.TrimSpace(key), value); err != nil {
				return err
			}
		}
	}
	return nil
}

type ExecutionsCmd struct {
	List   ExecutionsListCmd   `cmd:"" default:"withargs" help:"List visible executions."`
	Show   ExecutionsShowCmd   `cmd:"" help:"Show one execution."`
	Export ExecutionsExportCmd `cmd:"" help:"Write the text export of a completed execution."`
}

type ExecutionsListCmd struct {
	Script      string `help:"Script name contains."`
	Name        string `help:"Execution name contains."`
	Type        string `help:"Script type contains."`
	RequestedBy string `help:"Requester contains."`
	ApprovedBy  string `help:"Approver contains."`
	ID          string `help:"Execution id contains." name:"id"`
	Status      string `help:"Exact status, e.g. pending_approval or \"about to run\"."`
	Since       string `help:"Started at or after (RFC3339 or YYYY-MM-DD)."`
	Until       string `help:"Ended at or before (RFC3339 or YYYY-MM-DD)."`
	Where       string `help:"jq expression evaluated against each record." short:"w"`
}

func (c *ExecutionsListCmd) Run(env *Env) error {
	filter := execution.DashboardFilter{
		ScriptName:    c.Script,
		ExecutionName: c.Name,
		ScriptType:    c.Type,
		RequestedBy:   c.RequestedBy,
		ApprovedBy:    c.ApprovedBy,
		ID:            c.ID,
		Status:        execution.Status(c.Status),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return fmt.Errorf("--status: unknown status %q", c.Status)
	}
	var err error
	if filter.StartedAfter, err = parseBound(c.Since); err != nil {
		return fmt.Errorf("--since: %w", err)
	}
	if filter.EndedBefore, err = parseBound(c.Until); err != nil {
		return fmt.Errorf("--until: %w", err)
	}

	var extra []execution.Predicate
	if strings.TrimSpace(c.Where) != "" {
		pred, err := execution.JQ(c.Where)
		if err != nil {
			return err
		}
		extra = append(extra, pred)
	}

	recs := env.State.Dashboard(filter, extra...)
	return env.emit(recs, func() error { return renderRecords(env.Out, recs) })
}

func parseBound(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%q is neither RFC3339 nor YYYY-MM-DD", raw)
}

type ExecutionsShowCmd struct {
	ID string `arg:"" help:"Execution id."`
}

func (c *ExecutionsShowCmd) Run(env *Env) error {
	rec, err := env.State.Execution(c.ID)
	if err != nil {
		return err
	}
	return env.emit(rec, func() error { return renderRecord(env.Out, rec) })
}

type ExecutionsExportCmd struct {
	ID     string `arg:"" help:"Execution id."`
	Stdout bool   `help:"Print the export instead of writing a file."`
}

func (c *ExecutionsExportCmd) Run(env *Env) error {
	if c.Stdout {
		rec, err := env.State.Execution(c.ID)
		if err != nil {
			return err
		}
		text, err := execution.ExportText(rec)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(env.Out, text)
		return err
	}
	path, err := env.State.Export(env.Ctx, c.ID)
	if err != nil {
		return err
	}
	return env.emit(map[string]string{"path": path}, func() error {
		_, err := fmt.Fprintln(env.Out, path)
		return err
	})
}

type ApproveCmd struct {
	ID string `arg:"" help:"Execution id."`

	WaitOptions `embed:""`
}

func (c *ApproveCmd) Run(env *Env) error {
	rec, err := env.State.Approve(env.Ctx, c.ID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%s is not allowed to approve requests", env.State.CurrentUser().Name)
	}
	return c.settle(env, *rec)
}

type RejectCmd struct {
	ID     string `arg:"" help:"Execution id."`
	Reason string `help:"Why the request is rejected." required:""`
}

func (c *RejectCmd) Run(env *Env) error {
	rec, err := env.State.Reject(env.Ctx, c.ID, c.Reason)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%s is not allowed to reject requests", env.State.CurrentUser().Name)
	}
	return env.emit(*rec, func() error { return renderRecord(env.Out, *rec) })
}

type RerunCmd struct {
	ID string `arg:"" help:"Completed execution id."`

	WaitOptions `embed:""`
}

func (c *RerunCmd) Run(env *Env) error {
	rec, err := env.State.Rerun(env.Ctx, c.ID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%s is not allowed to rerun scripts", env.State.CurrentUser().Name)
	}
	return c.settle(env, *rec)
}

type UserCmd struct {
	Show   UserShowCmd   `cmd:"" default:"1" help:"Show the session user."`
	List   UserListCmd   `cmd:"" help:"List known users."`
	Switch UserSwitchCmd `cmd:"" help:"Make another user the session user."`
}

type UserShowCmd struct{}

func (c *UserShowCmd) Run(env *Env) error {
	u := env.State.CurrentUser()
	return env.emit(u, func() error { return renderUsers(env.Out, u.ID, u) })
}

type UserListCmd struct{}

func (c *UserListCmd) Run(env *Env) error {
	users := env.State.Roster().Users()
	return env.emit(users, func() error { return renderUsers(env.Out, env.State.CurrentUser().ID, users...) })
}

type UserSwitchCmd struct {
	ID string `arg:"" help:"User id."`
}

func (c *UserSwitchCmd) Run(env *Env) error {
	u, err := env.State.SwitchUser(env.Ctx, c.ID)
	if err != nil {
		return err
	}
	return env.emit(u, func() error { return renderUsers(env.Out, u.ID, u) })
}

type WatchCmd struct {
	For     time.Duration `help:"Stop after this long. Zero waits for an interrupt."`
	Metrics bool          `help:"Print metrics in the Prometheus text format on exit."`
}

func (c *WatchCmd) Run(env *Env) error {
	ctx, stop := signal.NotifyContext(env.Ctx, os.Interrupt)
	defer stop()
	if c.For > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.For)
		defer cancel()
	}

	lines := make(chan string, 64)
	updates := env.State.Store().SubscribeUpdated(func(_ context.Context, evt execution.RecordUpdated) error {
		emit(lines, fmt.Sprintf("%s %s: %s -> %s", evt.Record.ID, evt.Record.ExecutionName, evt.Previous.Status, evt.Record.Status))
		return nil
	})
	defer updates.Unsubscribe()
	reminders := env.State.SubscribeReminders(func(_ context.Context, r app.PendingReminder) error {
		emit(lines, fmt.Sprintf("%d pending approval: %s", r.Count, strings.Join(r.IDs, ", ")))
		return nil
	})
	defer reminders.Unsubscribe()

	for done := false; !done; {
		select {
		case line := <-lines:
			fmt.Fprintln(env.Out, line)
		case <-ctx.Done():
			done = true
		}
	}

	if !c.Metrics {
		return nil
	}
	families, err := env.State.Metrics().Registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(env.Out, mf); err != nil {
			return err
		}
	}
	return nil
}

// emit drops the line when the watcher has fallen behind.
func emit(lines chan<- string, line string) {
	select {
	case lines <- line:
	default:
	}
}
