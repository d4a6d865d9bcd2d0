package app

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	scriptdesk "github.com/goliatone/go-scriptdesk"
	"github.com/goliatone/go-scriptdesk/access"
	"github.com/goliatone/go-scriptdesk/config"
	"github.com/goliatone/go-scriptdesk/cron"
	"github.com/goliatone/go-scriptdesk/data"
	"github.com/goliatone/go-scriptdesk/dispatcher"
	"github.com/goliatone/go-scriptdesk/execution"
	"github.com/goliatone/go-scriptdesk/form"
	"github.com/goliatone/go-scriptdesk/lifecycle"
	"github.com/goliatone/go-scriptdesk/logging"
	"github.com/goliatone/go-scriptdesk/runner"
	"github.com/goliatone/go-scriptdesk/script"
	"github.com/goliatone/go-scriptdesk/storage"
)

// State is the application state object: the catalog, the session user,
// the execution store and the lifecycle controller, wired from Config.
type State struct {
	cfg    config.Config
	logger logging.Logger

	kv      storage.KV
	closers []io.Closer

	catalog    *script.Catalog
	roster     *access.Roster
	events     *dispatcher.Dispatcher
	store      *execution.Store
	controller *lifecycle.Controller
	scheduler  *cron.Scheduler
	metrics    *lifecycle.PrometheusRecorder
	runner     lifecycle.Runner

	mu       sync.RWMutex
	current  access.User
	reminder cron.Handle
}

type Option func(*State)

func WithLogger(logger logging.Logger) Option {
	return func(s *State) {
		s.logger = logger
	}
}

// WithStorage replaces the backend selected by config.
func WithStorage(kv storage.KV) Option {
	return func(s *State) {
		s.kv = kv
	}
}

func WithCatalog(c *script.Catalog) Option {
	return func(s *State) {
		s.catalog = c
	}
}

func WithRoster(r *access.Roster) Option {
	return func(s *State) {
		s.roster = r
	}
}

// WithRunner replaces the simulated runner.
func WithRunner(r lifecycle.Runner) Option {
	return func(s *State) {
		s.runner = r
	}
}

// New builds the application state. Persisted executions and the session
// user are loaded before New returns.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &State{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	}
	s.logger = logging.WithFields(s.logger, map[string]any{"component": "app"})

	if err := s.init(ctx); err != nil {
		_ = s.closeResources()
		return nil, err
	}
	return s, nil
}

func (s *State) init(ctx context.Context) error {
	var err error
	if s.kv == nil {
		if s.kv, err = s.openStorage(); err != nil {
			return err
		}
	}
	if s.catalog == nil {
		if s.catalog, err = loadCatalog(s.cfg.Catalog); err != nil {
			return err
		}
	}
	if s.roster == nil {
		if s.roster, err = buildRoster(s.cfg.Users); err != nil {
			return err
		}
	}

	s.events = dispatcher.NewDispatcher(dispatcher.WithLogger(s.logger))
	s.store, err = execution.NewStore(ctx, s.kv,
		execution.WithDispatcher(s.events),
		execution.WithStoreLogger(s.logger),
	)
	if err != nil {
		return err
	}

	loc, err := s.cfg.Reminder.Location()
	if err != nil {
		return scriptdesk.CloneError(scriptdesk.ErrConfigInvalid, "reminder.timezone", err, nil)
	}
	s.scheduler = cron.NewScheduler(
		cron.WithLogger(s.logger),
		cron.WithLocation(loc),
		cron.WithParser(s.cfg.Reminder.Parser()),
	)
	if s.runner == nil {
		s.runner = runner.NewSimulated(s.scheduler, s.runnerOptions()...)
	}

	s.metrics = lifecycle.NewPrometheusRecorder()
	s.controller = lifecycle.NewController(s.store, s.catalog,
		lifecycle.WithRunner(s.runner),
		lifecycle.WithMetrics(s.metrics),
		lifecycle.WithLogger(s.logger),
		lifecycle.WithRerunSuffix(s.cfg.Rerun.Suffix),
	)

	s.current = s.loadSession(ctx)
	return nil
}

func (s *State) openStorage() (storage.KV, error) {
	sc := s.cfg.Storage
	switch sc.Backend {
	case config.BackendMemory:
		return storage.NewMemory(), nil
	case config.BackendSQLite:
		db, err := storage.OpenSQLite(sc.DSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db)
		return storage.NewSQLiteKV(db, sc.Table)
	default:
		return storage.NewFileKV(sc.Dir)
	}
}

func (s *State) runnerOptions() []runner.Option {
	rc := s.cfg.Runner
	opts := []runner.Option{
		runner.WithDelays(rc.StartDelay, rc.CompleteDelay),
		runner.WithResult(rc.Result),
		runner.WithLogger(s.logger),
		runner.WithRetry(2, runner.ExponentialBackoffStrategy{
			Base:   50 * time.Millisecond,
			Factor: 2,
			Max:    time.Second,
		}),
	}
	if rc.Fail {
		opts = append(opts, runner.WithFailure(rc.FailureResult))
	}
	return opts
}

func loadCatalog(cc config.CatalogConfig) (*script.Catalog, error) {
	path := strings.TrimSpace(cc.Path)
	if path == "" {
		return data.DefaultCatalog()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, scriptdesk.CloneError(scriptdesk.ErrCatalogInvalid, "read catalog file", err, map[string]any{"path": path})
	}
	return script.LoadCatalog(raw)
}

func buildRoster(users []config.UserConfig) (*access.Roster, error) {
	if len(users) == 0 {
		return access.DefaultRoster(), nil
	}
	out := make([]access.User, 0, len(users))
	for _, uc := range users {
		role := access.Role(strings.ToLower(strings.TrimSpace(uc.Role)))
		if !role.Valid() {
			return nil, scriptdesk.CloneError(scriptdesk.ErrConfigInvalid, "unknown role", nil, map[string]any{
				"user_id": uc.ID,
				"role":    uc.Role,
			})
		}
		perms := access.DefaultCapabilities(role)
		if len(uc.Permissions) > 0 {
			perms = make([]access.Capability, 0, len(uc.Permissions))
			for _, p := range uc.Permissions {
				perms = append(perms, access.Capability(strings.TrimSpace(p)))
			}
		}
		name := uc.Name
		if name == "" {
			name = uc.ID
		}
		out = append(out, access.User{ID: uc.ID, Name: name, Role: role, Permissions: perms})
	}
	return access.NewRoster(out...), nil
}

func (s *State) Config() config.Config                  { return s.cfg }
func (s *State) Logger() logging.Logger                 { return s.logger }
func (s *State) Catalog() *script.Catalog               { return s.catalog }
func (s *State) Roster() *access.Roster                 { return s.roster }
func (s *State) Store() *execution.Store                { return s.store }
func (s *State) Controller() *lifecycle.Controller      { return s.controller }
func (s *State) Metrics() *lifecycle.PrometheusRecorder { return s.metrics }
func (s *State) Events() *dispatcher.Dispatcher         { return s.events }

// NewForm opens a form for scriptID whose submissions are made on behalf
// of the session user at submit time.
func (s *State) NewForm(scriptID string, opts ...form.Option) (*form.Form, error) {
	def, err := s.catalog.Get(scriptID)
	if err != nil {
		return nil, err
	}
	base := []form.Option{
		form.WithSubmitter(s.controller.Submitter(s.CurrentUser)),
		form.WithLogger(s.logger),
	}
	return form.New(def, append(base, opts...)...), nil
}

// RerunForm opens a form for the script of execution id, seeded with the
// inputs of that execution.
func (s *State) RerunForm(id string) (*form.Form, error) {
	rec, err := s.store.MustGet(id)
	if err != nil {
		return nil, err
	}
	return s.NewForm(rec.ScriptID, form.WithValues(rec.Inputs))
}

func (s *State) Submit(ctx context.Context, sub form.Submission) (*execution.Record, error) {
	return s.controller.Submit(ctx, s.CurrentUser(), sub)
}

func (s *State) Approve(ctx context.Context, id string) (*execution.Record, error) {
	return s.controller.Approve(ctx, s.CurrentUser(), id)
}

func (s *State) Reject(ctx context.Context, id, reason string) (*execution.Record, error) {
	return s.controller.Reject(ctx, s.CurrentUser(), id, reason)
}

func (s *State) Rerun(ctx context.Context, id string) (*execution.Record, error) {
	return s.controller.Rerun(ctx, s.CurrentUser(), id)
}

// Dashboard lists the executions the session user may see that match f.
// Extra predicates, such as a jq expression, are and-ed in.
func (s *State) Dashboard(f execution.DashboardFilter, extra ...execution.Predicate) []execution.Record {
	preds := append([]execution.Predicate{f.Predicate(s.CurrentUser())}, extra...)
	return s.store.Filter(execution.And(preds...))
}

// Execution returns id if the session user may see it.
func (s *State) Execution(id string) (execution.Record, error) {
	rec, err := s.store.MustGet(id)
	if err != nil {
		return execution.Record{}, err
	}
	if !execution.VisibleTo(s.CurrentUser())(rec) {
		return execution.Record{}, scriptdesk.CloneError(scriptdesk.ErrExecutionNotFound, "", nil, map[string]any{"id": id})
	}
	return rec, nil
}

// Export writes the text export of a completed execution to the export
// directory and returns the file path.
func (s *State) Export(ctx context.Context, id string) (string, error) {
	rec, err := s.Execution(id)
	if err != nil {
		return "", err
	}
	path, err := execution.WriteExport(ctx, s.cfg.Export.Dir, rec)
	if err != nil {
		return "", err
	}
	s.logger.WithContext(ctx).Info("exported execution %s to %s", id, path)
	return path, nil
}

// Wait blocks until id reaches a terminal status or pending approval, or
// until ctx is done.
func (s *State) Wait(ctx context.Context, id string) (execution.Record, error) {
	changed := make(chan struct{}, 1)
	sub := s.store.SubscribeUpdated(func(_ context.Context, evt execution.RecordUpdated) error {
		if evt.Record.ID == id {
			select {
			case changed <- struct{}{}:
			default:
			}
		}
		return nil
	})
	defer sub.Unsubscribe()

	for {
		rec, err := s.store.MustGet(id)
		if err != nil {
			return execution.Record{}, err
		}
		if rec.Status.Terminal() || rec.Status == execution.StatusPendingApproval {
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return rec, ctx.Err()
		case <-changed:
		}
	}
}

// Start starts the scheduler and, when enabled, the pending approval
// reminder.
func (s *State) Start(ctx context.Context) error {
	if err := s.scheduler.Start(ctx); err != nil {
		return err
	}
	if !s.cfg.Reminder.Enabled {
		return nil
	}
	handle, err := s.scheduleReminder()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.reminder = handle
	s.mu.Unlock()
	s.logger.Info("pending approval reminder scheduled: %s", s.cfg.Reminder.Expression)
	return nil
}

// Close stops the scheduler and releases storage handles. Runner callbacks
// that have not fired yet are dropped.
func (s *State) Close(ctx context.Context) error {
	var errs []error
	if s.scheduler != nil {
		if err := s.scheduler.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.closeResources(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "close application state", errors.Join(errs...), nil)
}

func (s *State) closeResources() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
