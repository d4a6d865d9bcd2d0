package execution

import (
	"context"
	"slices"
	"sync"

	scriptdesk "github.com/goliatone/go-scriptdesk"
	"github.com/goliatone/go-scriptdesk/dispatcher"
	"github.com/goliatone/go-scriptdesk/logging"
	"github.com/goliatone/go-scriptdesk/storage"
)

// RecordAdded is dispatched after a record is committed.
type RecordAdded struct {
	Record Record
}

func (RecordAdded) Type() string { return "execution::record_added" }

// RecordUpdated is dispatched after a patch is committed.
type RecordUpdated struct {
	Previous Record
	Record   Record
	Fields   []string
}

func (RecordUpdated) Type() string { return "execution::record_updated" }

// Store holds every execution in insertion order and keeps the durable
// copy in sync on each mutation.
type Store struct {
	mu      sync.Mutex
	records []Record
	index   map[string]int

	kv         storage.KV
	key        string
	dispatcher *dispatcher.Dispatcher
	logger     logging.Logger
}

type StoreOption func(*Store)

func WithStoreLogger(logger logging.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithDispatcher shares an existing dispatcher for record events.
func WithDispatcher(d *dispatcher.Dispatcher) StoreOption {
	return func(s *Store) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

// WithStorageKey overrides the key the record list is persisted under.
func WithStorageKey(key string) StoreOption {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// NewStore loads the persisted records from kv. A missing key starts an
// empty store, and so does malformed data, which is logged and left in place
// until the next mutation overwrites it.
func NewStore(ctx context.Context, kv storage.KV, opts ...StoreOption) (*Store, error) {
	if kv == nil {
		kv = storage.NewMemory()
	}
	s := &Store{
		index: make(map[string]int),
		kv:    kv,
		key:   storage.KeyExecutions,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = logging.Normalize(s.logger)
	if s.dispatcher == nil {
		s.dispatcher = dispatcher.NewDispatcher(dispatcher.WithLogger(s.logger))
	}

	var loaded []Record
	found, err := storage.GetJSON(ctx, kv, s.key, &loaded)
	switch {
	case err != nil && found:
		s.logger.Warn("discarding malformed %s: %v", s.key, err)
		loaded = nil
	case err != nil:
		return nil, err
	}

	for _, rec := range loaded {
		if rec.ID == "" {
			continue
		}
		if _, dup := s.index[rec.ID]; dup {
			s.logger.Warn("skipping duplicate execution %s in %s", rec.ID, s.key)
			continue
		}
		s.index[rec.ID] = len(s.records)
		s.records = append(s.records, rec.Clone())
	}
	s.logger.Debug("loaded %d executions", len(s.records))
	return s, nil
}

// Add appends rec and persists the full list. Inputs are deep-copied.
func (s *Store) Add(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		return Record{}, scriptdesk.CloneError(scriptdesk.ErrValidation, "execution id is required", nil, nil)
	}
	rec = rec.Clone()

	s.mu.Lock()
	if _, exists := s.index[rec.ID]; exists {
		s.mu.Unlock()
		return Record{}, scriptdesk.CloneError(scriptdesk.ErrValidation, "execution already exists", nil, map[string]any{
			"execution_id": rec.ID,
		})
	}

	s.records = append(s.records, rec)
	s.index[rec.ID] = len(s.records) - 1
	if err := s.persistLocked(ctx); err != nil {
		s.records = s.records[:len(s.records)-1]
		delete(s.index, rec.ID)
		s.mu.Unlock()
		return Record{}, err
	}
	s.mu.Unlock()

	s.notify(ctx, RecordAdded{Record: rec.Clone()})
	return rec.Clone(), nil
}

// Update merges p into the record with the given id. A missing id is a
// no-op and reports false.
func (s *Store) Update(ctx context.Context, id string, p Patch) (Record, bool, error) {
	return s.update(ctx, id, func(Record) (Patch, error) { return p, nil })
}

// UpdateFunc derives the patch from the current record while holding the
// store lock, so the check and the write cannot interleave with another
// mutation. An error from fn aborts without changes.
func (s *Store) UpdateFunc(ctx context.Context, id string, fn func(current Record) (Patch, error)) (Record, bool, error) {
	return s.update(ctx, id, fn)
}

func (s *Store) update(ctx context.Context, id string, fn func(Record) (Patch, error)) (Record, bool, error) {
	s.mu.Lock()
	pos, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return Record{}, false, nil
	}

	prev := s.records[pos]
	p, err := fn(prev.Clone())
	if err != nil {
		s.mu.Unlock()
		return prev.Clone(), true, err
	}
	if p.IsZero() {
		s.mu.Unlock()
		return prev.Clone(), true, nil
	}

	next := p.Apply(prev)
	s.records[pos] = next
	if err := s.persistLocked(ctx); err != nil {
		s.records[pos] = prev
		s.mu.Unlock()
		return prev.Clone(), true, err
	}
	s.mu.Unlock()

	s.notify(ctx, RecordUpdated{Previous: prev.Clone(), Record: next.Clone(), Fields: p.Fields()})
	return next.Clone(), true, nil
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[id]
	if !ok {
		return Record{}, false
	}
	return s.records[pos].Clone(), true
}

// MustGet returns the record or EXECUTION_NOT_FOUND.
func (s *Store) MustGet(id string) (Record, error) {
	rec, ok := s.Get(id)
	if !ok {
		return Record{}, scriptdesk.CloneError(scriptdesk.ErrExecutionNotFound, "", nil, map[string]any{
			"execution_id": id,
		})
	}
	return rec, nil
}

// Filter returns copies of the records matching pred in insertion order.
// A nil predicate matches everything.
func (s *Store) Filter(pred Predicate) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if pred == nil || pred(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

func (s *Store) All() []Record {
	return s.Filter(nil)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// IDs returns the ids in insertion order.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.ID)
	}
	return out
}

// Dispatcher exposes the dispatcher record events are published on.
func (s *Store) Dispatcher() *dispatcher.Dispatcher {
	return s.dispatcher
}

// SubscribeAdded registers fn for RecordAdded events.
func (s *Store) SubscribeAdded(fn func(ctx context.Context, evt RecordAdded) error) dispatcher.Subscription {
	return dispatcher.SubscribeFunc(s.dispatcher, fn)
}

// SubscribeUpdated registers fn for RecordUpdated events.
func (s *Store) SubscribeUpdated(fn func(ctx context.Context, evt RecordUpdated) error) dispatcher.Subscription {
	return dispatcher.SubscribeFunc(s.dispatcher, fn)
}

func (s *Store) persistLocked(ctx context.Context) error {
	snapshot := slices.Clone(s.records)
	if snapshot == nil {
		snapshot = []Record{}
	}
	if err := storage.PutJSON(ctx, s.kv, s.key, snapshot); err != nil {
		s.logger.Error("persist %s failed: %v", s.key, err)
		if scriptdesk.HasCode(err, scriptdesk.CodeStorageFailed) {
			return err
		}
		return scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "persist executions", err, map[string]any{
			"key": s.key,
		})
	}
	return nil
}

// notify runs outside the store lock so observers may read the store.
// Observer failures are logged and never undo a committed mutation.
func (s *Store) notify(ctx context.Context, evt dispatcher.Typed) {
	var err error
	switch e := evt.(type) {
	case RecordAdded:
		err = dispatcher.Dispatch(ctx, s.dispatcher, e)
	case RecordUpdated:
		err = dispatcher.Dispatch(ctx, s.dispatcher, e)
	}
	if err != nil {
		s.logger.Warn("execution observer failed for %s: %v", evt.Type(), err)
	}
}
