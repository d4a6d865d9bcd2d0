package form

import (
	"context"
	"maps"
	"strings"

	"github.com/goliatone/go-errors"
	scriptdesk "github.com/goliatone/go-scriptdesk"
	"github.com/goliatone/go-scriptdesk/logging"
	"github.com/goliatone/go-scriptdesk/script"
)

// Submission is what a valid form hands to its submitter.
type Submission struct {
	ScriptID      string        `json:"scriptId"`
	ExecutionName string        `json:"executionName"`
	Inputs        script.Values `json:"inputs"`
}

func (Submission) Type() string { return "form::submission" }

func (s Submission) Validate() error {
	if strings.TrimSpace(s.ScriptID) == "" {
		return scriptdesk.CloneError(scriptdesk.ErrValidation, "script id is required", nil, nil)
	}
	if strings.TrimSpace(s.ExecutionName) == "" {
		return scriptdesk.CloneError(scriptdesk.ErrValidation, "execution name is required", nil, nil)
	}
	return nil
}

type Option func(*Form)

// WithSubmitter sets the handler receiving valid submissions.
func WithSubmitter(cmd scriptdesk.Commander[Submission]) Option {
	return func(f *Form) {
		f.submitter = cmd
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(f *Form) {
		f.logger = logger
	}
}

// WithValues seeds initial values, typically from a rerun or a saved draft.
// Values for unknown names or of the wrong kind are ignored.
func WithValues(values script.Values) Option {
	return func(f *Form) {
		f.seed = values.Clone()
	}
}

func WithMode(mode ViewMode) Option {
	return func(f *Form) {
		f.mode = mode
	}
}

// Form holds the editable state for one script definition. It is not safe
// for concurrent use.
type Form struct {
	def    script.Definition
	fields map[string]field
	order  []string

	values        script.Values
	executionName string
	fieldErrors   map[string]string
	rowErrors     map[string][]string
	sectionErrors map[string]string
	valid         bool

	mode      ViewMode
	current   int
	collapsed map[string]bool
	arrays    map[string]*ArrayEditor

	seed      script.Values
	submitter scriptdesk.Commander[Submission]
	logger    logging.Logger
}

func New(def script.Definition, opts ...Option) *Form {
	f := &Form{
		def:       def.Clone(),
		fields:    make(map[string]field),
		collapsed: make(map[string]bool),
		arrays:    make(map[string]*ArrayEditor),
		mode:      ViewSingle,
	}
	for _, in := range f.def.Inputs() {
		f.fields[in.Name] = newField(in)
		f.order = append(f.order, in.Name)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	f.logger = logging.WithFields(logging.Normalize(f.logger), map[string]any{
		"component": "form",
		"script_id": f.def.ID,
	})

	f.resetValues()
	for name, v := range f.seed {
		fd, ok := f.fields[name]
		if !ok {
			continue
		}
		if v = v.Conform(fd.kind()); fd.accepts(v) {
			f.values[name] = v.Clone()
		}
	}
	f.RecomputeValidity()
	return f
}

func (f *Form) Definition() script.Definition { return f.def.Clone() }

func (f *Form) resetValues() {
	f.values = make(script.Values, len(f.order))
	for _, name := range f.order {
		f.values[name] = script.Empty(f.fields[name].kind())
	}
}

func (f *Form) lookup(name string) (field, error) {
	fd, ok := f.fields[name]
	if !ok {
		return nil, scriptdesk.CloneError(ErrFieldNotFound, "", nil, map[string]any{"field": name})
	}
	return fd, nil
}

// SetValue stores v for name, validates that field and recomputes validity.
func (f *Form) SetValue(name string, v script.Value) error {
	fd, err := f.lookup(name)
	if err != nil {
		return err
	}
	v = v.Conform(fd.kind())
	if !fd.accepts(v) {
		return scriptdesk.CloneError(ErrKindMismatch, "", nil, map[string]any{
			"field":    name,
			"expected": fd.kind().String(),
			"got":      v.Kind().String(),
		})
	}
	f.values[name] = v.Clone()
	f.validateField(name)
	f.RecomputeValidity()
	return nil
}

// Set is SetValue for scalar and select fields.
func (f *Form) Set(name, text string) error {
	return f.SetValue(name, script.Scalar(text))
}

func (f *Form) Value(name string) script.Value {
	return f.values.Get(name).Clone()
}

func (f *Form) Values() script.Values {
	return f.values.Clone()
}

func (f *Form) SetExecutionName(name string) {
	f.executionName = name
	f.RecomputeValidity()
}

func (f *Form) ExecutionName() string { return f.executionName }

func (f *Form) validateField(name string) {
	fd := f.fields[name]
	msg, rows := fd.validate(f.values.Get(name))
	f.fieldErrors[name] = msg
	if fd.kind() == script.FieldTable {
		f.rowErrors[name] = rows
	}
}

// RecomputeValidity re-derives every field, row and section error and the
// overall validity from the current values. Repeated calls without changes
// produce identical results.
func (f *Form) RecomputeValidity() bool {
	f.fieldErrors = make(map[string]string, len(f.order))
	f.rowErrors = make(map[string][]string)
	f.sectionErrors = make(map[string]string, len(f.def.Sections))

	valid := strings.TrimSpace(f.executionName) != ""
	for _, name := range f.order {
		f.validateField(name)
		if f.fieldErrors[name] != "" {
			valid = false
		}
	}
	for _, sec := range f.def.Sections {
		msg := ""
		if sec.Validate != nil {
			msg = runSectionValidator(sec.Validate, sec.Values(f.values))
		}
		f.sectionErrors[sec.ID] = msg
		if msg != "" {
			valid = false
		}
	}
	f.valid = valid
	return valid
}

func (f *Form) Valid() bool { return f.valid }

func (f *Form) FieldError(name string) string { return f.fieldErrors[name] }

func (f *Form) FieldErrors() map[string]string { return maps.Clone(f.fieldErrors) }

func (f *Form) SectionError(id string) string { return f.sectionErrors[id] }

func (f *Form) SectionErrors() map[string]string { return maps.Clone(f.sectionErrors) }

// RowErrors returns one message per row of a table field, "" for valid rows.
func (f *Form) RowErrors(name string) []string {
	return append([]string(nil), f.rowErrors[name]...)
}

func (f *Form) tableRows(name string) ([]script.Row, error) {
	fd, err := f.lookup(name)
	if err != nil {
		return nil, err
	}
	if fd.kind() != script.FieldTable {
		return nil, scriptdesk.CloneError(ErrKindMismatch, "", nil, map[string]any{"field": name, "expected": "table"})
	}
	return f.values.Get(name).Rows(), nil
}

func (f *Form) storeRows(name string, rows []script.Row) {
	f.values[name] = script.Table(rows...)
	f.validateField(name)
	f.RecomputeValidity()
}

// AddRow appends a row with every column blank and returns its index.
func (f *Form) AddRow(name string) (int, error) {
	rows, err := f.tableRows(name)
	if err != nil {
		return -1, err
	}
	row := script.Row{}
	for _, col := range f.fields[name].input().Columns {
		row[col.Key] = ""
	}
	rows = append(rows, row)
	f.storeRows(name, rows)
	return len(rows) - 1, nil
}

func (f *Form) SetCell(name string, index int, key, value string) error {
	rows, err := f.tableRows(name)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(rows) {
		return scriptdesk.CloneError(ErrRowOutOfRange, "", nil, map[string]any{"field": name, "row": index, "rows": len(rows)})
	}
	if _, ok := f.fields[name].input().Column(key); !ok {
		return scriptdesk.CloneError(ErrColumnNotFound, "", nil, map[string]any{"field": name, "column": key})
	}
	rows[index][key] = value
	f.storeRows(name, rows)
	return nil
}

func (f *Form) RemoveRow(name string, index int) error {
	rows, err := f.tableRows(name)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(rows) {
		return scriptdesk.CloneError(ErrRowOutOfRange, "", nil, map[string]any{"field": name, "row": index, "rows": len(rows)})
	}
	rows = append(rows[:index], rows[index+1:]...)
	f.storeRows(name, rows)
	return nil
}

// Submit re-runs validation and, when the form is valid, hands a snapshot
// to the submitter and resets the form. An invalid form returns false
// without error.
func (f *Form) Submit(ctx context.Context) (bool, error) {
	if !f.RecomputeValidity() {
		f.logger.Debug("submit ignored, form invalid")
		return false, nil
	}
	if f.submitter == nil {
		return false, ErrNoSubmitter.Clone()
	}

	sub := Submission{
		ScriptID:      f.def.ID,
		ExecutionName: strings.TrimSpace(f.executionName),
		Inputs:        f.values.Clone(),
	}
	if err := scriptdesk.ValidateMessage(sub); err != nil {
		return false, err
	}
	if err := f.submitter.Execute(ctx, sub); err != nil {
		f.logger.WithContext(ctx).Error("submit failed: %v", err)
		return false, errors.Wrap(err, errors.CategoryHandler, "submission handler failed").
			WithMetadata(map[string]any{"script_id": f.def.ID})
	}

	f.logger.WithContext(ctx).Info("submitted %q", sub.ExecutionName)
	f.Reset()
	return true, nil
}

// Reset clears values, execution name, array editors and navigation.
func (f *Form) Reset() {
	f.resetValues()
	f.executionName = ""
	f.current = 0
	f.collapsed = make(map[string]bool)
	for _, ed := range f.arrays {
		ed.reset()
	}
	f.RecomputeValidity()
}
