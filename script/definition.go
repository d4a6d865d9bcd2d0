package script

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	scriptdesk "github.com/goliatone/go-scriptdesk"
)

// InputType is the declared data type of an input or column.
type InputType string

const (
	TypeText   InputType = "text"
	TypeNumber InputType = "number"
	TypeDate   InputType = "date"
	TypeSelect InputType = "select"
)

func (t InputType) Valid() bool {
	switch t {
	case TypeText, TypeNumber, TypeDate, TypeSelect:
		return true
	default:
		return false
	}
}

// FieldKind is the closed set of form field variants.
type FieldKind int

const (
	FieldScalar FieldKind = iota
	FieldSelect
	FieldArray
	FieldTable
)

func (k FieldKind) String() string {
	switch k {
	case FieldScalar:
		return "scalar"
	case FieldSelect:
		return "select"
	case FieldArray:
		return "array"
	case FieldTable:
		return "table"
	default:
		return fmt.Sprintf("field(%d)", int(k))
	}
}

// SectionValidator checks a section's values as a whole. A nil error means valid.
type SectionValidator func(values Values) error

// RowValidator checks one table row. A nil error means valid.
type RowValidator func(row Row) error

type Column struct {
	Key      string
	Label    string
	Type     InputType
	Options  []string
	Required bool
}

type Input struct {
	Name           string
	Label          string
	Type           InputType
	Required       bool
	Options        []string
	Pattern        *regexp.Regexp // matched against scalar and select values
	PatternMessage string
	IsArray        bool
	IsTable        bool
	Columns        []Column
	ValidateRow    RowValidator
}

// Kind resolves the flag combination once: table, then array, then
// select, then plain scalar.
func (in Input) Kind() FieldKind {
	switch {
	case in.IsTable:
		return FieldTable
	case in.IsArray:
		return FieldArray
	case in.Type == TypeSelect:
		return FieldSelect
	default:
		return FieldScalar
	}
}

func (in Input) Column(key string) (Column, bool) {
	for _, c := range in.Columns {
		if c.Key == key {
			return c, true
		}
	}
	return Column{}, false
}

func (in Input) clone() Input {
	in.Options = slices.Clone(in.Options)
	cols := make([]Column, 0, len(in.Columns))
	for _, c := range in.Columns {
		c.Options = slices.Clone(c.Options)
		cols = append(cols, c)
	}
	in.Columns = cols
	return in
}

type Section struct {
	ID       string
	Title    string
	Inputs   []Input
	Validate SectionValidator
}

// Values extracts the section's own inputs from all.
func (s Section) Values(all Values) Values {
	out := make(Values, len(s.Inputs))
	for _, in := range s.Inputs {
		out[in.Name] = all.Get(in.Name).Clone()
	}
	return out
}

type Definition struct {
	ID          string
	Name        string
	Description string
	Type        string
	Tags        []string
	Sections    []Section
}

// Inputs flattens every section's inputs in declaration order.
func (d Definition) Inputs() []Input {
	var out []Input
	for _, s := range d.Sections {
		out = append(out, s.Inputs...)
	}
	return out
}

func (d Definition) Input(name string) (Input, bool) {
	for _, s := range d.Sections {
		for _, in := range s.Inputs {
			if in.Name == name {
				return in, true
			}
		}
	}
	return Input{}, false
}

func (d Definition) SectionIndex(id string) int {
	for i, s := range d.Sections {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Matches reports a case-insensitive substring hit on name or any tag.
func (d Definition) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(d.Name), q) {
		return true
	}
	for _, tag := range d.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

func (d Definition) Clone() Definition {
	d.Tags = slices.Clone(d.Tags)
	sections := make([]Section, 0, len(d.Sections))
	for _, s := range d.Sections {
		inputs := make([]Input, 0, len(s.Inputs))
		for _, in := range s.Inputs {
			inputs = append(inputs, in.clone())
		}
		s.Inputs = inputs
		sections = append(sections, s)
	}
	d.Sections = sections
	return d
}

// Validate checks structural invariants: unique section ids, input names
// unique across the whole script, typed inputs and table columns.
func (d Definition) Validate() error {
	var problems []string
	if strings.TrimSpace(d.ID) == "" {
		problems = append(problems, "script id is required")
	}

	sections := make(map[string]struct{}, len(d.Sections))
	names := make(map[string]string)
	for _, s := range d.Sections {
		if strings.TrimSpace(s.ID) == "" {
			problems = append(problems, "section id is required")
		} else if _, dup := sections[s.ID]; dup {
			problems = append(problems, fmt.Sprintf("section %q declared twice", s.ID))
		}
		sections[s.ID] = struct{}{}

		for _, in := range s.Inputs {
			problems = append(problems, validateInput(s.ID, in, names)...)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return scriptdesk.CloneError(
		scriptdesk.ErrCatalogInvalid,
		fmt.Sprintf("script %s: %s", d.ID, strings.Join(problems, "; ")),
		nil,
		map[string]any{"script_id": d.ID, "problems": problems},
	)
}

func validateInput(sectionID string, in Input, names map[string]string) []string {
	var problems []string
	if strings.TrimSpace(in.Name) == "" {
		return append(problems, fmt.Sprintf("section %q has an input without name", sectionID))
	}
	if owner, dup := names[in.Name]; dup {
		problems = append(problems, fmt.Sprintf("input %q in section %q already declared in section %q", in.Name, sectionID, owner))
	}
	names[in.Name] = sectionID

	if !in.Type.Valid() {
		problems = append(problems, fmt.Sprintf("input %q has unknown type %q", in.Name, in.Type))
	}
	switch in.Kind() {
	case FieldSelect:
		if len(in.Options) == 0 {
			problems = append(problems, fmt.Sprintf("select input %q has no options", in.Name))
		}
	case FieldTable:
		if len(in.Columns) == 0 {
			problems = append(problems, fmt.Sprintf("table input %q has no columns", in.Name))
		}
		keys := make(map[string]struct{}, len(in.Columns))
		for _, c := range in.Columns {
			if strings.TrimSpace(c.Key) == "" {
				problems = append(problems, fmt.Sprintf("table input %q has a column without key", in.Name))
				continue
			}
			if _, dup := keys[c.Key]; dup {
				problems = append(problems, fmt.Sprintf("table input %q declares column %q twice", in.Name, c.Key))
			}
			keys[c.Key] = struct{}{}
			switch c.Type {
			case TypeText, TypeNumber:
			case TypeSelect:
				if len(c.Options) == 0 {
					problems = append(problems, fmt.Sprintf("select column %q of %q has no options", c.Key, in.Name))
				}
			default:
				problems = append(problems, fmt.Sprintf("column %q of %q has unknown type %q", c.Key, in.Name, c.Type))
			}
		}
	}
	return problems
}
