package form

import (
	"slices"

	"github.com/goliatone/go-scriptdesk/script"
)

// ViewMode selects how sections are presented. It never affects validation.
type ViewMode int

const (
	ViewSingle ViewMode = iota
	ViewAll
)

func (m ViewMode) String() string {
	if m == ViewAll {
		return "all"
	}
	return "single"
}

type FieldView struct {
	Name      string
	Label     string
	Kind      script.FieldKind
	Type      script.InputType
	Required  bool
	Options   []string
	Columns   []script.Column
	Value     script.Value
	Error     string
	RowErrors []string
	Chips     []Chip
}

type SectionView struct {
	ID       string
	Title    string
	Index    int
	Expanded bool
	Error    string
	Fields   []FieldView
}

func (f *Form) Mode() ViewMode { return f.mode }

func (f *Form) SetMode(mode ViewMode) {
	if mode != ViewAll {
		mode = ViewSingle
	}
	f.mode = mode
}

func (f *Form) ToggleMode() ViewMode {
	if f.mode == ViewSingle {
		f.mode = ViewAll
	} else {
		f.mode = ViewSingle
	}
	return f.mode
}

// Current is the zero based index of the visible section in single mode.
func (f *Form) Current() int { return f.current }

func (f *Form) lastSection() int {
	return max(len(f.def.Sections)-1, 0)
}

// Next advances one section and reports whether the index moved.
func (f *Form) Next() bool {
	if f.current >= f.lastSection() {
		return false
	}
	f.current++
	return true
}

func (f *Form) Prev() bool {
	if f.current <= 0 {
		return false
	}
	f.current--
	return true
}

// GoTo clamps index into [0, sections-1].
func (f *Form) GoTo(index int) int {
	f.current = min(max(index, 0), f.lastSection())
	return f.current
}

// Progress reports the one based position and total section count.
func (f *Form) Progress() (current, total int) {
	total = len(f.def.Sections)
	if total == 0 {
		return 0, 0
	}
	return f.current + 1, total
}

// Toggle flips a section between expanded and collapsed in all mode.
func (f *Form) Toggle(sectionID string) bool {
	if f.def.SectionIndex(sectionID) < 0 {
		return false
	}
	f.collapsed[sectionID] = !f.collapsed[sectionID]
	return !f.collapsed[sectionID]
}

// Expanded defaults to true for every section.
func (f *Form) Expanded(sectionID string) bool {
	return !f.collapsed[sectionID]
}

func (f *Form) ExpandAll() {
	f.collapsed = make(map[string]bool)
}

func (f *Form) CollapseAll() {
	for _, sec := range f.def.Sections {
		f.collapsed[sec.ID] = true
	}
}

// View returns the sections to render: the current one in single mode,
// all of them in all mode.
func (f *Form) View() []SectionView {
	if len(f.def.Sections) == 0 {
		return nil
	}
	if f.mode == ViewSingle {
		return []SectionView{f.sectionView(f.current)}
	}
	out := make([]SectionView, 0, len(f.def.Sections))
	for i := range f.def.Sections {
		out = append(out, f.sectionView(i))
	}
	return out
}

func (f *Form) sectionView(i int) SectionView {
	sec := f.def.Sections[i]
	sv := SectionView{
		ID:       sec.ID,
		Title:    sec.Title,
		Index:    i,
		Expanded: f.mode == ViewSingle || f.Expanded(sec.ID),
		Error:    f.sectionErrors[sec.ID],
	}
	for _, in := range sec.Inputs {
		fd := f.fields[in.Name]
		fv := FieldView{
			Name:      in.Name,
			Label:     in.Label,
			Kind:      fd.kind(),
			Type:      in.Type,
			Required:  in.Required,
			Options:   slices.Clone(in.Options),
			Columns:   slices.Clone(in.Columns),
			Value:     f.values.Get(in.Name).Clone(),
			Error:     f.fieldErrors[in.Name],
			RowErrors: f.RowErrors(in.Name),
		}
		if ed, ok := f.arrays[in.Name]; ok && fd.kind() == script.FieldArray {
			fv.Chips = ed.Visible()
		}
		sv.Fields = append(sv.Fields, fv)
	}
	return sv
}
