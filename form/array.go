package form

import (
	"strings"

	scriptdesk "github.com/goliatone/go-scriptdesk"
	"github.com/goliatone/go-scriptdesk/script"
)

// Chip is one displayed entry of an array field. Index points into the
// underlying list, not into the filtered view.
type Chip struct {
	Index int
	Text  string
}

// ArrayEditor drives the entry modes of an array field: single append,
// bulk paste, and a search sub-mode that only narrows what is displayed.
type ArrayEditor struct {
	form      *Form
	name      string
	draft     string
	query     string
	searching bool
}

// Array returns the editor bound to the named array field.
func (f *Form) Array(name string) (*ArrayEditor, error) {
	fd, err := f.lookup(name)
	if err != nil {
		return nil, err
	}
	if fd.kind() != script.FieldArray {
		return nil, scriptdesk.CloneError(ErrKindMismatch, "", nil, map[string]any{"field": name, "expected": "array"})
	}
	if ed, ok := f.arrays[name]; ok {
		return ed, nil
	}
	ed := &ArrayEditor{form: f, name: name}
	f.arrays[name] = ed
	return ed, nil
}

func (e *ArrayEditor) items() []string {
	return e.form.values.Get(e.name).Items()
}

func (e *ArrayEditor) store(items []string) {
	// name and kind were checked when the editor was created
	_ = e.form.SetValue(e.name, script.List(items...))
}

func (e *ArrayEditor) Items() []string { return e.items() }

func (e *ArrayEditor) Draft() string { return e.draft }

func (e *ArrayEditor) SetDraft(text string) { e.draft = text }

func (e *ArrayEditor) Searching() bool { return e.searching }

func (e *ArrayEditor) Query() string { return e.query }

// Commit is the submit key: it leaves search mode when searching,
// otherwise appends the trimmed draft. It reports whether a value was added.
func (e *ArrayEditor) Commit() bool {
	if e.searching {
		e.searching = false
		e.query = ""
		return false
	}
	return e.appendDraft()
}

// Press is the action button: it leaves search mode, appends a non-blank
// draft, or enters search mode when the draft is blank.
func (e *ArrayEditor) Press() bool {
	if e.searching {
		e.searching = false
		e.query = ""
		e.draft = ""
		return false
	}
	if strings.TrimSpace(e.draft) == "" {
		e.searching = true
		return false
	}
	return e.appendDraft()
}

func (e *ArrayEditor) appendDraft() bool {
	text := strings.TrimSpace(e.draft)
	if text == "" {
		return false
	}
	e.store(append(e.items(), text))
	e.draft = ""
	return true
}

// Paste appends one entry per non-blank line and returns how many were added.
func (e *ArrayEditor) Paste(text string) int {
	var added []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			added = append(added, line)
		}
	}
	if len(added) == 0 {
		return 0
	}
	e.store(append(e.items(), added...))
	return len(added)
}

func (e *ArrayEditor) ToggleSearch() bool {
	e.searching = !e.searching
	if !e.searching {
		e.query = ""
	}
	return e.searching
}

func (e *ArrayEditor) SetSearch(query string) {
	e.query = query
}

// Visible lists the chips to display, filtered by the search query with a
// case-insensitive substring match while in search mode.
func (e *ArrayEditor) Visible() []Chip {
	items := e.items()
	q := strings.ToLower(e.query)
	out := make([]Chip, 0, len(items))
	for i, item := range items {
		if e.searching && q != "" && !strings.Contains(strings.ToLower(item), q) {
			continue
		}
		out = append(out, Chip{Index: i, Text: item})
	}
	return out
}

// Remove deletes the entry at the underlying index.
func (e *ArrayEditor) Remove(index int) error {
	items := e.items()
	if index < 0 || index >= len(items) {
		return scriptdesk.CloneError(ErrRowOutOfRange, "", nil, map[string]any{"field": e.name, "row": index, "rows": len(items)})
	}
	e.store(append(items[:index], items[index+1:]...))
	return nil
}

func (e *ArrayEditor) reset() {
	e.draft = ""
	e.query = ""
	e.searching = false
}
