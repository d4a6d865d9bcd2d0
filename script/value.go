package script

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindScalar ValueKind = iota
	KindList
	KindTable
)

func (k ValueKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindTable:
		return "table"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Row is one record of a table input, keyed by column key.
type Row map[string]string

func (r Row) Clone() Row {
	if r == nil {
		return Row{}
	}
	return maps.Clone(r)
}

// Value is a form value: a scalar string, an ordered string list or an
// ordered list of rows. The zero Value is an empty scalar.
type Value struct {
	kind   ValueKind
	scalar string
	list   []string
	table  []Row
}

func Scalar(s string) Value {
	return Value{kind: KindScalar, scalar: s}
}

func List(items ...string) Value {
	return Value{kind: KindList, list: slices.Clone(items)}
}

func Table(rows ...Row) Value {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Clone())
	}
	return Value{kind: KindTable, table: out}
}

// Empty returns the empty value of the variant an input of kind fk holds.
func Empty(fk FieldKind) Value {
	switch fk {
	case FieldArray:
		return List()
	case FieldTable:
		return Table()
	default:
		return Scalar("")
	}
}

func (v Value) Kind() ValueKind { return v.kind }

// Conform re-tags an empty collection for a field of kind fk. JSON encodes
// empty lists and empty tables alike, so a decoded [] takes the variant of
// the field it is assigned to. Other values are returned unchanged.
func (v Value) Conform(fk FieldKind) Value {
	if v.kind == KindScalar || !v.IsEmpty() {
		return v
	}
	switch fk {
	case FieldArray, FieldTable:
		return Empty(fk)
	default:
		return v
	}
}

// String returns the scalar text. Lists are joined with ", ".
func (v Value) String() string {
	switch v.kind {
	case KindList:
		return strings.Join(v.list, ", ")
	case KindTable:
		return fmt.Sprintf("%d rows", len(v.table))
	default:
		return v.scalar
	}
}

func (v Value) Items() []string {
	return slices.Clone(v.list)
}

func (v Value) Rows() []Row {
	out := make([]Row, 0, len(v.table))
	for _, r := range v.table {
		out = append(out, r.Clone())
	}
	return out
}

func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindTable:
		return len(v.table)
	default:
		if v.IsEmpty() {
			return 0
		}
		return 1
	}
}

// IsEmpty applies the variant emptiness rule: blank text for scalars,
// zero elements for lists and tables.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindList:
		return len(v.list) == 0
	case KindTable:
		return len(v.table) == 0
	default:
		return strings.TrimSpace(v.scalar) == ""
	}
}

func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		return List(v.list...)
	case KindTable:
		return Table(v.table...)
	default:
		return v
	}
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindList:
		return slices.Equal(v.list, o.list)
	case KindTable:
		return slices.EqualFunc(v.table, o.table, func(a, b Row) bool { return maps.Equal(a, b) })
	default:
		return v.scalar == o.scalar
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindTable:
		if v.table == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.table)
	default:
		return json.Marshal(v.scalar)
	}
}

// UnmarshalJSON accepts a string, a string array or an array of objects.
// An empty array decodes as an empty list; see Conform.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Scalar("")
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Scalar(s)
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if len(raw) > 0 && bytes.HasPrefix(bytes.TrimSpace(raw[0]), []byte("{")) {
			var rows []Row
			if err := json.Unmarshal(data, &rows); err != nil {
				return err
			}
			*v = Table(rows...)
			return nil
		}
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*v = List(items...)
		return nil
	default:
		// numbers and booleans persisted by older writers
		*v = Scalar(string(data))
		return nil
	}
}

// Values maps input names to their current value.
type Values map[string]Value

func (vs Values) Clone() Values {
	out := make(Values, len(vs))
	for k, v := range vs {
		out[k] = v.Clone()
	}
	return out
}

// Get returns the named value, or an empty scalar when absent.
func (vs Values) Get(name string) Value {
	if vs == nil {
		return Value{}
	}
	return vs[name]
}

// Text returns the scalar text of the named value.
func (vs Values) Text(name string) string {
	return vs.Get(name).String()
}
