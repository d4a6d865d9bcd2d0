package form

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-scriptdesk/script"
)

// field is the per-variant validation strategy chosen once at build time.
type field interface {
	input() script.Input
	kind() script.FieldKind
	accepts(v script.Value) bool
	// validate returns the field error and, for tables, one entry per row.
	validate(v script.Value) (string, []string)
}

func newField(in script.Input) field {
	switch in.Kind() {
	case script.FieldTable:
		return tableField{in: in}
	case script.FieldArray:
		return arrayField{in: in}
	case script.FieldSelect:
		return selectField{in: in}
	default:
		return scalarField{in: in}
	}
}

type scalarField struct{ in script.Input }

func (f scalarField) input() script.Input     { return f.in }
func (f scalarField) kind() script.FieldKind { return script.FieldScalar }

func (f scalarField) accepts(v script.Value) bool { return v.Kind() == script.KindScalar }

func (f scalarField) validate(v script.Value) (string, []string) {
	if v.IsEmpty() {
		if f.in.Required {
			return MsgRequired, nil
		}
		return "", nil
	}
	if msg := typeError(f.in.Type, v.String()); msg != "" {
		return msg, nil
	}
	return patternError(f.in, v.String()), nil
}

type selectField struct{ in script.Input }

func (f selectField) input() script.Input     { return f.in }
func (f selectField) kind() script.FieldKind { return script.FieldSelect }

func (f selectField) accepts(v script.Value) bool { return v.Kind() == script.KindScalar }

func (f selectField) validate(v script.Value) (string, []string) {
	if v.IsEmpty() {
		if f.in.Required {
			return MsgRequired, nil
		}
		return "", nil
	}
	if !slices.Contains(f.in.Options, v.String()) {
		return MsgInvalidOption, nil
	}
	return patternError(f.in, v.String()), nil
}

type arrayField struct{ in script.Input }

func (f arrayField) input() script.Input     { return f.in }
func (f arrayField) kind() script.FieldKind { return script.FieldArray }

func (f arrayField) accepts(v script.Value) bool { return v.Kind() == script.KindList }

func (f arrayField) validate(v script.Value) (string, []string) {
	if v.IsEmpty() {
		if f.in.Required {
			return MsgRequired, nil
		}
		return "", nil
	}
	for _, item := range v.Items() {
		if msg := patternError(f.in, item); msg != "" {
			return fmt.Sprintf("%s: %s", item, msg), nil
		}
	}
	return "", nil
}

type tableField struct{ in script.Input }

func (f tableField) input() script.Input     { return f.in }
func (f tableField) kind() script.FieldKind { return script.FieldTable }

func (f tableField) accepts(v script.Value) bool { return v.Kind() == script.KindTable }

func (f tableField) validate(v script.Value) (string, []string) {
	rows := v.Rows()
	rowErrs := make([]string, len(rows))
	failing := false
	for i, row := range rows {
		rowErrs[i] = f.validateRow(row)
		if rowErrs[i] != "" {
			failing = true
		}
	}

	switch {
	case len(rows) == 0 && f.in.Required:
		return MsgTableRowRequired, rowErrs
	case failing:
		return MsgTableRowErrors, rowErrs
	default:
		return "", rowErrs
	}
}

// validateRow flags empty required cells and unknown select options before
// handing the row to the declared row validator.
func (f tableField) validateRow(row script.Row) string {
	for _, col := range f.in.Columns {
		cell := strings.TrimSpace(row[col.Key])
		if cell == "" {
			if col.Required {
				return fmt.Sprintf("%s is required", columnLabel(col))
			}
			continue
		}
		if col.Type == script.TypeSelect && !slices.Contains(col.Options, cell) {
			return fmt.Sprintf("%s: %s", columnLabel(col), MsgInvalidOption)
		}
		if msg := typeError(col.Type, cell); msg != "" {
			return fmt.Sprintf("%s: %s", columnLabel(col), msg)
		}
	}
	if f.in.ValidateRow == nil {
		return ""
	}
	return runRowValidator(f.in.ValidateRow, row)
}

func columnLabel(col script.Column) string {
	if col.Label != "" {
		return col.Label
	}
	return col.Key
}

// typeError checks text against the declared input type. Text and select
// inputs accept anything here.
func typeError(t script.InputType, text string) string {
	text = strings.TrimSpace(text)
	switch t {
	case script.TypeNumber:
		n, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return MsgInvalidNumber
		}
	case script.TypeDate:
		if _, err := time.Parse(script.DateLayout, text); err != nil {
			return MsgInvalidDate
		}
	}
	return ""
}

func patternError(in script.Input, text string) string {
	if in.Pattern == nil || in.Pattern.MatchString(text) {
		return ""
	}
	if in.PatternMessage != "" {
		return in.PatternMessage
	}
	return MsgInvalid
}

func runRowValidator(fn script.RowValidator, row script.Row) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = MsgValidatorFailed
		}
	}()
	if err := fn(row.Clone()); err != nil {
		return err.Error()
	}
	return ""
}

func runSectionValidator(fn script.SectionValidator, values script.Values) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = MsgValidatorFailed
		}
	}()
	if err := fn(values); err != nil {
		return err.Error()
	}
	return ""
}
