package script

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format of date inputs.
const DateLayout = "2006-01-02"

// RuleSpec references a registered rule by name with its parameters.
type RuleSpec struct {
	Name   string     `yaml:"name" json:"name"`
	Params RuleParams `yaml:"params" json:"params,omitempty"`
}

// RuleParams holds decoded rule parameters.
type RuleParams map[string]any

func (p RuleParams) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (p RuleParams) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// Float returns the numeric parameter and whether it was set.
func (p RuleParams) Float(key string) (float64, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case float64:
		return n, true, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false, fmt.Errorf("param %s: %w", key, err)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("param %s: unsupported number %T", key, v)
	}
}

// SectionRuleFactory builds a section validator for s from params.
type SectionRuleFactory func(params RuleParams, s Section) (SectionValidator, error)

// RowRuleFactory builds a row validator for the table input in.
type RowRuleFactory func(params RuleParams, in Input) (RowValidator, error)

// Rules stores named section and row rule factories.
type Rules struct {
	section map[string]SectionRuleFactory
	row     map[string]RowRuleFactory
}

// NewRules returns a registry preloaded with the built-in rules.
func NewRules() *Rules {
	r := &Rules{
		section: make(map[string]SectionRuleFactory),
		row:     make(map[string]RowRuleFactory),
	}
	_ = r.RegisterSection("date_order", dateOrderRule)
	_ = r.RegisterSection("number_order", numberOrderRule)
	_ = r.RegisterSection("required_together", requiredTogetherRule)
	_ = r.RegisterRow("pattern", patternRowRule)
	_ = r.RegisterRow("required_columns", requiredColumnsRule)
	_ = r.RegisterRow("number_range", numberRangeRule)
	return r
}

func (r *Rules) RegisterSection(name string, factory SectionRuleFactory) error {
	if name == "" || factory == nil {
		return nil
	}
	if _, exists := r.section[name]; exists {
		return fmt.Errorf("section rule %s already registered", name)
	}
	r.section[name] = factory
	return nil
}

func (r *Rules) RegisterRow(name string, factory RowRuleFactory) error {
	if name == "" || factory == nil {
		return nil
	}
	if _, exists := r.row[name]; exists {
		return fmt.Errorf("row rule %s already registered", name)
	}
	r.row[name] = factory
	return nil
}

// BuildSection resolves specs into one validator reporting the first failure.
func (r *Rules) BuildSection(specs []RuleSpec, s Section) (SectionValidator, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	validators := make([]SectionValidator, 0, len(specs))
	for _, spec := range specs {
		factory, ok := r.section[spec.Name]
		if !ok {
			return nil, fmt.Errorf("section %s: unknown rule %q", s.ID, spec.Name)
		}
		v, err := factory(spec.Params, s)
		if err != nil {
			return nil, fmt.Errorf("section %s rule %s: %w", s.ID, spec.Name, err)
		}
		validators = append(validators, v)
	}
	return ChainSection(validators...), nil
}

// BuildRow resolves specs into one row validator reporting the first failure.
func (r *Rules) BuildRow(specs []RuleSpec, in Input) (RowValidator, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	validators := make([]RowValidator, 0, len(specs))
	for _, spec := range specs {
		factory, ok := r.row[spec.Name]
		if !ok {
			return nil, fmt.Errorf("input %s: unknown row rule %q", in.Name, spec.Name)
		}
		v, err := factory(spec.Params, in)
		if err != nil {
			return nil, fmt.Errorf("input %s rule %s: %w", in.Name, spec.Name, err)
		}
		validators = append(validators, v)
	}
	return ChainRow(validators...), nil
}

func ChainSection(validators ...SectionValidator) SectionValidator {
	return func(values Values) error {
		for _, v := range validators {
			if v == nil {
				continue
			}
			if err := v(values); err != nil {
				return err
			}
		}
		return nil
	}
}

func ChainRow(validators ...RowValidator) RowValidator {
	return func(row Row) error {
		for _, v := range validators {
			if v == nil {
				continue
			}
			if err := v(row); err != nil {
				return err
			}
		}
		return nil
	}
}

func sectionHasInputs(s Section, names ...string) error {
	for _, name := range names {
		found := false
		for _, in := range s.Inputs {
			if in.Name == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("input %q is not part of section %s", name, s.ID)
		}
	}
	return nil
}

func messageOr(params RuleParams, fallback string) string {
	if msg := strings.TrimSpace(params.String("message")); msg != "" {
		return msg
	}
	return fallback
}

// dateOrderRule requires from <= to. Blank dates are left to required checks.
func dateOrderRule(params RuleParams, s Section) (SectionValidator, error) {
	from, to := params.String("from"), params.String("to")
	if from == "" || to == "" {
		return nil, errors.New("from and to are required")
	}
	if err := sectionHasInputs(s, from, to); err != nil {
		return nil, err
	}
	msg := messageOr(params, "start date must be on or before end date")

	return func(values Values) error {
		a, b := strings.TrimSpace(values.Text(from)), strings.TrimSpace(values.Text(to))
		if a == "" || b == "" {
			return nil
		}
		start, err := time.Parse(DateLayout, a)
		if err != nil {
			return fmt.Errorf("%s is not a valid date", from)
		}
		end, err := time.Parse(DateLayout, b)
		if err != nil {
			return fmt.Errorf("%s is not a valid date", to)
		}
		if start.After(end) {
			return errors.New(msg)
		}
		return nil
	}, nil
}

func numberOrderRule(params RuleParams, s Section) (SectionValidator, error) {
	lo, hi := params.String("min"), params.String("max")
	if lo == "" || hi == "" {
		return nil, errors.New("min and max are required")
	}
	if err := sectionHasInputs(s, lo, hi); err != nil {
		return nil, err
	}
	msg := messageOr(params, fmt.Sprintf("%s must not exceed %s", lo, hi))

	return func(values Values) error {
		a, b := strings.TrimSpace(values.Text(lo)), strings.TrimSpace(values.Text(hi))
		if a == "" || b == "" {
			return nil
		}
		x, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number", lo)
		}
		y, err := strconv.ParseFloat(b, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number", hi)
		}
		if x > y {
			return errors.New(msg)
		}
		return nil
	}, nil
}

func requiredTogetherRule(params RuleParams, s Section) (SectionValidator, error) {
	fields := params.Strings("fields")
	if len(fields) < 2 {
		return nil, errors.New("fields needs at least two inputs")
	}
	if err := sectionHasInputs(s, fields...); err != nil {
		return nil, err
	}
	msg := messageOr(params, fmt.Sprintf("%s must be filled together", strings.Join(fields, ", ")))

	return func(values Values) error {
		filled := 0
		for _, f := range fields {
			if !values.Get(f).IsEmpty() {
				filled++
			}
		}
		if filled > 0 && filled < len(fields) {
			return errors.New(msg)
		}
		return nil
	}, nil
}

func patternRowRule(params RuleParams, in Input) (RowValidator, error) {
	column := params.String("column")
	if _, ok := in.Column(column); !ok {
		return nil, fmt.Errorf("unknown column %q", column)
	}
	re, err := regexp.Compile(params.String("pattern"))
	if err != nil {
		return nil, err
	}
	msg := messageOr(params, fmt.Sprintf("%s has an invalid format", column))

	return func(row Row) error {
		v := strings.TrimSpace(row[column])
		if v == "" {
			return nil
		}
		if !re.MatchString(v) {
			return errors.New(msg)
		}
		return nil
	}, nil
}

// requiredColumnsRule checks the listed columns, or every required column
// when none are listed.
func requiredColumnsRule(params RuleParams, in Input) (RowValidator, error) {
	columns := params.Strings("columns")
	if len(columns) == 0 {
		for _, c := range in.Columns {
			if c.Required {
				columns = append(columns, c.Key)
			}
		}
	}
	for _, c := range columns {
		if _, ok := in.Column(c); !ok {
			return nil, fmt.Errorf("unknown column %q", c)
		}
	}

	return func(row Row) error {
		for _, c := range columns {
			if strings.TrimSpace(row[c]) == "" {
				return fmt.Errorf("%s is required", c)
			}
		}
		return nil
	}, nil
}

func numberRangeRule(params RuleParams, in Input) (RowValidator, error) {
	column := params.String("column")
	if _, ok := in.Column(column); !ok {
		return nil, fmt.Errorf("unknown column %q", column)
	}
	lo, hasLo, err := params.Float("min")
	if err != nil {
		return nil, err
	}
	hi, hasHi, err := params.Float("max")
	if err != nil {
		return nil, err
	}
	msg := messageOr(params, fmt.Sprintf("%s is out of range", column))

	return func(row Row) error {
		raw := strings.TrimSpace(row[column])
		if raw == "" {
			return nil
		}
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number", column)
		}
		if (hasLo && n < lo) || (hasHi && n > hi) {
			return errors.New(msg)
		}
		return nil
	}, nil
}
