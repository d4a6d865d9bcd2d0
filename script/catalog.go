package script

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	scriptdesk "github.com/goliatone/go-scriptdesk"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.schema.json
var catalogSchema string

// CatalogDocument is the YAML shape of a script catalog.
type CatalogDocument struct {
	Scripts []DefinitionDocument `yaml:"scripts"`
}

type DefinitionDocument struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Type        string            `yaml:"type"`
	Tags        []string          `yaml:"tags"`
	Sections    []SectionDocument `yaml:"sections"`
}

type SectionDocument struct {
	ID     string          `yaml:"id"`
	Title  string          `yaml:"title"`
	Inputs []InputDocument `yaml:"inputs"`
	Rules  []RuleSpec      `yaml:"rules"`
}

type InputDocument struct {
	Name           string           `yaml:"name"`
	Label          string           `yaml:"label"`
	Type           InputType        `yaml:"type"`
	Required       bool             `yaml:"required"`
	Options        []string         `yaml:"options"`
	Pattern        string           `yaml:"pattern"`
	PatternMessage string           `yaml:"pattern_message"`
	Array          bool             `yaml:"array"`
	Table          bool             `yaml:"table"`
	Columns        []ColumnDocument `yaml:"columns"`
	RowRules       []RuleSpec       `yaml:"row_rules"`
}

type ColumnDocument struct {
	Key      string    `yaml:"key"`
	Label    string    `yaml:"label"`
	Type     InputType `yaml:"type"`
	Options  []string  `yaml:"options"`
	Required bool      `yaml:"required"`
}

// Catalog is the ordered, read-only set of script definitions.
type Catalog struct {
	defs  []Definition
	index map[string]int
}

// NewCatalog validates defs and indexes them by id.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{index: make(map[string]int, len(defs))}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.index[d.ID]; dup {
			return nil, scriptdesk.CloneError(
				scriptdesk.ErrCatalogInvalid,
				fmt.Sprintf("script %s declared twice", d.ID),
				nil,
				map[string]any{"script_id": d.ID},
			)
		}
		c.index[d.ID] = len(c.defs)
		c.defs = append(c.defs, d.Clone())
	}
	return c, nil
}

func (c *Catalog) Get(id string) (Definition, error) {
	if c != nil {
		if i, ok := c.index[id]; ok {
			return c.defs[i].Clone(), nil
		}
	}
	return Definition{}, scriptdesk.CloneError(scriptdesk.ErrScriptNotFound, "", nil, map[string]any{"script_id": id})
}

func (c *Catalog) All() []Definition {
	if c == nil {
		return nil
	}
	out := make([]Definition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d.Clone())
	}
	return out
}

// Search filters by case-insensitive substring on name or tag, keeping order.
func (c *Catalog) Search(query string) []Definition {
	if c == nil {
		return nil
	}
	var out []Definition
	for _, d := range c.defs {
		if d.Matches(query) {
			out = append(out, d.Clone())
		}
	}
	return out
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.defs)
}

// LoadCatalog parses a YAML catalog, checks it against the catalog schema
// and compiles patterns and rules with the built-in rule set.
func LoadCatalog(data []byte) (*Catalog, error) {
	return LoadCatalogWithRules(data, NewRules())
}

func LoadCatalogWithRules(data []byte, rules *Rules) (*Catalog, error) {
	if rules == nil {
		rules = NewRules()
	}
	if err := ValidateCatalogSchema(data); err != nil {
		return nil, err
	}

	var doc CatalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, scriptdesk.CloneError(scriptdesk.ErrCatalogInvalid, "decode catalog", err, nil)
	}

	defs := make([]Definition, 0, len(doc.Scripts))
	for _, sd := range doc.Scripts {
		def, err := sd.build(rules)
		if err != nil {
			return nil, scriptdesk.CloneError(
				scriptdesk.ErrCatalogInvalid,
				fmt.Sprintf("script %s: %v", sd.ID, err),
				err,
				map[string]any{"script_id": sd.ID},
			)
		}
		defs = append(defs, def)
	}
	return NewCatalog(defs...)
}

// ValidateCatalogSchema checks the raw YAML document shape.
func ValidateCatalogSchema(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return scriptdesk.CloneError(scriptdesk.ErrCatalogInvalid, "decode catalog", err, nil)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return scriptdesk.CloneError(scriptdesk.ErrCatalogInvalid, "catalog is not representable as JSON", err, nil)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(catalogSchema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return scriptdesk.CloneError(scriptdesk.ErrCatalogInvalid, "validate catalog schema", err, nil)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return scriptdesk.CloneError(
		scriptdesk.ErrCatalogInvalid,
		"catalog schema validation failed: "+strings.Join(problems, "; "),
		nil,
		map[string]any{"problems": problems},
	)
}

func (sd DefinitionDocument) build(rules *Rules) (Definition, error) {
	def := Definition{
		ID:          sd.ID,
		Name:        sd.Name,
		Description: sd.Description,
		Type:        sd.Type,
		Tags:        sd.Tags,
	}
	for _, secDoc := range sd.Sections {
		sec := Section{ID: secDoc.ID, Title: secDoc.Title}
		for _, inDoc := range secDoc.Inputs {
			in, err := inDoc.build(rules)
			if err != nil {
				return def, err
			}
			sec.Inputs = append(sec.Inputs, in)
		}
		validate, err := rules.BuildSection(secDoc.Rules, sec)
		if err != nil {
			return def, err
		}
		sec.Validate = validate
		def.Sections = append(def.Sections, sec)
	}
	return def, nil
}

func (id InputDocument) build(rules *Rules) (Input, error) {
	in := Input{
		Name:           id.Name,
		Label:          id.Label,
		Type:           id.Type,
		Required:       id.Required,
		Options:        id.Options,
		PatternMessage: id.PatternMessage,
		IsArray:        id.Array,
		IsTable:        id.Table,
	}
	if in.Label == "" {
		in.Label = id.Name
	}
	if id.Pattern != "" {
		re, err := regexp.Compile(id.Pattern)
		if err != nil {
			return in, fmt.Errorf("input %s pattern: %w", id.Name, err)
		}
		in.Pattern = re
	}
	for _, cd := range id.Columns {
		col := Column(cd)
		if col.Label == "" {
			col.Label = col.Key
		}
		in.Columns = append(in.Columns, col)
	}
	validateRow, err := rules.BuildRow(id.RowRules, in)
	if err != nil {
		return in, err
	}
	in.ValidateRow = validateRow
	return in, nil
}
