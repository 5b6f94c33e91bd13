package message

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/c360/readport/errors"
)

// TimeField is the reserved name of the arrival timestamp column
const TimeField = "time"

// GroupBy names the field whose coerced value routes records into groups
type GroupBy struct {
	Field string
	Kind  Kind
}

// ParseGroupBy parses the "<field>:<type>" notation used in configuration
// files. An empty string means no grouping and returns nil.
func ParseGroupBy(spec string) (*GroupBy, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	name, kindName, ok := strings.Cut(spec, ":")
	if !ok {
		return nil, errors.Invalidf("GroupBy", "Parse", "group_by %q must have the form <field>:<type>", spec)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.Invalidf("GroupBy", "Parse", "group_by %q has no field name", spec)
	}
	if strings.TrimSpace(kindName) == "" {
		return nil, errors.Invalidf("GroupBy", "Parse", "group_by %q has no type", spec)
	}

	kind, err := ParseKind(kindName)
	if err != nil {
		return nil, err
	}
	return &GroupBy{Field: name, Kind: kind}, nil
}

// String returns the "<field>:<type>" notation
func (g GroupBy) String() string {
	return g.Field + ":" + g.Kind.String()
}

// SchemaConfig is the raw description of a message format
type SchemaConfig struct {
	Pattern        string
	Fields         []string
	Types          map[string]Kind
	GroupBy        *GroupBy
	PackLength     int
	Multiplier     float64
	AllowNonFinite bool
}

// Schema is the validated, immutable description of a message format.
// It is safe for concurrent use.
type Schema struct {
	pattern        *regexp.Regexp
	fields         []string
	kinds          []Kind
	index          map[string]int
	groupIndex     map[string][]int
	groupBy        *GroupBy
	packLength     int
	multiplier     float64
	allowNonFinite bool
}

// NewSchema validates cfg and compiles its pattern. Every failure is an
// invalid-configuration error; a pipeline is never built from a bad schema.
func NewSchema(cfg SchemaConfig) (*Schema, error) {
	if cfg.PackLength < 1 {
		return nil, errors.Invalidf("Schema", "NewSchema", "pack_length must be >= 1, got %d", cfg.PackLength)
	}
	if strings.TrimSpace(cfg.Pattern) == "" {
		return nil, errors.Invalidf("Schema", "NewSchema", "regex is required")
	}

	re, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return nil, errors.Invalidf("Schema", "NewSchema", "invalid regex: %v", err)
	}

	// Map every group name to all of its group indexes; the same name may
	// appear in several alternatives.
	groupIndex := make(map[string][]int)
	var derived []string
	for i, name := range re.SubexpNames() {
		if i == 0 {
			continue
		}
		if name == "" {
			return nil, errors.Invalidf("Schema", "NewSchema",
				"capture group %d is unnamed; use (?P<name>...) or a non-capturing group (?:...)", i)
		}
		if _, seen := groupIndex[name]; !seen {
			derived = append(derived, name)
		}
		groupIndex[name] = append(groupIndex[name], i)
	}
	if len(derived) == 0 {
		return nil, errors.Invalidf("Schema", "NewSchema", "regex has no named capture groups")
	}
	if _, reserved := groupIndex[TimeField]; reserved {
		return nil, errors.Invalidf("Schema", "NewSchema",
			"%q is reserved for the message timestamp and cannot be a capture group", TimeField)
	}

	fields := derived
	if len(cfg.Fields) > 0 {
		fields = make([]string, 0, len(cfg.Fields))
		seen := make(map[string]bool, len(cfg.Fields))
		for _, name := range cfg.Fields {
			if _, ok := groupIndex[name]; !ok {
				return nil, errors.Invalidf("Schema", "NewSchema", "field %q is not a named group of the regex", name)
			}
			if seen[name] {
				return nil, errors.Invalidf("Schema", "NewSchema", "field %q listed twice", name)
			}
			seen[name] = true
			fields = append(fields, name)
		}
	}

	index := make(map[string]int, len(fields))
	for i, name := range fields {
		index[name] = i
	}

	kinds := make([]Kind, len(fields))
	for name, kind := range cfg.Types {
		i, ok := index[name]
		if !ok {
			return nil, errors.Invalidf("Schema", "NewSchema", "type declared for unknown field %q", name)
		}
		if !kind.Valid() {
			return nil, errors.Invalidf("Schema", "NewSchema", "field %q has invalid type %s", name, kind)
		}
		kinds[i] = kind
	}

	var groupBy *GroupBy
	if cfg.GroupBy != nil {
		g := *cfg.GroupBy
		i, ok := index[g.Field]
		if !ok {
			return nil, errors.Invalidf("Schema", "NewSchema", "group_by field %q is not a declared field", g.Field)
		}
		if !g.Kind.Valid() {
			return nil, errors.Invalidf("Schema", "NewSchema", "group_by field %q has invalid type %s", g.Field, g.Kind)
		}
		// An untyped grouping field takes the grouping type; a typed one must agree with it
		if declared, typed := cfg.Types[g.Field]; !typed {
			kinds[i] = g.Kind
		} else if declared != g.Kind {
			return nil, errors.Invalidf("Schema", "NewSchema",
				"group_by field %q is %s but types declares it %s", g.Field, g.Kind, declared)
		}
		groupBy = &g
	}

	multiplier := cfg.Multiplier
	if multiplier == 0 {
		multiplier = 1
	}

	return &Schema{
		pattern:        re,
		fields:         fields,
		kinds:          kinds,
		index:          index,
		groupIndex:     groupIndex,
		groupBy:        groupBy,
		packLength:     cfg.PackLength,
		multiplier:     multiplier,
		allowNonFinite: cfg.AllowNonFinite,
	}, nil
}

// Regexp returns the compiled message pattern
func (s *Schema) Regexp() *regexp.Regexp {
	return s.pattern
}

// Fields returns the ordered field names
func (s *Schema) Fields() []string {
	out := make([]string, len(s.fields))
	copy(out, s.fields)
	return out
}

// NumFields returns the number of declared fields
func (s *Schema) NumFields() int {
	return len(s.fields)
}

// Field returns the name and kind of the i-th field
func (s *Schema) Field(i int) (string, Kind) {
	return s.fields[i], s.kinds[i]
}

// KindOf returns the declared kind of a field
func (s *Schema) KindOf(name string) (Kind, bool) {
	i, ok := s.index[name]
	if !ok {
		return KindText, false
	}
	return s.kinds[i], true
}

// IndexOf returns the position of a field in records, or -1
func (s *Schema) IndexOf(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// GroupIndexes returns the regex group indexes carrying the named field
func (s *Schema) GroupIndexes(name string) []int {
	return s.groupIndex[name]
}

// GroupBy returns the grouping field, or nil when grouping is off
func (s *Schema) GroupBy() *GroupBy {
	if s.groupBy == nil {
		return nil
	}
	g := *s.groupBy
	return &g
}

// PackLength returns the number of records per batch
func (s *Schema) PackLength() int {
	return s.packLength
}

// Multiplier returns the scale applied to float fields
func (s *Schema) Multiplier() float64 {
	return s.multiplier
}

// CoerceOptions returns the coercion policy of this schema
func (s *Schema) CoerceOptions() CoerceOptions {
	return CoerceOptions{AllowNonFinite: s.allowNonFinite}
}

// AllNumeric reports whether every field holds numbers
func (s *Schema) AllNumeric() bool {
	for _, k := range s.kinds {
		if !k.Numeric() {
			return false
		}
	}
	return true
}

// String summarises the schema for logs
func (s *Schema) String() string {
	parts := make([]string, len(s.fields))
	for i, name := range s.fields {
		parts[i] = fmt.Sprintf("%s:%s", name, s.kinds[i])
	}
	group := "none"
	if s.groupBy != nil {
		group = s.groupBy.String()
	}
	return fmt.Sprintf("fields=[%s] group_by=%s pack_length=%d",
		strings.Join(parts, " "), group, s.packLength)
}
