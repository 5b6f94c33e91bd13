package parser

import (
	"time"

	"github.com/c360/readport/message"
)

// Extractor turns one line into a typed record.
// Implementations must be safe for concurrent use and must not panic on any input.
type Extractor interface {
	Extract(line []byte, at time.Time) (message.Record, error)
	Schema() *message.Schema
}

// RegexExtractor extracts fields with the schema's compiled pattern
type RegexExtractor struct {
	schema *message.Schema
	opts   message.CoerceOptions
	// groupField is the record index of the grouping field, -1 when off
	groupField int
}

// NewRegexExtractor creates an extractor for schema
func NewRegexExtractor(schema *message.Schema) *RegexExtractor {
	groupField := -1
	if g := schema.GroupBy(); g != nil {
		groupField = schema.IndexOf(g.Field)
	}
	return &RegexExtractor{
		schema:     schema,
		opts:       schema.CoerceOptions(),
		groupField: groupField,
	}
}

// Schema returns the schema records are aligned with
func (e *RegexExtractor) Schema() *message.Schema {
	return e.schema
}

// Format names the extraction method
func (e *RegexExtractor) Format() string {
	return "regex"
}

// Extract matches line against the pattern and coerces every declared field.
// Errors are always *ParseFailure.
func (e *RegexExtractor) Extract(line []byte, at time.Time) (message.Record, error) {
	m := e.schema.Regexp().FindSubmatchIndex(line)
	if m == nil {
		return message.Record{}, &ParseFailure{Reason: NoMatch, Line: quoteLine(line)}
	}

	n := e.schema.NumFields()
	values := make([]message.Value, n)
	for i := 0; i < n; i++ {
		name, kind := e.schema.Field(i)

		raw, ok := e.capture(line, m, name)
		if !ok {
			return message.Record{}, &ParseFailure{Reason: MissingField, Line: quoteLine(line), Field: name}
		}

		v, err := message.CoerceWith(raw, kind, e.opts)
		if err != nil {
			return message.Record{}, &ParseFailure{
				Reason:   TypeMismatch,
				Line:     quoteLine(line),
				Field:    name,
				RawValue: raw,
				Err:      err,
			}
		}
		if kind == message.KindFloat && i != e.groupField {
			v = message.FloatValue(v.Float() * e.schema.Multiplier())
		}
		values[i] = v
	}

	rec := message.Record{Time: at, Values: values, GroupKey: message.DefaultGroup}
	if e.groupField >= 0 {
		rec.Group = values[e.groupField]
		rec.GroupKey = rec.Group.String()
	}
	return rec, nil
}

// capture returns the text of the first participating group carrying name
func (e *RegexExtractor) capture(line []byte, m []int, name string) (string, bool) {
	for _, g := range e.schema.GroupIndexes(name) {
		start, end := m[2*g], m[2*g+1]
		if start >= 0 {
			return string(line[start:end]), true
		}
	}
	return "", false
}
