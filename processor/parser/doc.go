// Package parser turns raw device lines into typed records.
//
// An Extractor receives one line (terminator already stripped) and its arrival
// time and returns a message.Record aligned with the schema's fields, or a
// *ParseFailure. Failures are recoverable: callers drop the line, count it and
// carry on reading.
//
// RegexExtractor is the only implementation. The pattern is compiled once by
// message.NewSchema; every named capture group is a field and every field is
// coerced to its declared kind:
//
//	schema, _ := message.NewSchema(message.SchemaConfig{
//	    Pattern:    `^(?P<u>\S+)\s+(?P<v>\S+)\s+(?P<w>\S+)\s+(?P<t>\S+)\s*$`,
//	    Types:      map[string]message.Kind{"u": message.KindFloat, "v": message.KindFloat, "w": message.KindFloat, "t": message.KindFloat},
//	    PackLength: 12000,
//	})
//	ex := parser.NewRegexExtractor(schema)
//	rec, err := ex.Extract([]byte("1.25 -0.50 0.03 19.80"), time.Now())
//
// Matching is unanchored unless the pattern anchors itself. When a name is
// used by several groups in alternation, the first group that participated in
// the match supplies the value. The schema multiplier scales float fields other
// than the grouping field.
//
// Failure reasons:
//
//   - NoMatch: the pattern did not match (often a partial first line after a reconnect)
//   - MissingField: a declared field's group did not take part in the match
//   - TypeMismatch: the captured token could not be coerced; Err holds the *message.CoercionError
package parser
