// Package message defines the data model of the collector: field kinds, the
// closed Value variant, type coercion, the validated message Schema and the
// parsed Record.
//
// Value is a tagged variant over int, float and text. Code that consumes
// values switches on Kind; there is no reflection on field types.
//
// Schemas are built once from configuration with NewSchema and never change:
//
//	schema, err := message.NewSchema(message.SchemaConfig{
//	    Pattern:    `^(?P<level>\S+) RH= *(?P<rh>\S+) %RH T= *(?P<temp>\S+) .C\s*$`,
//	    Types:      map[string]message.Kind{"rh": message.KindFloat, "temp": message.KindFloat},
//	    GroupBy:    &message.GroupBy{Field: "level", Kind: message.KindInt},
//	    PackLength: 12000,
//	})
//
// The field name "time" is reserved: every record carries its arrival time
// and output files store it as a float64 column of seconds since the epoch.
package message
