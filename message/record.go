package message

import (
	"time"
)

// DefaultGroup is the key of the single group used when grouping is off
const DefaultGroup = "default"

// Record is one parsed message. Values are aligned with the schema's fields.
type Record struct {
	Time   time.Time
	Values []Value
	// Group is the coerced grouping value; the zero Value when grouping is off
	Group Value
	// GroupKey is the string form of Group, or DefaultGroup
	GroupKey string
}

// Get returns the value of a named field
func (r Record) Get(s *Schema, name string) (Value, bool) {
	i := s.IndexOf(name)
	if i < 0 || i >= len(r.Values) {
		return Value{}, false
	}
	return r.Values[i], true
}

// Map returns the record as a field name to value map, including TimeField
// as float seconds since the epoch
func (r Record) Map(s *Schema) map[string]Value {
	out := make(map[string]Value, len(r.Values)+1)
	for i, v := range r.Values {
		name, _ := s.Field(i)
		out[name] = v
	}
	out[TimeField] = FloatValue(EpochSeconds(r.Time))
	return out
}

// EpochSeconds converts t to float seconds since the Unix epoch, the unit of
// the time column in output files
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
