package file

import (
	"fmt"
	"io"
	"time"

	"github.com/c360/readport/errors"
	"github.com/c360/readport/message"
	"github.com/c360/readport/processor/pack"
)

// Meta identifies where a batch came from
type Meta struct {
	RunID   string
	Device  string
	Created time.Time
}

// Encoder serialises one batch field-major
type Encoder interface {
	// Extension is the file name extension without the dot
	Extension() string
	Encode(w io.Writer, schema *message.Schema, meta Meta, batch pack.Batch) error
}

// NewEncoder returns the encoder for a configured format
func NewEncoder(format string) (Encoder, error) {
	switch format {
	case FormatNPZ, "":
		return npzEncoder{}, nil
	case FormatMsgpack:
		return msgpackEncoder{}, nil
	default:
		return nil, errors.Invalidf("Encoder", "NewEncoder", "unknown format %q", format)
	}
}

// column is one field of a batch in a typed slice
type column struct {
	name string
	kind message.Kind
	ints []int64
	flts []float64
	txts []string
}

func (c column) values() any {
	switch c.kind {
	case message.KindInt:
		return c.ints
	case message.KindFloat:
		return c.flts
	default:
		return c.txts
	}
}

// columns transposes the batch into one typed slice per field, plus the
// arrival time as float seconds
func columns(schema *message.Schema, batch pack.Batch) ([]column, []float64, error) {
	n := schema.NumFields()
	rows := len(batch.Records)

	cols := make([]column, n)
	for i := range cols {
		name, kind := schema.Field(i)
		cols[i] = column{name: name, kind: kind}
		switch kind {
		case message.KindInt:
			cols[i].ints = make([]int64, rows)
		case message.KindFloat:
			cols[i].flts = make([]float64, rows)
		default:
			cols[i].txts = make([]string, rows)
		}
	}

	times := make([]float64, rows)
	for r, rec := range batch.Records {
		if len(rec.Values) != n {
			return nil, nil, fmt.Errorf("record %d has %d values, schema has %d fields", r, len(rec.Values), n)
		}
		times[r] = message.EpochSeconds(rec.Time)
		for i, v := range rec.Values {
			if v.Kind() != cols[i].kind {
				return nil, nil, fmt.Errorf("record %d field %q is %s, want %s", r, cols[i].name, v.Kind(), cols[i].kind)
			}
			switch v.Kind() {
			case message.KindInt:
				cols[i].ints[r] = v.Int()
			case message.KindFloat:
				cols[i].flts[r] = v.Float()
			default:
				cols[i].txts[r] = v.Text()
			}
		}
	}
	return cols, times, nil
}
