package file

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/c360/readport/message"
	"github.com/c360/readport/processor/pack"
)

// DeadLetterEntry is one line of the dead-letter file: a batch that could not
// be written, kept in a form that can be replayed by hand
type DeadLetterEntry struct {
	Timestamp string           `json:"timestamp"`
	RunID     string           `json:"run_id"`
	Device    string           `json:"device"`
	Group     string           `json:"group"`
	Reason    string           `json:"reason"`
	Error     string           `json:"error"`
	Fields    []string         `json:"fields"`
	Records   []map[string]any `json:"records"`
}

// DeadLetter appends failed batches to a JSON-lines file
type DeadLetter struct {
	path string
	mu   sync.Mutex
}

// NewDeadLetter creates a dead-letter sink; the file is opened per append
func NewDeadLetter(path string) *DeadLetter {
	return &DeadLetter{path: path}
}

// Path returns the dead-letter file location
func (d *DeadLetter) Path() string {
	return d.path
}

// Append writes the batch as one JSON line
func (d *DeadLetter) Append(schema *message.Schema, meta Meta, batch pack.Batch, cause error) error {
	entry := DeadLetterEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RunID:     meta.RunID,
		Device:    meta.Device,
		Group:     batch.GroupKey,
		Reason:    batch.Reason.String(),
		Fields:    append(schema.Fields(), message.TimeField),
		Records:   make([]map[string]any, 0, len(batch.Records)),
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	for _, rec := range batch.Records {
		row := make(map[string]any, len(rec.Values)+1)
		for i, v := range rec.Values {
			if i >= schema.NumFields() {
				break
			}
			name, _ := schema.Field(i)
			row[name] = jsonValue(v)
		}
		row[message.TimeField] = message.EpochSeconds(rec.Time)
		entry.Records = append(entry.Records, row)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(d.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(d.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// jsonValue maps a value to something encoding/json accepts; non-finite
// floats become their string form
func jsonValue(v message.Value) any {
	switch v.Kind() {
	case message.KindInt:
		return v.Int()
	case message.KindFloat:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return f
	default:
		return v.Text()
	}
}
