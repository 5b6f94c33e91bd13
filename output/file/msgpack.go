package file

import (
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/c360/readport/message"
	"github.com/c360/readport/processor/pack"
)

const msgpackVersion = 1

// Document is the layout of a msgpack batch file
type Document struct {
	Format  string         `msgpack:"format"`
	Version int            `msgpack:"version"`
	RunID   string         `msgpack:"run_id"`
	Device  string         `msgpack:"device"`
	Group   string         `msgpack:"group"`
	Created float64        `msgpack:"created"`
	Fields  []FieldInfo    `msgpack:"fields"`
	Rows    int            `msgpack:"rows"`
	Columns map[string]any `msgpack:"columns"`
}

// FieldInfo describes one column of a Document
type FieldInfo struct {
	Name string `msgpack:"name"`
	Kind string `msgpack:"kind"`
}

// msgpackEncoder writes a self-describing MessagePack document. Unlike npz it
// supports text fields.
type msgpackEncoder struct{}

func (msgpackEncoder) Extension() string { return FormatMsgpack }

func (msgpackEncoder) Encode(w io.Writer, schema *message.Schema, meta Meta, batch pack.Batch) error {
	cols, times, err := columns(schema, batch)
	if err != nil {
		return err
	}

	doc := Document{
		Format:  "readport",
		Version: msgpackVersion,
		RunID:   meta.RunID,
		Device:  meta.Device,
		Group:   batch.GroupKey,
		Created: message.EpochSeconds(meta.Created),
		Fields:  make([]FieldInfo, 0, len(cols)+1),
		Rows:    len(batch.Records),
		Columns: make(map[string]any, len(cols)+1),
	}
	for _, c := range cols {
		doc.Fields = append(doc.Fields, FieldInfo{Name: c.name, Kind: c.kind.String()})
		doc.Columns[c.name] = c.values()
	}
	doc.Fields = append(doc.Fields, FieldInfo{Name: message.TimeField, Kind: message.KindFloat.String()})
	doc.Columns[message.TimeField] = times

	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	return enc.Encode(&doc)
}
