package file

import (
	"archive/zip"
	"fmt"
	"io"

	"github.com/sbinet/npyio"

	"github.com/c360/readport/message"
	"github.com/c360/readport/processor/pack"
)

// npzEncoder writes a compressed NumPy archive: one deflated "<field>.npy"
// entry per field plus "time.npy", readable with numpy.load
type npzEncoder struct{}

func (npzEncoder) Extension() string { return FormatNPZ }

func (npzEncoder) Encode(w io.Writer, schema *message.Schema, meta Meta, batch pack.Batch) error {
	cols, times, err := columns(schema, batch)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	for _, c := range cols {
		if c.kind == message.KindText {
			return fmt.Errorf("field %q is text; npz stores numeric arrays only", c.name)
		}
		if err := writeNPY(zw, c.name, c.values(), meta); err != nil {
			return err
		}
	}
	if err := writeNPY(zw, message.TimeField, times, meta); err != nil {
		return err
	}
	return zw.Close()
}

func writeNPY(zw *zip.Writer, name string, values any, meta Meta) error {
	hdr := &zip.FileHeader{
		Name:     name + ".npy",
		Method:   zip.Deflate,
		Modified: meta.Created,
	}
	entry, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create %s.npy: %w", name, err)
	}
	if err := npyio.Write(entry, values); err != nil {
		return fmt.Errorf("encode %s.npy: %w", name, err)
	}
	return nil
}
