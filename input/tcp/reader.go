package tcp

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"time"

	"golang.org/x/text/encoding"

	"github.com/c360/readport/errors"
)

// Line is one newline-terminated message with its terminator stripped
type Line struct {
	Data  []byte
	At    time.Time // arrival time of the chunk that completed the line
	Fresh bool      // first line of a new connection, often a partial message
}

// deadlineReader re-arms the idle deadline before every socket read, so the
// timeout measures silence rather than total connection time.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if d.timeout > 0 {
		if err := d.conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
			return 0, err
		}
	}
	return d.conn.Read(p)
}

// lineReader splits a byte stream into lines of at most max bytes
type lineReader struct {
	br      *bufio.Reader
	decoder *encoding.Decoder
	tooLong int
}

func newLineReader(r io.Reader, max int, decoder *encoding.Decoder) *lineReader {
	// room for the \r\n terminator on a line of exactly max bytes
	return &lineReader{
		br:      bufio.NewReaderSize(r, max+2),
		decoder: decoder,
	}
}

// next returns the next complete line. An unterminated tail left when the
// stream ends is dropped. Oversized lines are skipped up to their terminator
// and reported once each with errors.ErrLineTooLong.
func (lr *lineReader) next() ([]byte, error) {
	discarding := false
	for {
		chunk, err := lr.br.ReadSlice('\n')
		switch {
		case err == bufio.ErrBufferFull:
			discarding = true
			continue
		case err != nil:
			return nil, err
		case discarding:
			lr.tooLong++
			return nil, errors.ErrLineTooLong
		}

		line := bytes.TrimSuffix(chunk[:len(chunk)-1], []byte{'\r'})
		if lr.decoder != nil {
			decoded, derr := lr.decoder.Bytes(line)
			if derr != nil {
				return nil, derr
			}
			return decoded, nil
		}
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
}
