package devicesim

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/c360/readport/pkg/retry"
)

// SonicPattern extracts the fields of a Sonic message. The leading STX and
// trailing ETX control bytes are matched loosely.
const SonicPattern = `^\x02Q,(?P<u>[-+]?\d+\.\d+),(?P<v>[-+]?\d+\.\d+),(?P<w>[-+]?\d+\.\d+),M,(?P<temp>[-+]?\d+\.\d+),(?P<id>\d+),\x03(?P<checksum>[0-9A-F]{2})$`

// Sonic emits messages shaped like a sonic anemometer's:
//
//	\x02Q,+000.079,-000.102,+000.095,M,+014.94,0000001,\x030F\r\n
//
// Message ids are sequential per connection starting at 0.
type Sonic struct {
	// Frequency is the approximate number of messages per second; 0 sends
	// as fast as the connection accepts them.
	Frequency float64
	// Broken splits every message at a random point across two writes and
	// starts the session with the tail of a message.
	Broken bool
	// Count stops the session after that many messages; 0 is unlimited.
	Count int
	// Seed makes the generated values reproducible when non-zero.
	Seed int64
}

// Serve implements Handler
func (s Sonic) Serve(ctx context.Context, conn net.Conn) error {
	seed := s.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gen := NewSonicGenerator(rand.New(rand.NewSource(seed)), s.Broken)

	var delay time.Duration
	if s.Frequency > 0 {
		delay = time.Duration(float64(time.Second) / s.Frequency)
	}

	for i := 0; s.Count == 0 || i < s.Count; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := conn.Write(gen.Next()); err != nil {
			return err
		}
		if delay > 0 {
			if err := retry.Sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	if rest := gen.Pending(); len(rest) > 0 {
		if _, err := conn.Write(rest); err != nil {
			return err
		}
	}
	return nil
}

// SonicGenerator produces the byte chunks a Sonic session writes
type SonicGenerator struct {
	rnd     *rand.Rand
	broken  bool
	id      int
	pending []byte
}

// NewSonicGenerator creates a generator drawing values from rnd
func NewSonicGenerator(rnd *rand.Rand, broken bool) *SonicGenerator {
	return &SonicGenerator{rnd: rnd, broken: broken}
}

// Message formats one complete message with the given id
func (g *SonicGenerator) Message(id int) []byte {
	precision := 2 + g.rnd.Intn(2)
	width := 5 + precision
	values := make([]any, 0, 4)
	for i := 0; i < 4; i++ {
		values = append(values, width, precision, g.rnd.Float64()*199.98-99.99)
	}
	return []byte(fmt.Sprintf("\x02Q,%+0*.*f,%+0*.*f,%+0*.*f,M,%+0*.*f,%07d,\x03%02X\r\n",
		append(values, id, g.rnd.Intn(256))...))
}

// Next returns the next chunk to write
func (g *SonicGenerator) Next() []byte {
	msg := g.Message(g.id)
	first := g.id == 0
	g.id++
	if !g.broken {
		return msg
	}

	cut := 1 + g.rnd.Intn(len(msg)-1)
	if first {
		// the session opens mid-message
		return msg[len(msg)-cut:]
	}
	chunk := append(g.pending, msg[:cut]...)
	g.pending = append([]byte(nil), msg[cut:]...)
	return chunk
}

// Pending returns the held-back tail in broken mode
func (g *SonicGenerator) Pending() []byte {
	return g.pending
}
