package retry

import (
	"time"
)

// Backoff hands out the delays of an exponential backoff sequence.
// Delays are never zero and never decrease until Reset is called, including
// once the sequence reaches MaxDelay with jitter enabled.
// A Backoff is not safe for concurrent use.
type Backoff struct {
	cfg      Config
	base     time.Duration
	last     time.Duration
	attempts int
}

// NewBackoff creates a backoff sequence from cfg. MaxAttempts bounds how many
// delays Next hands out; 0 means unbounded.
func NewBackoff(cfg Config) (*Backoff, error) {
	validated, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	b := &Backoff{cfg: validated}
	b.Reset()
	return b, nil
}

// Next returns the delay to wait before the next attempt. The second result
// is false once MaxAttempts delays have been handed out.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.cfg.MaxAttempts > 0 && b.attempts >= b.cfg.MaxAttempts {
		return 0, false
	}
	b.attempts++

	delay := b.base
	if b.cfg.AddJitter && delay >= 4 {
		randMu.Lock()
		jitter := time.Duration(randSource.Int63n(int64(delay / 4)))
		randMu.Unlock()
		delay += jitter
	}
	if delay < b.last {
		delay = b.last
	}
	b.last = delay

	next := float64(b.base) * b.cfg.Multiplier
	if next > float64(b.cfg.MaxDelay) {
		b.base = b.cfg.MaxDelay
	} else {
		b.base = time.Duration(next)
	}

	return delay, true
}

// Reset restarts the sequence at InitialDelay, typically after a success
func (b *Backoff) Reset() {
	b.base = b.cfg.InitialDelay
	b.last = 0
	b.attempts = 0
}

// Attempts returns how many delays were handed out since the last Reset
func (b *Backoff) Attempts() int {
	return b.attempts
}
