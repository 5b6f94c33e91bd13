package component

import (
	"sync"
	"time"
)

// RateTracker turns monotonically increasing counters into per-second rates
// for FlowMetrics. Each call to Rates measures the change since the previous
// call; the first call measures since creation.
type RateTracker struct {
	mu       sync.Mutex
	last     time.Time
	messages int64
	bytes    int64
	now      func() time.Time
}

// NewRateTracker creates a tracker starting now
func NewRateTracker() *RateTracker {
	return newRateTracker(time.Now)
}

func newRateTracker(now func() time.Time) *RateTracker {
	return &RateTracker{last: now(), now: now}
}

// Rates returns messages and bytes per second given the current totals
func (r *RateTracker) Rates(messages, bytes int64) (msgsPerSec, bytesPerSec float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	elapsed := now.Sub(r.last).Seconds()
	if elapsed <= 0 {
		return 0, 0
	}

	msgsPerSec = float64(messages-r.messages) / elapsed
	bytesPerSec = float64(bytes-r.bytes) / elapsed
	r.last = now
	r.messages = messages
	r.bytes = bytes
	return msgsPerSec, bytesPerSec
}
