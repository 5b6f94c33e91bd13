package pipeline

import (
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// throttledLogger emits at most burst lines at once and one per interval
// afterwards. Suppressed lines are counted and reported on the next line that
// gets through.
type throttledLogger struct {
	logger     *slog.Logger
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

func newThrottledLogger(logger *slog.Logger, every time.Duration, burst int) *throttledLogger {
	limit := rate.Inf
	if every > 0 {
		limit = rate.Every(every)
	}
	if burst <= 0 {
		burst = 1
	}
	return &throttledLogger{
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Warn logs msg unless the rate is exceeded. It reports whether the line was
// emitted.
func (t *throttledLogger) Warn(msg string, args ...any) bool {
	if !t.limiter.Allow() {
		t.suppressed.Add(1)
		return false
	}
	if n := t.suppressed.Swap(0); n > 0 {
		args = append(args, "suppressed", n)
	}
	t.logger.Warn(msg, args...)
	return true
}

// Suppressed returns the number of lines dropped since the last emitted one
func (t *throttledLogger) Suppressed() int64 {
	return t.suppressed.Load()
}
