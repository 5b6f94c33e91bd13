// Package retry provides exponential backoff for transient failures.
//
// Two shapes are offered:
//
//   - Do runs a function until it succeeds, a NonRetryable error is returned,
//     the context ends or MaxAttempts is reached. The file writer uses it to
//     retry batch writes.
//   - Backoff hands out the delay sequence explicitly. The TCP connection
//     manager drives it from its state machine: Next before each reconnect,
//     Reset after a connection is established.
//
// Presets:
//
//   - DefaultConfig(): 3 attempts, 100ms-5s
//   - Reconnect(): unbounded, 1s-30s
//
// Example:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return writeFile(path, data)
//	})
package retry
