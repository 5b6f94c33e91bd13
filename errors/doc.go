// Package errors provides standardized error handling for the collector.
//
// # Classification
//
// Errors fall into three classes that drive recovery decisions:
//
//   - Transient: refused or reset connections, idle timeouts, disk hiccups.
//     The connection manager reconnects, the file writer retries.
//   - Invalid: lines that do not match the message pattern, values that cannot
//     be coerced, malformed configuration. The line is dropped and reported,
//     or startup is refused.
//   - Fatal: the process cannot continue (disk full).
//
// # Usage
//
// Wrap errors with the component and operation that failed:
//
//	if err := dial(); err != nil {
//	    return errors.WrapTransient(err, "tcp-input", "connect", "dial device")
//	}
//
// Startup validation uses Invalidf, which wraps ErrInvalidConfig:
//
//	return errors.Invalidf("Schema", "Validate", "pack_length must be >= 1, got %d", n)
//
// Check the class with IsTransient, IsInvalid, IsFatal or Classify. All helpers
// work through wrapping chains built with fmt.Errorf("%w") and errors.Join.
package errors
