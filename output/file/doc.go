// Package file persists record batches as binary array files.
//
// Every batch becomes exactly one new file under the destination directory,
// named
//
//	{prefix}_{group}_{UTC timestamp with microseconds}_{sequence}.{ext}
//
// Files are created exclusively and never overwritten or appended to. The
// sequence number increases for every attempt of a writer, so names are unique
// even when the clock does not advance.
//
// # Formats
//
// npz (default) is a zip archive of deflated NumPy arrays, one "<field>.npy"
// per field plus "time.npy" (float64 seconds since the epoch). It loads with
// numpy.load and matches what numpy.savez_compressed produces. Only int and
// float fields are allowed; Config.Validate rejects schemas with text fields.
//
// msgpack is a single MessagePack Document carrying the run id, device, group,
// the field list with kinds, the row count and one typed column per field.
// It supports text columns.
//
// # Failures
//
// IO failures are retried with exponential backoff (pkg/retry). Encoding
// failures are not retried. When a batch cannot be written it is appended to a
// JSON-lines dead-letter file (default <destination>/deadletter.jsonl) and an
// error is logged with the record count. If the dead-letter append fails too,
// the loss is logged at error level and counted in records_lost_total.
package file
