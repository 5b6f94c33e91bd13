// Package readport collects line-oriented telemetry from instruments that
// serve their readings over a plain TCP socket and stores them as batched
// files.
//
// # Data Flow
//
// Every configured device runs its own pipeline:
//
//	┌──────────────┐  lines  ┌──────────┐ records ┌────────────┐ batches ┌─────────────┐
//	│  input/tcp   │────────►│  parser  │────────►│    pack    │────────►│ output/file │
//	│  (reconnect, │         │ (regex,  │         │ (group by, │         │ (npz or     │
//	│ idle timeout)│         │  types)  │         │ pack len)  │         │  msgpack)   │
//	└──────────────┘         └──────────┘         └────────────┘         └─────────────┘
//
// The connection manager reads newline-terminated lines, reconnecting with
// exponential backoff when the peer goes away and immediately when the link
// stays silent longer than the configured timeout. The parser extracts named
// capture groups and coerces them to int, float or text. Records are buffered
// per group value and released once a group holds pack_length records; the
// writer persists each batch to a new file whose name carries the group, the
// time of the first record and a sequence number. Batches that cannot be
// written are appended to a dead-letter file.
//
// On shutdown the input stops first, every partially filled group is flushed
// and the writer finishes its queue before the process exits.
//
// # Packages
//
//   - config: YAML/JSON loading, schema validation, ${device:...} templates
//   - input/tcp: connection manager and line reader
//   - message: field kinds, values, records and the compiled schema
//   - processor/parser: regex field extraction
//   - processor/pack: grouped pack-length buffering
//   - output/file: batch files and the dead-letter log
//   - pipeline: wiring of one device, shutdown ordering
//   - metric, health: Prometheus metrics and the /health endpoint
//   - errors: classified errors (invalid, transient, fatal)
//   - pkg/retry, pkg/worker: backoff and the writer queue
//   - pkg/devicesim: fake instruments for tests and cmd/fakedevice
//
// # Commands
//
//   - cmd/readport: the collector
//   - cmd/fakedevice: a sonic anemometer simulator
package readport
