// Package pipeline wires one device connection to its batch files.
//
// A Pipeline owns every stage for a single device: the TCP connection
// manager, the regex extractor, the grouped record buffer and the file
// writer. Stages are connected by bounded queues (lines, then batches) so a
// slow disk slows ingestion instead of growing memory without limit:
//
//	tcp.Manager --lines--> coordinator (Extract, Admit) --batches--> writer
//
// The writer is a worker.Pool with exactly one worker, which keeps the files
// of a group in arrival order. Lines that do not match the message format are
// counted and logged with a rate limit; they never stop the pipeline.
//
// Shutdown runs in a fixed order. Cancelling the run context (or calling
// Stop) closes the connection first, the coordinator then processes every
// line already received, Buffer.Drain releases each partial group, and the
// writer empties its queue before Stop returns.
//
// Several pipelines in one process share nothing mutable; each registers its
// metrics under its device name and unregisters them on Stop.
package pipeline
