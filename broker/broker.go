// Package broker abstracts the input stream a mapper reads from. The real
// broker (a Redis-backed stream/consumer-group store in the reference
// system) is an external collaborator out of scope for this module's core;
// it is always an explicit parameter passed to each worker rather than a
// package-level singleton (the reference wraps a process-wide redis
// client), so this package only defines the narrow Cursor/Partition
// surface a Mapper actually needs and one in-memory implementation for
// tests and demos.
package broker

// Cursor is an opaque position into a partition's record stream. The zero
// value is the start of the stream, matching last_stream_id's initial
// b"0" in the reference mapper.
type Cursor string

// StartCursor is the cursor a mapper begins reading from before any
// record has been consumed.
const StartCursor Cursor = "0"

// Record is one unit of input text.
type Record struct {
	ID   Cursor
	Text string
}

// Partition is a single mapper's view of the broker: one ordered stream of
// records.
type Partition interface {
	// Next returns the record immediately after cursor. ok is false once
	// the partition is drained (all current records have been consumed).
	Next(cursor Cursor) (rec Record, ok bool, err error)
}

// Broker hands a Mapper its assigned Partition by index.
type Broker interface {
	Partition(idx int) Partition
}
