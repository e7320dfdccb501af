// Package provider defines the data-source contracts the query core
// consumes, and the concrete backends that implement them.
//
// Cursors cross these interfaces as opaque UTF-8 strings. Each backend
// defines its own encoding; the core never inspects it, it only seals and
// unseals the string. The invariant every backend must honour: repeated
// Next calls on a cursor eventually return an empty batch, More reports
// false at that point and true before it.
package provider

import "context"

// BatchedStream is the cursor-paged contract consumed by the stream engine
// host.
type BatchedStream interface {
	// Driver names the backend, for logs and metrics.
	Driver() string

	// Begin returns the serialised initial cursor.
	Begin(ctx context.Context) (string, error)

	// Next advances the cursor by one batch, returning the advanced cursor
	// and zero or more rows.
	Next(ctx context.Context, cursor string) (string, []any, error)

	// More is a non-destructive end-of-stream probe.
	More(ctx context.Context, cursor string) (bool, error)
}

// RowIterator yields rows one at a time for the synchronous table host.
type RowIterator interface {
	// Next returns the next row. ok is false at end of stream.
	Next(ctx context.Context) (row any, ok bool, err error)

	// Close releases the iterator's resources.
	Close() error
}

// TableProvider opens named tables for the synchronous table host.
type TableProvider interface {
	OpenTable(ctx context.Context, name string) (RowIterator, error)
}
