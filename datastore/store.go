// Package datastore defines the Store contract event data lives behind
// (spec.md §4.A) and the chunked-range helpers its backends share.
package datastore

import (
	"context"

	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
)

// StreamClosedEventType is the event_type streamstate writes as the final
// event of a stream it closes (spec.md §4.F). An Append whose target
// stream's last committed event carries this type must fail with
// *ledgererr.EventStreamClosed rather than writing past it (spec.md §4.A).
const StreamClosedEventType = "StreamClosed"

// ContinuationMetadataKey is the Event.Metadata key streamstate sets on a
// StreamClosed event naming the stream that continues it.
const ContinuationMetadataKey = "continuationStreamId"

// CheckNotClosed inspects the last committed event of a stream (nil for an
// empty stream) and returns *ledgererr.EventStreamClosed when it is a
// StreamClosed event. Every backend's Append calls this before writing.
func CheckNotClosed(streamIdentifier string, last *model.Event) error {
	if last == nil || last.EventType != StreamClosedEventType {
		return nil
	}
	continuation, _ := last.Metadata[ContinuationMetadataKey].(string)
	return &ledgererr.EventStreamClosed{StreamIdentifier: streamIdentifier, Continuation: continuation}
}

// Store appends and reads the raw event sequence of one stream. It never
// sees the object-document; callers pass the stream alone so a Store
// implementation has no manifest-shaped assumptions baked in.
type Store interface {
	// Append writes events in order at versions
	// [stream.CurrentStreamVersion+1 .. +len(events)]. Each event's
	// EventVersion must already equal its final position; the store does
	// not renumber. When preserveTimestamp is false the store stamps its
	// own write time over Event.Timestamp; when true the caller's
	// timestamp is kept (used by restore).
	Append(ctx context.Context, stream model.Stream, preserveTimestamp bool, events []model.Event) error

	// Read returns events in [startVersion, untilVersion] inclusive. A
	// negative untilVersion means "through the end of the stream" (event
	// versions themselves are never negative, so -1 is an unambiguous
	// sentinel). Reading a stream that does not exist yet returns an
	// empty slice, not an error.
	Read(ctx context.Context, stream model.Stream, startVersion, untilVersion int64) ([]model.Event, error)

	// ReadAsStream is Read's lazily-yielded sibling: each event is
	// delivered to yield as it is decoded, so a caller can stop early
	// without paying for the whole range. Returning a non-nil error from
	// yield stops iteration and is returned from ReadAsStream.
	ReadAsStream(ctx context.Context, stream model.Stream, startVersion, untilVersion int64, yield func(model.Event) error) error

	// RemoveEventsForFailedCommit idempotently deletes the contiguous
	// range [fromVersion, toVersion] and returns the count actually
	// removed. Called only by the session cleanup path; must never touch
	// events outside the range.
	RemoveEventsForFailedCommit(ctx context.Context, stream model.Stream, fromVersion, toVersion int64) (int, error)
}

// ChunkRange is the inclusive [from, to] span of chunk indexes a version
// range touches, used by chunk-aware backends to know which storage units
// to visit.
type ChunkRange struct {
	From int
	To   int
}

// CoveringChunks returns the chunk indexes that [startVersion,
// untilVersion] spans under settings. Callers must resolve a negative
// (unbounded) untilVersion against the stream's current version before
// calling this.
func CoveringChunks(settings model.ChunkSettings, startVersion, untilVersion int64) ChunkRange {
	return ChunkRange{
		From: settings.ChunkIndex(startVersion),
		To:   settings.ChunkIndex(untilVersion),
	}
}
