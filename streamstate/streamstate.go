// Package streamstate implements component F: the stream state machine
// driving live migration (spec.md §4.F). A stream is Open while it is the
// manifest's active stream, Closing while its StreamClosed event is being
// appended, and Closed once the manifest has moved it into
// terminated_streams. Migrate is the only way a stream transitions between
// those states; it is grounded on the same read-modify-write retry shape
// session.commitOnce uses for its manifest write, generalized to also
// retry on newly-arrived tailing events rather than only on an etag
// mismatch.
package streamstate

import (
	"context"
	"errors"

	"eve.evalgo.org/eventledger/datastore"
	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
	"eve.evalgo.org/eventledger/objectdocument"
	"eve.evalgo.org/eventledger/session"
	"eve.evalgo.org/eventledger/telemetry"
)

// Phase is a stream's position in the lifecycle spec.md §4.F names.
type Phase string

const (
	PhaseOpen    Phase = "Open"
	PhaseClosing Phase = "Closing"
	PhaseClosed  Phase = "Closed"
)

// TransformFunc rewrites one event as it is copied from a source stream to
// its continuation. Returning the event unchanged is a pure storage-layout
// migration; anything else lets a migration also change schema_version,
// payload encoding or event_type along the way.
type TransformFunc func(event model.Event) (model.Event, error)

const maxHashConflictRetries = 5

// Migrator drives Migrate over one factory/resolver pair.
type Migrator struct {
	factory *objectdocument.Factory
	stores  session.DataStoreResolver
}

func NewMigrator(factory *objectdocument.Factory, stores session.DataStoreResolver) *Migrator {
	return &Migrator{factory: factory, stores: stores}
}

// Migrate closes (objectName, objectID)'s current active stream and
// replaces it with target, copying every committed event across transform
// along the way. reason is recorded on the resulting terminated-stream
// record. target's CurrentStreamVersion is ignored; Migrate always starts
// it empty.
//
// Writers against the source stream are not blocked: Migrate copies
// whatever is committed so far, then re-reads the source for events that
// landed during the copy, repeating until a pass copies nothing new. Only
// then does it append StreamClosed to the source and swap active, retrying
// the manifest write up to maxHashConflictRetries times. A retry that finds
// its own StreamClosed already at the end of the source skips the copy and
// the close and only rewrites the manifest.
func (m *Migrator) Migrate(ctx context.Context, objectName, objectID, reason string, target model.Stream, transform TransformFunc) (*model.ObjectDocument, error) {
	manifest, err := m.factory.Get(ctx, objectName, objectID)
	if err != nil {
		return nil, err
	}

	targetStore, err := m.stores.Resolve(target.DataStore)
	if err != nil {
		return nil, err
	}
	target.CurrentStreamVersion = -1

	for attempt := 0; ; attempt++ {
		source := manifest.Active
		sourceStore, err := m.stores.Resolve(source.DataStore)
		if err != nil {
			return nil, err
		}

		// A retry after our own close-append already landed (the manifest
		// write that followed it is what's being retried) must not copy or
		// close again; detect that case before touching the source.
		existingClosure, err := m.findClosure(ctx, sourceStore, source)
		if err != nil {
			return nil, err
		}

		switch {
		case existingClosure == nil:
			if err := m.copyFrom(ctx, sourceStore, targetStore, &source, &target, transform); err != nil {
				var closed *ledgererr.EventStreamClosed
				if errors.As(err, &closed) {
					return nil, ledgererr.Wrap(ledgererr.CodeMigrationFailed, "source stream already closed", err)
				}
				return nil, err
			}
			closure := model.Event{
				EventType:    datastore.StreamClosedEventType,
				EventVersion: source.CurrentStreamVersion + 1,
				Metadata:     map[string]interface{}{datastore.ContinuationMetadataKey: target.StreamIdentifier},
			}
			if err := sourceStore.Append(ctx, source, false, []model.Event{closure}); err != nil {
				var closed *ledgererr.EventStreamClosed
				if errors.As(err, &closed) {
					// another migration closed this stream in the window
					// between our check and our append.
					return nil, ledgererr.Wrap(ledgererr.CodeMigrationFailed, "source stream closed by another process", err)
				}
				return nil, err
			}
		case existingClosure.continuation != target.StreamIdentifier:
			return nil, ledgererr.New(ledgererr.CodeMigrationFailed,
				"source stream already closed toward a different continuation: "+existingClosure.continuation)
		}

		updated := *manifest
		updated.CloseActive(reason, target.StreamIdentifier, target)
		if err := updated.Advance(); err != nil {
			return nil, ledgererr.Wrap(ledgererr.CodeMigrationFailed, "recompute manifest hash after close", err)
		}

		committed, setErr := m.factory.Set(ctx, &updated)
		if setErr == nil {
			return committed, nil
		}

		var conflict *ledgererr.OptimisticConcurrencyConflict
		if !errors.As(setErr, &conflict) || attempt >= maxHashConflictRetries {
			telemetry.Logger.WithFields(telemetry.Fields{
				"object_name": objectName,
				"object_id":   objectID,
				"attempt":     attempt,
			}).WithError(setErr).Error("migration manifest commit exhausted retries")
			return nil, ledgererr.Wrap(ledgererr.CodeMigrationFailed, "commit manifest after closing source stream", setErr)
		}

		telemetry.Logger.WithFields(telemetry.Fields{
			"object_name": objectName,
			"object_id":   objectID,
			"attempt":     attempt,
		}).Warn("migration manifest hash conflict, retrying")

		fresh, err := m.factory.Get(ctx, objectName, objectID)
		if err != nil {
			return nil, err
		}
		manifest = fresh
	}
}

type closureInfo struct {
	continuation string
}

// findClosure reports the StreamClosed event at the end of stream, if any.
// copyFrom only ever runs on a stream this returns nil for.
func (m *Migrator) findClosure(ctx context.Context, store datastore.Store, stream model.Stream) (*closureInfo, error) {
	events, err := store.Read(ctx, stream, 0, -1)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	last := events[len(events)-1]
	if last.EventType != datastore.StreamClosedEventType {
		return nil, nil
	}
	continuation, _ := last.Metadata[datastore.ContinuationMetadataKey].(string)
	return &closureInfo{continuation: continuation}, nil
}

// copyFrom copies every event committed to source past what has already
// landed in target, repeating until a pass finds nothing new. A
// StreamClosed event encountered mid-stream means a previous migration
// already closed source out from under this one: copyFrom copies whatever
// precedes it and returns *ledgererr.EventStreamClosed so Migrate can abort
// instead of writing a second closure. It advances both source and target
// in place to reflect what was copied.
func (m *Migrator) copyFrom(ctx context.Context, sourceStore, targetStore datastore.Store, source, target *model.Stream, transform TransformFunc) error {
	copiedSoFar := target.CurrentStreamVersion + 1 // how many events already landed in target
	for {
		pending, err := sourceStore.Read(ctx, *source, copiedSoFar, -1)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		closedAt := -1
		for i, e := range pending {
			if e.EventType == datastore.StreamClosedEventType {
				closedAt = i
				break
			}
		}
		toCopy := pending
		if closedAt >= 0 {
			toCopy = pending[:closedAt]
		}

		if len(toCopy) > 0 {
			toWrite := make([]model.Event, len(toCopy))
			for i, e := range toCopy {
				transformed, err := transform(e)
				if err != nil {
					return ledgererr.Wrap(ledgererr.CodeMigrationFailed, "transform event during migration", err)
				}
				transformed.EventVersion = target.CurrentStreamVersion + 1 + int64(i)
				toWrite[i] = transformed
			}
			if err := targetStore.Append(ctx, *target, true, toWrite); err != nil {
				return err
			}
			target.CurrentStreamVersion += int64(len(toWrite))
			source.CurrentStreamVersion = toCopy[len(toCopy)-1].EventVersion
			copiedSoFar = source.CurrentStreamVersion + 1
		}

		if closedAt >= 0 {
			continuation, _ := pending[closedAt].Metadata[datastore.ContinuationMetadataKey].(string)
			return &ledgererr.EventStreamClosed{StreamIdentifier: source.StreamIdentifier, Continuation: continuation}
		}
	}
}
