// Package session implements component E: the leased session commit
// engine (spec.md §4.E). A LeasedSession buffers events against one
// stream, assigns their versions, and commits them events-first with
// cleanup-on-failure (the ordering spec.md's correction note calls out
// as the one this implementation follows). Phase tracking is grounded on
// the teacher's statemanager.OperationState: an explicit string-typed
// status advanced by each lifecycle step rather than inferred from other
// fields.
package session

import (
	"context"
	"errors"

	"eve.evalgo.org/eventledger/datastore"
	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
	"eve.evalgo.org/eventledger/objectdocument"
	"eve.evalgo.org/eventledger/telemetry"
)

// Phase is the session's position in the lifecycle diagram of spec.md
// §4.E.
type Phase string

const (
	PhaseOpen       Phase = "Open"
	PhaseBuffered   Phase = "Buffered"
	PhaseCommitting Phase = "Committing"
	PhaseCommitted  Phase = "Committed"
	PhaseFailed     Phase = "Failed"
	PhaseDisposed   Phase = "Disposed"
)

// PreAppendAction inspects a buffered event against the current manifest
// before it is accepted, returning a non-nil error to abort the append
// with *ledgererr.ConstraintException (spec.md §4.E "Constraint
// validation"). manifest is read-only; actions must not mutate it.
type PreAppendAction func(ctx context.Context, manifest *model.ObjectDocument, event model.Event) error

// PostCommitAction runs after events and manifest are durable. A
// non-nil error is recorded but never rolls back the commit (spec.md
// §4.E "Post-commit failures").
type PostCommitAction struct {
	Name string
	Run  func(ctx context.Context, result CommitResult) error
}

// DataStoreResolver resolves a stream's configured data_store name to
// the concrete datastore.Store instance that serves it. Sessions never
// hard-code a backend; the manifest names it, this resolves it.
type DataStoreResolver interface {
	Resolve(dataStoreName string) (datastore.Store, error)
}

// CommitResult summarizes a successful (or post-commit-failed) commit.
type CommitResult struct {
	ObjectName       string
	ObjectID         string
	StreamIdentifier string
	FromVersion      int64
	ToVersion        int64
	Events           []model.Event
	Manifest         *model.ObjectDocument
}

// LeasedSession is the commit engine for one (object_name, object_id).
// Not safe for concurrent use by multiple goroutines: spec.md §5 mandates
// one leased session per task.
type LeasedSession struct {
	factory  *objectdocument.Factory
	stores   DataStoreResolver
	manifest *model.ObjectDocument

	preAppendActions  []PreAppendAction
	postCommitActions []PostCommitAction

	buffered []model.Event
	phase    Phase

	autoRetryClosedStream bool
	closedStreamRetries   int
}

// Options configures a session at Open time.
type Options struct {
	// AutoRetryClosedStream enables the single automatic retry spec.md
	// §4.E describes for EventStreamClosed: reload the manifest, target
	// its new active stream, retry once.
	AutoRetryClosedStream bool
	PreAppendActions      []PreAppendAction
	PostCommitActions     []PostCommitAction
}

// Open acquires a leased session over (objectName, objectID), creating
// the manifest via factory.GetOrCreate when absent.
func Open(ctx context.Context, factory *objectdocument.Factory, stores DataStoreResolver, objectName, objectID, schemaVersion string, newActive func() model.Stream, opts Options) (*LeasedSession, error) {
	manifest, err := factory.GetOrCreate(ctx, objectName, objectID, schemaVersion, newActive)
	if err != nil {
		return nil, err
	}
	return &LeasedSession{
		factory:               factory,
		stores:                stores,
		manifest:               manifest,
		preAppendActions:      opts.PreAppendActions,
		postCommitActions:     opts.PostCommitActions,
		phase:                 PhaseOpen,
		autoRetryClosedStream: opts.AutoRetryClosedStream,
	}, nil
}

// Manifest returns the session's current view of the object-document.
func (s *LeasedSession) Manifest() *model.ObjectDocument { return s.manifest }

// Phase returns the session's current lifecycle phase.
func (s *LeasedSession) Phase() Phase { return s.phase }

// Append runs every registered pre-append action against event and the
// current manifest, then buffers it. EventVersion is assigned at Commit
// time, not here, so multiple Append calls before a Commit don't need to
// know the final count up front.
func (s *LeasedSession) Append(ctx context.Context, event model.Event) error {
	if s.phase == PhaseDisposed || s.phase == PhaseCommitted {
		return ledgererr.New(ledgererr.CodeConstraintViolation, "session is no longer open for append")
	}
	for _, action := range s.preAppendActions {
		if err := action(ctx, s.manifest, event); err != nil {
			return &ledgererr.ConstraintException{Constraint: err.Error()}
		}
	}
	s.buffered = append(s.buffered, event.Clone())
	s.phase = PhaseBuffered
	return nil
}

// Dispose releases the session without committing. Idempotent.
func (s *LeasedSession) Dispose() {
	s.buffered = nil
	s.phase = PhaseDisposed
}

// Commit runs the four-step commit protocol of spec.md §4.E. An empty
// buffer commits trivially, returning the current manifest unchanged.
func (s *LeasedSession) Commit(ctx context.Context) (*CommitResult, error) {
	if len(s.buffered) == 0 {
		return &CommitResult{
			ObjectName:       s.manifest.ObjectName,
			ObjectID:         s.manifest.ObjectID,
			StreamIdentifier: s.manifest.Active.StreamIdentifier,
			FromVersion:      s.manifest.Active.CurrentStreamVersion,
			ToVersion:        s.manifest.Active.CurrentStreamVersion,
			Manifest:         s.manifest,
		}, nil
	}
	s.phase = PhaseCommitting
	result, err := s.commitOnce(ctx)
	if err != nil {
		var closed *ledgererr.EventStreamClosed
		if errors.As(err, &closed) && s.autoRetryClosedStream && s.closedStreamRetries == 0 {
			s.closedStreamRetries++
			if reloadErr := s.reloadForContinuation(ctx); reloadErr != nil {
				s.phase = PhaseFailed
				return nil, reloadErr
			}
			result, err = s.commitOnce(ctx)
		}
	}
	if err != nil {
		s.phase = PhaseFailed
		return nil, err
	}
	s.phase = PhaseCommitted
	s.buffered = nil
	return result, nil
}

// reloadForContinuation re-fetches the manifest after an
// EventStreamClosed error so the next commit attempt targets whatever
// stream is now active, and re-assigns the buffered events against it
// (their previously-assigned versions, if any, are discarded).
func (s *LeasedSession) reloadForContinuation(ctx context.Context) error {
	fresh, err := s.factory.Get(ctx, s.manifest.ObjectName, s.manifest.ObjectID)
	if err != nil {
		return err
	}
	s.manifest = fresh
	return nil
}

func (s *LeasedSession) commitOnce(ctx context.Context) (*CommitResult, error) {
	store, err := s.stores.Resolve(s.manifest.Active.DataStore)
	if err != nil {
		return nil, err
	}

	originalVersion := s.manifest.Active.CurrentStreamVersion
	attemptedVersion := originalVersion + int64(len(s.buffered))

	toAppend := make([]model.Event, len(s.buffered))
	for i, e := range s.buffered {
		clone := e.Clone()
		clone.EventVersion = originalVersion + 1 + int64(i)
		toAppend[i] = clone
	}

	if err := store.Append(ctx, s.manifest.Active, false, toAppend); err != nil {
		return nil, err
	}

	updated := *s.manifest
	updated.Active.CurrentStreamVersion = attemptedVersion
	if err := updated.Advance(); err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeCommitFailed, "recompute manifest hash", err)
	}

	committed, setErr := s.factory.Set(ctx, &updated)
	if setErr != nil {
		logFields := telemetry.Fields{
			"object_name":       s.manifest.ObjectName,
			"object_id":         s.manifest.ObjectID,
			"stream_identifier": s.manifest.Active.StreamIdentifier,
			"cleanup_from":      originalVersion + 1,
			"cleanup_to":        attemptedVersion,
		}
		removed, cleanupErr := store.RemoveEventsForFailedCommit(ctx, s.manifest.Active, originalVersion+1, attemptedVersion)
		if cleanupErr != nil {
			telemetry.Logger.WithFields(logFields).WithError(cleanupErr).
				WithField("manifest_cause", setErr).
				Error("commit cleanup failed, stream marked broken")
			return nil, &ledgererr.CommitCleanupFailed{
				OriginalVersion:  originalVersion,
				AttemptedVersion: attemptedVersion,
				CleanupFrom:      originalVersion + 1,
				CleanupTo:        attemptedVersion,
				CleanupCause:     cleanupErr,
				OriginalCause:    setErr,
			}
		}
		telemetry.Logger.WithFields(logFields).WithField("events_removed", removed).WithError(setErr).
			Warn("commit failed, orphaned events cleaned up")
		return nil, &ledgererr.CommitFailed{
			StreamIdentifier:   s.manifest.Active.StreamIdentifier,
			EventsMayBeWritten: true,
			Cause:              setErr,
		}
	}

	s.manifest = committed
	result := CommitResult{
		ObjectName:       committed.ObjectName,
		ObjectID:         committed.ObjectID,
		StreamIdentifier: committed.Active.StreamIdentifier,
		FromVersion:      originalVersion + 1,
		ToVersion:        attemptedVersion,
		Events:           toAppend,
		Manifest:         committed,
	}

	var succeeded, failed []string
	var lastErr error
	for _, action := range s.postCommitActions {
		if err := action.Run(ctx, result); err != nil {
			failed = append(failed, action.Name)
			lastErr = err
			continue
		}
		succeeded = append(succeeded, action.Name)
	}
	if len(failed) > 0 {
		telemetry.Logger.WithFields(telemetry.Fields{
			"object_name":       result.ObjectName,
			"object_id":         result.ObjectID,
			"stream_identifier": result.StreamIdentifier,
			"failed_actions":    failed,
			"succeeded_actions": succeeded,
		}).WithError(lastErr).Error("post-commit action failed")
		return &result, &ledgererr.PostCommitActionFailed{
			StreamIdentifier: result.StreamIdentifier,
			CommittedEvents:  len(toAppend),
			SucceededActions: succeeded,
			FailedActions:    failed,
			Cause:            lastErr,
		}
	}
	return &result, nil
}
