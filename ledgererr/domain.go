package ledgererr

import "fmt"

// OptimisticConcurrencyConflict is returned by the document store's Set
// when the manifest's etag no longer matches what the caller last read
// (spec.md §4.B, §8 invariant 4).
type OptimisticConcurrencyConflict struct {
	StreamIdentifier string
	Expected         string
	Actual           string
}

func (e *OptimisticConcurrencyConflict) Error() string {
	return fmt.Sprintf("%s: stream %q: expected etag %q, got %q",
		CodeConcurrencyConflict, e.StreamIdentifier, e.Expected, e.Actual)
}

// EventStreamClosed is raised by a data store append when the target
// stream's last committed event is StreamClosed (spec.md §4.A, §4.E).
type EventStreamClosed struct {
	StreamIdentifier string
	Continuation     string // successor stream identifier, may be empty
}

func (e *EventStreamClosed) Error() string {
	return fmt.Sprintf("%s: stream %q is closed (continuation=%q)",
		CodeStreamClosed, e.StreamIdentifier, e.Continuation)
}

// ConstraintException aborts a commit before any storage write because a
// registered pre-append action rejected a buffered event (spec.md §4.E).
type ConstraintException struct {
	Constraint string
}

func (e *ConstraintException) Error() string {
	return fmt.Sprintf("%s: constraint violated: %s", CodeConstraintViolation, e.Constraint)
}

// CommitFailed reports that the manifest commit step failed and, whether
// or not events had already landed, cleanup ran to remove them.
type CommitFailed struct {
	StreamIdentifier  string
	EventsMayBeWritten bool
	Cause             error
}

func (e *CommitFailed) Error() string {
	return fmt.Sprintf("%s: commit failed for stream %q (events_may_be_written=%v): %v",
		CodeCommitFailed, e.StreamIdentifier, e.EventsMayBeWritten, e.Cause)
}

func (e *CommitFailed) Unwrap() error { return e.Cause }

// CommitCleanupFailed marks a stream broken: the manifest commit failed
// AND the attempt to remove the orphaned event range also failed. Only an
// out-of-band repair can continue this stream (spec.md §4.E).
type CommitCleanupFailed struct {
	OriginalVersion  int64
	AttemptedVersion int64
	CleanupFrom      int64
	CleanupTo        int64
	CleanupCause     error
	OriginalCause    error
}

func (e *CommitCleanupFailed) Error() string {
	return fmt.Sprintf("%s: stream broken: commit(%d->%d) failed (%v), cleanup(%d->%d) also failed (%v)",
		CodeCommitCleanupFailed, e.OriginalVersion, e.AttemptedVersion,
		e.OriginalCause, e.CleanupFrom, e.CleanupTo, e.CleanupCause)
}

// PostCommitActionFailed reports that events are durable but one or more
// post-commit actions (snapshot, projection notify) failed. The engine
// never rolls back for this; the caller decides on compensation.
type PostCommitActionFailed struct {
	StreamIdentifier string
	CommittedEvents  int
	SucceededActions []string
	FailedActions    []string
	Cause            error
}

func (e *PostCommitActionFailed) Error() string {
	return fmt.Sprintf("%s: stream %q: %d events committed, %d actions failed (%v), %d succeeded",
		CodePostCommitFailed, e.StreamIdentifier, e.CommittedEvents,
		len(e.FailedActions), e.Cause, len(e.SucceededActions))
}

func (e *PostCommitActionFailed) Unwrap() error { return e.Cause }

// InvalidObjectId is raised by the object-document factory's path-component
// validator before any storage key is constructed (spec.md §4.C).
type InvalidObjectId struct {
	Field string
	Value string
}

func (e *InvalidObjectId) Error() string {
	return fmt.Sprintf("%s: invalid %s %q: must match ^[A-Za-z0-9._-]+$",
		CodeDeserialization, e.Field, e.Value)
}

// InvalidOperationException is raised by the projection-status coordinator
// when a transition is attempted against a mismatched token or an illegal
// state-machine edge (spec.md §4.I).
type InvalidOperationException struct {
	Reason string
}

func (e *InvalidOperationException) Error() string {
	return fmt.Sprintf("invalid operation: %s", e.Reason)
}

// VersionTokenMismatch is raised when two version tokens referring to
// different (object_name, object_id) pairs are compared (spec.md §3).
type VersionTokenMismatch struct {
	Left  string
	Right string
}

func (e *VersionTokenMismatch) Error() string {
	return fmt.Sprintf("%s: version tokens for %q and %q are not comparable",
		CodeVersionTokenMismatch, e.Left, e.Right)
}
