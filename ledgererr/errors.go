// Package ledgererr defines the stable error taxonomy used throughout
// eventledger. Every error the engine returns carries one of the codes
// below so callers can classify failures with errors.Is / errors.As instead
// of string matching, the same idiom the teacher's cloud/kyma client uses
// for its ValidationError/ResourceError pair.
package ledgererr

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error identifier.
type Code string

const (
	// Configuration
	CodeConfigInvalidRouting   Code = "ELFAES-CFG-0001"
	CodeConfigMissingBackend   Code = "ELFAES-CFG-0002"
	CodeConfigInvalidChunkSize Code = "ELFAES-CFG-0003"
	CodeConfigInvalidPolicy    Code = "ELFAES-CFG-0004"
	CodeConfigInvalidLockTTL   Code = "ELFAES-CFG-0005"
	CodeConfigInvalidEndpoint  Code = "ELFAES-CFG-0006"

	// External storage
	CodeExternalProcessing  Code = "ELFAES-EXT-0001"
	CodeExternalNotFound    Code = "ELFAES-EXT-0010"
	CodeExternalThrottled   Code = "ELFAES-EXT-0011"
	CodeExternalUnreachable Code = "ELFAES-EXT-0012"

	// File / blob specific
	CodeBlobNotFound      Code = "ELFAES-FILE-0001"
	CodeContainerNotFound Code = "ELFAES-FILE-0002"

	// Validation
	CodeDeserialization       Code = "ELFAES-VAL-0001"
	CodeVersionTokenMismatch  Code = "ELFAES-VAL-0004"

	// Business constraint
	CodeConstraintViolation Code = "ELFAES-BIZ-0001"

	// Commit engine
	CodeCommitFailed        Code = "ELFAES-COMMIT-0001"
	CodeCommitCleanupFailed Code = "ELFAES-COMMIT-0002"

	// Post-commit
	CodePostCommitFailed Code = "ELFAES-POSTCOMMIT-0001"

	// Concurrency / lifecycle
	CodeConcurrencyConflict Code = "ES_CONCURRENCY_CONFLICT"
	CodeStreamClosed        Code = "ES_STREAM_CLOSED"

	// Stream migration
	CodeMigrationFailed Code = "ELFAES-MIGRATE-0001"

	// Distributed lock
	CodeLockAlreadyHeld Code = "ELFAES-LOCK-0001"

	// Decision checkpoints
	CodeStaleCheckpoint Code = "ELFAES-STALE-0001"
)

// Error is the concrete type returned for every taxonomy entry. Message
// must never include connection strings, credentials, or container paths
// (spec.md §7) — callers building a message should pass only identifiers
// (object id, stream id, backend name) already safe to surface.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, ledgererr.New(CodeX, "")) to match on code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New constructs an *Error for the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an *Error for the given code, preserving cause for
// errors.Unwrap/errors.As chains.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// Is reports whether err (or anything in its chain) carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
