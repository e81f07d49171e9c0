// Package projection implements component I: the projection-status
// rebuild coordinator (spec.md §4.I). Store's ETag-conditional
// Create/Get/Set shape is the same one documentstore.Store uses for
// object-document manifests, generalized to model.ProjectionState since a
// projection's status document has nothing to do with an aggregate's
// event-sourced manifest.
package projection

import (
	"context"

	"eve.evalgo.org/eventledger/model"
)

// Store persists one ProjectionState per (projectionName, objectID).
type Store interface {
	// Create inserts a brand new status document, failing with
	// ledgererr.CodeConstraintViolation if the key is already present.
	Create(ctx context.Context, state *model.ProjectionState) (*model.ProjectionState, error)

	// Get fetches the status document, failing with
	// ledgererr.CodeExternalNotFound when absent.
	Get(ctx context.Context, projectionName, objectID string) (*model.ProjectionState, error)

	// Set performs a conditional write keyed on state.ETag, failing with
	// *ledgererr.OptimisticConcurrencyConflict on a stale ETag.
	Set(ctx context.Context, state *model.ProjectionState) (*model.ProjectionState, error)

	// List returns every status document for projectionName, used by
	// RecoverStuckRebuilds to sweep for expired tokens.
	List(ctx context.Context, projectionName string) ([]*model.ProjectionState, error)
}
