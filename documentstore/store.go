// Package documentstore defines the Store contract the object-document
// manifest lives behind (spec.md §4.B): ETag-conditional create/get/set
// keyed by "<object_name>/<object_id>".
package documentstore

import (
	"context"

	"eve.evalgo.org/eventledger/model"
)

// Store persists one ObjectDocument manifest per (objectName, objectID).
type Store interface {
	// Create inserts a brand new manifest. Implementations return a
	// *ledgererr.Error with ledgererr.CodeConstraintViolation when the key
	// is already present.
	Create(ctx context.Context, doc *model.ObjectDocument) (*model.ObjectDocument, error)

	// Get fetches the manifest for (objectName, objectID), returning a
	// *ledgererr.Error with ledgererr.CodeExternalNotFound when absent.
	Get(ctx context.Context, objectName, objectID string) (*model.ObjectDocument, error)

	// Set performs a conditional write keyed on doc.ETag. A mismatch
	// against the stored ETag returns
	// *ledgererr.OptimisticConcurrencyConflict. On success the returned
	// document carries the new ETag.
	Set(ctx context.Context, doc *model.ObjectDocument) (*model.ObjectDocument, error)
}

func key(objectName, objectID string) string {
	return objectName + "/" + objectID
}

// Key returns the canonical storage key "<object_name>/<object_id>" for
// (objectName, objectID), with no file suffix. blobdocstore and
// cosmosdocstore key documents by it; s3docstore builds its own object
// key with a ".json" suffix.
func Key(objectName, objectID string) string {
	return key(objectName, objectID)
}
