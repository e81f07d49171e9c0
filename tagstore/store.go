// Package tagstore implements component D: the document and stream tag
// stores (spec.md §4.D). Both share an identical shape — set an
// association, fetch the sorted list of identifiers tagged under an
// object name, remove an association — backed by the same Store
// interface so memtagstore/blobtagstore serve both.
package tagstore

import "context"

// Store is the shared backend contract for both DocumentTagStore and
// StreamTagStore. identifier is the object id for document tags, the
// stream identifier for stream tags; objectName scopes both (spec.md
// §4.D: "Document tags are scoped by object_name; stream tags by
// (object_name, stream_identifier)" — the stream_identifier already
// carries its aggregate name by construction, so objectName alone is
// sufficient to scope the inverse index without collisions across
// aggregates).
type Store interface {
	// Set records that identifier carries tag under objectName. Calling
	// it again with the same (objectName, identifier, tag) is a no-op.
	Set(ctx context.Context, objectName, identifier, tag string) error

	// Get returns the sorted list of identifiers tagged tag under
	// objectName, or an empty slice if none.
	Get(ctx context.Context, objectName, tag string) ([]string, error)

	// Remove deletes the (objectName, identifier, tag) association, if
	// present. Removing an association that doesn't exist is not an
	// error.
	Remove(ctx context.Context, objectName, identifier, tag string) error
}

// DocumentTagStore tags ObjectDocuments by object id.
type DocumentTagStore struct {
	backend Store
}

// NewDocumentTagStore wraps backend as a document tag store.
func NewDocumentTagStore(backend Store) *DocumentTagStore {
	return &DocumentTagStore{backend: backend}
}

func (d *DocumentTagStore) Set(ctx context.Context, objectName, objectID, tag string) error {
	return d.backend.Set(ctx, objectName, objectID, tag)
}

func (d *DocumentTagStore) Get(ctx context.Context, objectName, tag string) ([]string, error) {
	return d.backend.Get(ctx, objectName, tag)
}

func (d *DocumentTagStore) Remove(ctx context.Context, objectName, objectID, tag string) error {
	return d.backend.Remove(ctx, objectName, objectID, tag)
}

// ObjectIDsByTag satisfies objectdocument.TagIndex, letting the factory's
// GetFirstByTag/GetByTag delegate here without objectdocument importing
// this package's concrete types.
func (d *DocumentTagStore) ObjectIDsByTag(ctx context.Context, objectName, tag string) ([]string, error) {
	return d.Get(ctx, objectName, tag)
}

// StreamTagStore tags streams by stream identifier.
type StreamTagStore struct {
	backend Store
}

// NewStreamTagStore wraps backend as a stream tag store.
func NewStreamTagStore(backend Store) *StreamTagStore {
	return &StreamTagStore{backend: backend}
}

func (s *StreamTagStore) Set(ctx context.Context, objectName, streamIdentifier, tag string) error {
	return s.backend.Set(ctx, objectName, streamIdentifier, tag)
}

func (s *StreamTagStore) Get(ctx context.Context, objectName, tag string) ([]string, error) {
	return s.backend.Get(ctx, objectName, tag)
}

func (s *StreamTagStore) Remove(ctx context.Context, objectName, streamIdentifier, tag string) error {
	return s.backend.Remove(ctx, objectName, streamIdentifier, tag)
}
