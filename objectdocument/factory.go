package objectdocument

import (
	"context"

	"eve.evalgo.org/eventledger/documentstore"
	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
)

// TagIndex resolves object ids tagged under an aggregate, backing
// Factory.GetFirstByTag/GetByTag. Implemented by the tagstore package;
// declared here so Factory depends only on the narrow surface it needs.
type TagIndex interface {
	ObjectIDsByTag(ctx context.Context, objectName, tag string) ([]string, error)
}

// Factory resolves aggregates to the documentstore.Store that owns them
// and validates every path component before it reaches storage
// (spec.md §4.C).
type Factory struct {
	router *Router
	stores map[string]documentstore.Store
	tags   TagIndex
}

// NewFactory builds a Factory over the given store name -> Store binding
// and per-aggregate Router. tags may be nil if tag lookups are unused.
func NewFactory(router *Router, stores map[string]documentstore.Store, tags TagIndex) *Factory {
	return &Factory{router: router, stores: stores, tags: tags}
}

func (f *Factory) storeFor(objectName string) (documentstore.Store, error) {
	storeName, err := f.router.Resolve(objectName)
	if err != nil {
		return nil, err
	}
	store, ok := f.stores[storeName]
	if !ok {
		return nil, ledgererr.New(ledgererr.CodeConfigMissingBackend,
			"no store backend registered for name "+storeName)
	}
	return store, nil
}

func validateKey(objectName, objectID string) error {
	if err := ValidateIdentifier("objectName", objectName); err != nil {
		return err
	}
	if err := ValidateIdentifier("objectID", objectID); err != nil {
		return err
	}
	return nil
}

// Get fetches the manifest for (objectName, objectID).
func (f *Factory) Get(ctx context.Context, objectName, objectID string) (*model.ObjectDocument, error) {
	if err := validateKey(objectName, objectID); err != nil {
		return nil, err
	}
	store, err := f.storeFor(objectName)
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, objectName, objectID)
}

// GetOrCreate fetches the manifest for (objectName, objectID), creating a
// fresh one via newActive when absent. newActive is only invoked on the
// not-found path, so callers can defer stream-id generation until it's
// known to be needed.
func (f *Factory) GetOrCreate(ctx context.Context, objectName, objectID, schemaVersion string, newActive func() model.Stream) (*model.ObjectDocument, error) {
	if err := validateKey(objectName, objectID); err != nil {
		return nil, err
	}
	store, err := f.storeFor(objectName)
	if err != nil {
		return nil, err
	}
	existing, err := store.Get(ctx, objectName, objectID)
	if err == nil {
		return existing, nil
	}
	if !ledgererr.Is(err, ledgererr.CodeExternalNotFound) {
		return nil, err
	}
	doc, err := model.New(objectName, objectID, schemaVersion, newActive())
	if err != nil {
		return nil, err
	}
	return store.Create(ctx, doc)
}

// Set performs the conditional write for doc, returning
// *ledgererr.OptimisticConcurrencyConflict on an etag mismatch.
func (f *Factory) Set(ctx context.Context, doc *model.ObjectDocument) (*model.ObjectDocument, error) {
	if err := validateKey(doc.ObjectName, doc.ObjectID); err != nil {
		return nil, err
	}
	store, err := f.storeFor(doc.ObjectName)
	if err != nil {
		return nil, err
	}
	return store.Set(ctx, doc)
}

// GetFirstByTag returns the first (lowest object id) document tagged tag
// under objectName, failing with ledgererr.CodeExternalNotFound when no
// document carries the tag.
func (f *Factory) GetFirstByTag(ctx context.Context, objectName, tag string) (*model.ObjectDocument, error) {
	if err := ValidateIdentifier("objectName", objectName); err != nil {
		return nil, err
	}
	ids, err := f.tags.ObjectIDsByTag(ctx, objectName, tag)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ledgererr.New(ledgererr.CodeExternalNotFound, "no document tagged "+tag)
	}
	return f.Get(ctx, objectName, ids[0])
}

// GetByTag returns every document tagged tag under objectName.
func (f *Factory) GetByTag(ctx context.Context, objectName, tag string) ([]*model.ObjectDocument, error) {
	if err := ValidateIdentifier("objectName", objectName); err != nil {
		return nil, err
	}
	ids, err := f.tags.ObjectIDsByTag(ctx, objectName, tag)
	if err != nil {
		return nil, err
	}
	docs := make([]*model.ObjectDocument, 0, len(ids))
	for _, id := range ids {
		doc, err := f.Get(ctx, objectName, id)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
