// Package memdocstore is an in-process documentstore.Store, used for
// stream_type=inmemory manifests and as the fixture the other backends'
// tests compare their conditional-write behavior against.
package memdocstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
)

// Store is a process-local documentstore.Store. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	docs map[string]*model.ObjectDocument
}

// New returns an empty Store.
func New() *Store {
	return &Store{docs: make(map[string]*model.ObjectDocument)}
}

func key(objectName, objectID string) string { return objectName + "/" + objectID }

func clone(doc *model.ObjectDocument) *model.ObjectDocument {
	c := *doc
	c.TerminatedStreams = append([]model.TerminatedStream(nil), doc.TerminatedStreams...)
	return &c
}

func (s *Store) Create(_ context.Context, doc *model.ObjectDocument) (*model.ObjectDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(doc.ObjectName, doc.ObjectID)
	if _, exists := s.docs[k]; exists {
		return nil, ledgererr.New(ledgererr.CodeConstraintViolation, "document already exists: "+k)
	}
	stored := clone(doc)
	stored.ETag = uuid.NewString()
	s.docs[k] = stored
	return clone(stored), nil
}

func (s *Store) Get(_ context.Context, objectName, objectID string) (*model.ObjectDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.docs[key(objectName, objectID)]
	if !ok {
		return nil, ledgererr.New(ledgererr.CodeExternalNotFound, "document not found: "+key(objectName, objectID))
	}
	return clone(stored), nil
}

func (s *Store) Set(_ context.Context, doc *model.ObjectDocument) (*model.ObjectDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(doc.ObjectName, doc.ObjectID)
	stored, ok := s.docs[k]
	if !ok {
		return nil, ledgererr.New(ledgererr.CodeExternalNotFound, "document not found: "+k)
	}
	if stored.ETag != doc.ETag {
		return nil, &ledgererr.OptimisticConcurrencyConflict{
			StreamIdentifier: doc.Active.StreamIdentifier,
			Expected:         doc.ETag,
			Actual:           stored.ETag,
		}
	}
	next := clone(doc)
	next.ETag = uuid.NewString()
	s.docs[k] = next
	return clone(next), nil
}
