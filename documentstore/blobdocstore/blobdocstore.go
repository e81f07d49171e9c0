// Package blobdocstore is the bbolt-backed documentstore.Store for
// stream_type=blob, storing one JSON value per manifest key in the
// "documents" bucket. Adapted from the teacher's db/bolt wrapper's
// PutJSON/GetJSON idiom, generalized to enforce ETag-conditional writes.
//
// model.ObjectDocument.ETag is deliberately excluded from its own JSON
// tags (spec.md's wire form never exposes the store's concurrency token
// to callers), so this package wraps it in an envelope that does carry
// the ETag for on-disk storage.
package blobdocstore

import (
	"context"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/google/uuid"

	"eve.evalgo.org/eventledger/documentstore"
	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
)

const documentsBucket = "documents"

type envelope struct {
	Document model.ObjectDocument `json:"document"`
	ETag     string               `json:"etag"`
}

// Store is a bbolt-backed documentstore.Store.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the bbolt file at path and ensures the
// documents bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeExternalUnreachable, "open blobdocstore file", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(documentsBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "create documents bucket", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying bbolt file.
func (s *Store) Close() error {
	return s.db.Close()
}

func withETag(doc model.ObjectDocument, etag string) *model.ObjectDocument {
	doc.ETag = etag
	return &doc
}

func (s *Store) Create(_ context.Context, doc *model.ObjectDocument) (*model.ObjectDocument, error) {
	k := documentstore.Key(doc.ObjectName, doc.ObjectID)
	etag := uuid.NewString()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(documentsBucket))
		if b.Get([]byte(k)) != nil {
			return ledgererr.New(ledgererr.CodeConstraintViolation, "document already exists: "+k)
		}
		raw, err := json.Marshal(envelope{Document: *doc, ETag: etag})
		if err != nil {
			return err
		}
		return b.Put([]byte(k), raw)
	})
	if err != nil {
		return nil, err
	}
	return withETag(*doc, etag), nil
}

func (s *Store) Get(_ context.Context, objectName, objectID string) (*model.ObjectDocument, error) {
	k := documentstore.Key(objectName, objectID)
	var env envelope
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(documentsBucket))
		raw := b.Get([]byte(k))
		if raw == nil {
			return ledgererr.New(ledgererr.CodeExternalNotFound, "document not found: "+k)
		}
		return json.Unmarshal(raw, &env)
	})
	if err != nil {
		return nil, err
	}
	return withETag(env.Document, env.ETag), nil
}

func (s *Store) Set(_ context.Context, doc *model.ObjectDocument) (*model.ObjectDocument, error) {
	k := documentstore.Key(doc.ObjectName, doc.ObjectID)
	nextETag := uuid.NewString()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(documentsBucket))
		raw := b.Get([]byte(k))
		if raw == nil {
			return ledgererr.New(ledgererr.CodeExternalNotFound, "document not found: "+k)
		}
		var current envelope
		if err := json.Unmarshal(raw, &current); err != nil {
			return err
		}
		if current.ETag != doc.ETag {
			return &ledgererr.OptimisticConcurrencyConflict{
				StreamIdentifier: doc.Active.StreamIdentifier,
				Expected:         doc.ETag,
				Actual:           current.ETag,
			}
		}
		encoded, err := json.Marshal(envelope{Document: *doc, ETag: nextETag})
		if err != nil {
			return err
		}
		return b.Put([]byte(k), encoded)
	})
	if err != nil {
		return nil, err
	}
	return withETag(*doc, nextETag), nil
}

var _ documentstore.Store = (*Store)(nil)
