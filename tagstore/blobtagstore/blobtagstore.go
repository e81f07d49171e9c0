// Package blobtagstore is the bbolt-backed tagstore.Store. It stores the
// inverse mapping tag -> sorted identifier list, one bbolt key per
// (objectName, tag) pair — the chunked-file equivalent of spec.md §4.D's
// "tags/<scope>-by-tag/<tag>.json" layout, with scope (document vs
// stream) picking the bucket and objectName folded into the key so tags
// never collide across aggregates. Grounded on the teacher's bbolt
// wrapper via datastore/blobstore's bucket-per-concern, JSON-blob-value
// idiom.
package blobtagstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/tagstore"
)

const (
	documentBucket = "document-by-tag"
	streamBucket   = "stream-by-tag"
)

// Store is a bbolt-backed tagstore.Store bound to one scope bucket.
// OpenDocumentBackend and OpenStreamBackend pick the bucket; both returned
// values implement tagstore.Store identically.
type Store struct {
	db     *bolt.DB
	bucket string
}

func open(path, bucket string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeExternalUnreachable, "open blobtagstore file", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "create tag bucket", err)
	}
	return &Store{db: db, bucket: bucket}, nil
}

// OpenDocumentBackend opens (creating if absent) the document-tag bucket
// in the bbolt file at path.
func OpenDocumentBackend(path string) (*Store, error) { return open(path, documentBucket) }

// OpenStreamBackend opens (creating if absent) the stream-tag bucket in
// the bbolt file at path. Pass the same path as OpenDocumentBackend to
// share one bbolt file across both scopes, matching bbolt's single-file,
// multi-bucket model.
func OpenStreamBackend(path string) (*Store, error) { return open(path, streamBucket) }

// Close releases the underlying bbolt file.
func (s *Store) Close() error { return s.db.Close() }

func tagKey(objectName, tag string) []byte {
	return []byte(fmt.Sprintf("%s/%s", objectName, tag))
}

func (s *Store) readIdentifiers(tx *bolt.Tx, objectName, tag string) ([]string, error) {
	b := tx.Bucket([]byte(s.bucket))
	raw := b.Get(tagKey(objectName, tag))
	if raw == nil {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeDeserialization, "decode tag index", err)
	}
	return ids, nil
}

func (s *Store) writeIdentifiers(tx *bolt.Tx, objectName, tag string, ids []string) error {
	b := tx.Bucket([]byte(s.bucket))
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("blobtagstore: marshal tag index: %w", err)
	}
	return b.Put(tagKey(objectName, tag), raw)
}

func insertSorted(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	if i < len(ids) && ids[i] == id {
		return ids
	}
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

func removeSorted(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	if i >= len(ids) || ids[i] != id {
		return ids
	}
	return append(ids[:i], ids[i+1:]...)
}

// Set merges identifier into the sorted index for (objectName, tag).
func (s *Store) Set(_ context.Context, objectName, identifier, tag string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		ids, err := s.readIdentifiers(tx, objectName, tag)
		if err != nil {
			return err
		}
		return s.writeIdentifiers(tx, objectName, tag, insertSorted(ids, identifier))
	})
}

// Get returns the sorted identifier list for (objectName, tag).
func (s *Store) Get(_ context.Context, objectName, tag string) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		ids, err = s.readIdentifiers(tx, objectName, tag)
		return err
	})
	return ids, err
}

// Remove drops identifier from the index for (objectName, tag), rewriting
// the whole index object (spec.md §4.D: "removes rewrite").
func (s *Store) Remove(_ context.Context, objectName, identifier, tag string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		ids, err := s.readIdentifiers(tx, objectName, tag)
		if err != nil {
			return err
		}
		if ids == nil {
			return nil
		}
		return s.writeIdentifiers(tx, objectName, tag, removeSorted(ids, identifier))
	})
}

var _ tagstore.Store = (*Store)(nil)
