// Package cosmosdocstore is the kivik/CouchDB-backed documentstore.Store
// for stream_type=cosmos. CouchDB's MVCC `_rev` is the closest analogue
// in the pack to Cosmos DB's document+ETag concurrency model, so `_rev`
// plays the role of ETag here (spec.md §4.B). Grounded on the teacher's
// db/couchdb.go CouchDBService: kivik.New/db.Put/db.Get, HTTP-status-based
// not-found and conflict detection.
package cosmosdocstore

import (
	"context"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"

	"eve.evalgo.org/eventledger/documentstore"
	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
)

type envelope struct {
	ID       string                   `json:"_id"`
	Rev      string                   `json:"_rev,omitempty"`
	Document model.ObjectDocument     `json:"document"`
}

// Store is a kivik/CouchDB-backed documentstore.Store.
type Store struct {
	db *kivik.DB
}

// Open connects to CouchDB at url and binds to database dbName.
func Open(ctx context.Context, url, dbName string) (*Store, error) {
	client, err := kivik.New("couch", url)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeExternalUnreachable, "connect to couchdb", err)
	}
	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "check database existence", err)
	}
	if !exists {
		if err := client.CreateDB(ctx, dbName); err != nil {
			return nil, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "create database", err)
		}
	}
	db := client.DB(dbName)
	if err := db.Err(); err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "open database handle", err)
	}
	return &Store{db: db}, nil
}

func docID(objectName, objectID string) string {
	return documentstore.Key(objectName, objectID)
}

func (s *Store) Create(ctx context.Context, doc *model.ObjectDocument) (*model.ObjectDocument, error) {
	id := docID(doc.ObjectName, doc.ObjectID)
	rev, err := s.db.Put(ctx, id, envelope{ID: id, Document: *doc})
	if err != nil {
		if kivik.HTTPStatus(err) == 409 {
			return nil, ledgererr.New(ledgererr.CodeConstraintViolation, "document already exists: "+id)
		}
		return nil, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "create document", err)
	}
	created := *doc
	created.ETag = rev
	return &created, nil
}

func (s *Store) Get(ctx context.Context, objectName, objectID string) (*model.ObjectDocument, error) {
	id := docID(objectName, objectID)
	row := s.db.Get(ctx, id)
	if row.Err() != nil {
		if kivik.HTTPStatus(row.Err()) == 404 {
			return nil, ledgererr.New(ledgererr.CodeExternalNotFound, "document not found: "+id)
		}
		return nil, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "get document", row.Err())
	}
	var env envelope
	if err := row.ScanDoc(&env); err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeDeserialization, "decode document", err)
	}
	doc := env.Document
	doc.ETag = env.Rev
	return &doc, nil
}

func (s *Store) Set(ctx context.Context, doc *model.ObjectDocument) (*model.ObjectDocument, error) {
	id := docID(doc.ObjectName, doc.ObjectID)
	rev, err := s.db.Put(ctx, id, envelope{ID: id, Rev: doc.ETag, Document: *doc})
	if err != nil {
		if kivik.HTTPStatus(err) == 409 {
			current, getErr := s.Get(ctx, doc.ObjectName, doc.ObjectID)
			if getErr != nil {
				return nil, getErr
			}
			return nil, &ledgererr.OptimisticConcurrencyConflict{
				StreamIdentifier: doc.Active.StreamIdentifier,
				Expected:         doc.ETag,
				Actual:           current.ETag,
			}
		}
		return nil, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "update document", err)
	}
	updated := *doc
	updated.ETag = rev
	return &updated, nil
}

var _ documentstore.Store = (*Store)(nil)
