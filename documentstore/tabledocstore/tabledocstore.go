// Package tabledocstore is the pgx-backed documentstore.Store for
// stream_type=table, one row per manifest keyed by
// (object_name, object_id). Adapted from the teacher's
// db/postgres_pgx.go pool wrapper, same rationale as datastore/tablestore
// for preferring raw SQL over gorm: the conditional UPDATE ... WHERE
// etag = $1 this package needs has no clean gorm equivalent.
package tabledocstore

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"eve.evalgo.org/eventledger/documentstore"
	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS eventledger_documents (
	object_name         TEXT NOT NULL,
	object_id           TEXT NOT NULL,
	schema_version      TEXT NOT NULL,
	hash                TEXT NOT NULL,
	prev_hash           TEXT NOT NULL,
	active              JSONB NOT NULL,
	terminated_streams  JSONB NOT NULL,
	etag                TEXT NOT NULL,
	PRIMARY KEY (object_name, object_id)
);
`

// Store is a pgx-backed documentstore.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres and ensures the documents table exists.
func Open(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeExternalUnreachable, "connect to postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, ledgererr.Wrap(ledgererr.CodeExternalUnreachable, "ping postgres", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "create documents table", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Create(ctx context.Context, doc *model.ObjectDocument) (*model.ObjectDocument, error) {
	activeRaw, err := json.Marshal(doc.Active)
	if err != nil {
		return nil, err
	}
	terminatedRaw, err := json.Marshal(doc.TerminatedStreams)
	if err != nil {
		return nil, err
	}
	etag := uuid.NewString()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO eventledger_documents
			(object_name, object_id, schema_version, hash, prev_hash, active, terminated_streams, etag)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		doc.ObjectName, doc.ObjectID, doc.SchemaVersion, doc.Hash, doc.PrevHash, activeRaw, terminatedRaw, etag,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ledgererr.New(ledgererr.CodeConstraintViolation,
				"document already exists: "+documentstore.Key(doc.ObjectName, doc.ObjectID))
		}
		return nil, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "create document row", err)
	}

	created := *doc
	created.ETag = etag
	return &created, nil
}

func (s *Store) Get(ctx context.Context, objectName, objectID string) (*model.ObjectDocument, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT schema_version, hash, prev_hash, active, terminated_streams, etag
		 FROM eventledger_documents WHERE object_name = $1 AND object_id = $2`,
		objectName, objectID,
	)
	var (
		doc           model.ObjectDocument
		activeRaw     []byte
		terminatedRaw []byte
	)
	doc.ObjectName = objectName
	doc.ObjectID = objectID
	err := row.Scan(&doc.SchemaVersion, &doc.Hash, &doc.PrevHash, &activeRaw, &terminatedRaw, &doc.ETag)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ledgererr.New(ledgererr.CodeExternalNotFound,
				"document not found: "+documentstore.Key(objectName, objectID))
		}
		return nil, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "get document row", err)
	}
	if err := json.Unmarshal(activeRaw, &doc.Active); err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeDeserialization, "decode active stream", err)
	}
	if err := json.Unmarshal(terminatedRaw, &doc.TerminatedStreams); err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeDeserialization, "decode terminated streams", err)
	}
	return &doc, nil
}

func (s *Store) Set(ctx context.Context, doc *model.ObjectDocument) (*model.ObjectDocument, error) {
	activeRaw, err := json.Marshal(doc.Active)
	if err != nil {
		return nil, err
	}
	terminatedRaw, err := json.Marshal(doc.TerminatedStreams)
	if err != nil {
		return nil, err
	}
	nextETag := uuid.NewString()

	tag, err := s.pool.Exec(ctx,
		`UPDATE eventledger_documents
		 SET schema_version = $1, hash = $2, prev_hash = $3, active = $4,
		     terminated_streams = $5, etag = $6
		 WHERE object_name = $7 AND object_id = $8 AND etag = $9`,
		doc.SchemaVersion, doc.Hash, doc.PrevHash, activeRaw, terminatedRaw, nextETag,
		doc.ObjectName, doc.ObjectID, doc.ETag,
	)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "update document row", err)
	}
	if tag.RowsAffected() == 0 {
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

	updated := *doc
	updated.ETag = nextETag
	return &updated, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && pgxUniqueViolationCode(err)
}

// pgxUniqueViolationCode checks for Postgres SQLSTATE 23505 (unique
// violation) without importing pgconn's error type directly into the
// call sites above.
func pgxUniqueViolationCode(err error) bool {
	type sqlStater interface{ SQLState() string }
	var pgErr sqlStater
	for e := err; e != nil; {
		if s, ok := e.(sqlStater); ok {
			pgErr = s
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return pgErr != nil && pgErr.SQLState() == "23505"
}

var _ documentstore.Store = (*Store)(nil)
