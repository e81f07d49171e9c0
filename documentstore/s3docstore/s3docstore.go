// Package s3docstore is the aws-sdk-go-v2-backed documentstore.Store for
// stream_type=s3, storing one JSON object per manifest at
// "<object_name>/<object_id>.json". Plain S3 has no portable
// conditional-write primitive across all S3-compatible implementations,
// so Set here is read-then-write rather than a true compare-and-swap:
// it is documented best-effort, and the session's manifest hash check is
// the actual correctness backstop for this backend (spec.md §4.A
// "Conditional writes").
package s3docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"eve.evalgo.org/eventledger/documentstore"
	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
)

// Client is the S3 surface this package depends on.
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type envelope struct {
	Document model.ObjectDocument `json:"document"`
	ETag     string               `json:"etag"`
}

// Store is an S3-backed documentstore.Store.
type Store struct {
	client Client
	bucket string
}

// New wraps an already-configured S3 client.
func New(client Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

func objectKey(objectName, objectID string) string {
	return fmt.Sprintf("%s/%s.json", objectName, objectID)
}

func (s *Store) readEnvelope(ctx context.Context, objectName, objectID string) (*envelope, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(objectName, objectID)),
	})
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeExternalNotFound,
			"document not found: "+documentstore.Key(objectName, objectID), err)
	}
	defer out.Body.Close()
	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "read document body", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeDeserialization, "decode document", err)
	}
	return &env, nil
}

func (s *Store) writeEnvelope(ctx context.Context, objectName, objectID string, env envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(objectName, objectID)),
		Body:   bytes.NewReader(raw),
	})
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeExternalProcessing, "write document", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, doc *model.ObjectDocument) (*model.ObjectDocument, error) {
	if _, err := s.readEnvelope(ctx, doc.ObjectName, doc.ObjectID); err == nil {
		return nil, ledgererr.New(ledgererr.CodeConstraintViolation,
			"document already exists: "+documentstore.Key(doc.ObjectName, doc.ObjectID))
	}
	etag := uuid.NewString()
	if err := s.writeEnvelope(ctx, doc.ObjectName, doc.ObjectID, envelope{Document: *doc, ETag: etag}); err != nil {
		return nil, err
	}
	created := *doc
	created.ETag = etag
	return &created, nil
}

func (s *Store) Get(ctx context.Context, objectName, objectID string) (*model.ObjectDocument, error) {
	env, err := s.readEnvelope(ctx, objectName, objectID)
	if err != nil {
		return nil, err
	}
	doc := env.Document
	doc.ETag = env.ETag
	return &doc, nil
}

func (s *Store) Set(ctx context.Context, doc *model.ObjectDocument) (*model.ObjectDocument, error) {
	current, err := s.readEnvelope(ctx, doc.ObjectName, doc.ObjectID)
	if err != nil {
		return nil, err
	}
	if current.ETag != doc.ETag {
		return nil, &ledgererr.OptimisticConcurrencyConflict{
			StreamIdentifier: doc.Active.StreamIdentifier,
			Expected:         doc.ETag,
			Actual:           current.ETag,
		}
	}
	nextETag := uuid.NewString()
	if err := s.writeEnvelope(ctx, doc.ObjectName, doc.ObjectID, envelope{Document: *doc, ETag: nextETag}); err != nil {
		return nil, err
	}
	updated := *doc
	updated.ETag = nextETag
	return &updated, nil
}

var _ documentstore.Store = (*Store)(nil)
