package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ObjectDocument is the per-object manifest: the single source of truth
// for which stream is active, which streams are history, and the
// optimistic-concurrency token (ETag) a document store enforces on write
// (spec.md §3).
//
// Invariants enforced by this package (storage-level invariants — ETag
// conflicts, "never deleted" — are enforced by documentstore and session):
//
//	(a) Active is never the zero Stream (ObjectName/ID validated by callers).
//	(b) TerminatedStreams never contains a stream with the same
//	    StreamIdentifier as Active.
//	(c) Hash == computeHash(Active, TerminatedStreams, SchemaVersion).
type ObjectDocument struct {
	ObjectID          string              `json:"objectId"`
	ObjectName        string              `json:"objectName"`
	SchemaVersion     string              `json:"schemaVersion"`
	Hash              string              `json:"hash"`
	PrevHash          string              `json:"prevHash"`
	Active            Stream              `json:"active"`
	TerminatedStreams []TerminatedStream  `json:"terminatedStreams"`
	ETag              string              `json:"-"`
}

// hashable is the subset of ObjectDocument that participates in the
// content hash; Hash, PrevHash and ETag are deliberately excluded so the
// hash is a pure function of the document's semantic content.
type hashable struct {
	Active            Stream             `json:"active"`
	TerminatedStreams []TerminatedStream `json:"terminatedStreams"`
	SchemaVersion     string             `json:"schemaVersion"`
}

// ComputeHash returns H(serialize(active, terminatedStreams, schemaVersion))
// as specified in spec.md §3/§8 invariant 2.
func (d *ObjectDocument) ComputeHash() (string, error) {
	payload, err := json.Marshal(hashable{
		Active:            d.Active,
		TerminatedStreams: d.TerminatedStreams,
		SchemaVersion:     d.SchemaVersion,
	})
	if err != nil {
		return "", fmt.Errorf("model: marshal document for hashing: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyHash reports whether d.Hash matches the document's current content.
func (d *ObjectDocument) VerifyHash() (bool, error) {
	want, err := d.ComputeHash()
	if err != nil {
		return false, err
	}
	return want == d.Hash, nil
}

// Advance recomputes the hash after a mutation, rejecting no-op writes:
// spec.md §3 requires that any write that does not advance the hash is
// rejected, since an unchanged hash means nothing about the document
// actually changed.
func (d *ObjectDocument) Advance() error {
	newHash, err := d.ComputeHash()
	if err != nil {
		return err
	}
	if newHash == d.Hash {
		return fmt.Errorf("model: mutation did not change document content (hash %s unchanged)", d.Hash)
	}
	d.PrevHash = d.Hash
	d.Hash = newHash
	return nil
}

// FindTerminated returns the terminated stream with the given identifier,
// if any.
func (d *ObjectDocument) FindTerminated(streamIdentifier string) (*TerminatedStream, bool) {
	for i := range d.TerminatedStreams {
		if d.TerminatedStreams[i].StreamIdentifier == streamIdentifier {
			return &d.TerminatedStreams[i], true
		}
	}
	return nil, false
}

// CloseActive moves the current Active stream into TerminatedStreams
// (newest-first) and installs next as the new Active stream. Callers are
// responsible for appending the StreamClosed event to the old stream and
// recomputing the hash via Advance before persisting.
func (d *ObjectDocument) CloseActive(reason, continuationStreamID string, next Stream) {
	closed := TerminatedStream{
		Stream:               d.Active,
		Reason:                reason,
		ContinuationStreamID:  continuationStreamID,
	}
	d.TerminatedStreams = append([]TerminatedStream{closed}, d.TerminatedStreams...)
	d.Active = next
}

// New builds a fresh manifest for (objectName, objectID) with the given
// initial active stream, computing its first hash.
func New(objectName, objectID, schemaVersion string, active Stream) (*ObjectDocument, error) {
	d := &ObjectDocument{
		ObjectID:      objectID,
		ObjectName:    objectName,
		SchemaVersion: schemaVersion,
		Active:        active,
	}
	hash, err := d.ComputeHash()
	if err != nil {
		return nil, err
	}
	d.Hash = hash
	return d, nil
}
