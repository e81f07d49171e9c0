// Package blobstore is the bbolt-backed datastore.Store for
// stream_type=blob (and cosmos-routed streams that default to the blob
// chunk layout, spec.md §4.A). Each chunk of a stream is one key in the
// "events" bucket, holding the JSON-encoded slice of events in that
// chunk — adapted from the teacher's db/bolt wrapper, generalized from a
// generic JSON-blob KV helper into chunk-aware event storage.
package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"eve.evalgo.org/eventledger/datastore"
	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
)

const eventsBucket = "events"

// Store is a bbolt-backed datastore.Store. One Store wraps one bbolt
// file; multiple streams share it, partitioned by chunk key.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the bbolt file at path and ensures the events
// bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeExternalUnreachable, "open blobstore file", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(eventsBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "create events bucket", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying bbolt file.
func (s *Store) Close() error {
	return s.db.Close()
}

func chunkKey(streamIdentifier string, chunkIndex int) []byte {
	return []byte(fmt.Sprintf("%s#%06d", streamIdentifier, chunkIndex))
}

func (s *Store) readChunk(tx *bolt.Tx, streamIdentifier string, chunkIndex int) ([]model.Event, error) {
	b := tx.Bucket([]byte(eventsBucket))
	raw := b.Get(chunkKey(streamIdentifier, chunkIndex))
	if raw == nil {
		return nil, nil
	}
	var events []model.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeDeserialization, "decode chunk", err)
	}
	return events, nil
}

func (s *Store) writeChunk(tx *bolt.Tx, streamIdentifier string, chunkIndex int, events []model.Event) error {
	b := tx.Bucket([]byte(eventsBucket))
	raw, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("blobstore: marshal chunk: %w", err)
	}
	return b.Put(chunkKey(streamIdentifier, chunkIndex), raw)
}

// Append writes events in order, grouping them by chunk index and
// committing one bbolt transaction per call so the affected chunks land
// atomically together (spec.md §4.A: "an append that spans chunk
// boundaries writes each affected chunk atomically within itself").
func (s *Store) Append(_ context.Context, stream model.Stream, preserveTimestamp bool, events []model.Event) error {
	writeTime := time.Now().UTC()
	byChunk := make(map[int][]model.Event)
	order := []int{}
	for _, e := range events {
		clone := e.Clone()
		if !preserveTimestamp {
			clone.Timestamp = writeTime
		}
		idx := stream.ChunkSettings.ChunkIndex(clone.EventVersion)
		if _, seen := byChunk[idx]; !seen {
			order = append(order, idx)
		}
		byChunk[idx] = append(byChunk[idx], clone)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if stream.CurrentStreamVersion >= 0 {
			lastChunk, err := s.readChunk(tx, stream.StreamIdentifier, stream.ChunkSettings.ChunkIndex(stream.CurrentStreamVersion))
			if err != nil {
				return err
			}
			for i := range lastChunk {
				if lastChunk[i].EventVersion == stream.CurrentStreamVersion {
					if err := datastore.CheckNotClosed(stream.StreamIdentifier, &lastChunk[i]); err != nil {
						return err
					}
					break
				}
			}
		}
		for _, idx := range order {
			existing, err := s.readChunk(tx, stream.StreamIdentifier, idx)
			if err != nil {
				return err
			}
			existing = append(existing, byChunk[idx]...)
			if err := s.writeChunk(tx, stream.StreamIdentifier, idx, existing); err != nil {
				return err
			}
		}
		return nil
	})
}

// Read returns events in [startVersion, untilVersion] inclusive. A
// negative untilVersion reads through stream.CurrentStreamVersion.
func (s *Store) Read(_ context.Context, stream model.Stream, startVersion, untilVersion int64) ([]model.Event, error) {
	if untilVersion < 0 {
		untilVersion = stream.CurrentStreamVersion
	}
	if untilVersion < startVersion {
		return nil, nil
	}

	rng := datastore.CoveringChunks(stream.ChunkSettings, startVersion, untilVersion)
	var out []model.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		for idx := rng.From; idx <= rng.To; idx++ {
			chunk, err := s.readChunk(tx, stream.StreamIdentifier, idx)
			if err != nil {
				return err
			}
			for _, e := range chunk {
				if e.EventVersion >= startVersion && e.EventVersion <= untilVersion {
					out = append(out, e)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventVersion < out[j].EventVersion })
	return out, nil
}

// ReadAsStream decodes chunk-by-chunk, yielding events in order as each
// chunk is read rather than materializing the whole range up front.
func (s *Store) ReadAsStream(_ context.Context, stream model.Stream, startVersion, untilVersion int64, yield func(model.Event) error) error {
	if untilVersion < 0 {
		untilVersion = stream.CurrentStreamVersion
	}
	if untilVersion < startVersion {
		return nil
	}
	rng := datastore.CoveringChunks(stream.ChunkSettings, startVersion, untilVersion)

	return s.db.View(func(tx *bolt.Tx) error {
		for idx := rng.From; idx <= rng.To; idx++ {
			chunk, err := s.readChunk(tx, stream.StreamIdentifier, idx)
			if err != nil {
				return err
			}
			sort.Slice(chunk, func(i, j int) bool { return chunk[i].EventVersion < chunk[j].EventVersion })
			for _, e := range chunk {
				if e.EventVersion < startVersion || e.EventVersion > untilVersion {
					continue
				}
				if err := yield(e); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// RemoveEventsForFailedCommit deletes [fromVersion, toVersion] from the
// chunks it spans, rewriting each affected chunk without those events.
// Idempotent: re-running over an already-cleaned range removes nothing.
func (s *Store) RemoveEventsForFailedCommit(_ context.Context, stream model.Stream, fromVersion, toVersion int64) (int, error) {
	rng := datastore.CoveringChunks(stream.ChunkSettings, fromVersion, toVersion)
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		for idx := rng.From; idx <= rng.To; idx++ {
			chunk, err := s.readChunk(tx, stream.StreamIdentifier, idx)
			if err != nil {
				return err
			}
			if chunk == nil {
				continue
			}
			kept := chunk[:0:0]
			for _, e := range chunk {
				if e.EventVersion >= fromVersion && e.EventVersion <= toVersion {
					removed++
					continue
				}
				kept = append(kept, e)
			}
			if err := s.writeChunk(tx, stream.StreamIdentifier, idx, kept); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

var _ datastore.Store = (*Store)(nil)
