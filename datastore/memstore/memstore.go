// Package memstore is an in-process datastore.Store backed by a map,
// used for stream_type=inmemory streams and as the fixture the other
// backends' tests compare their behavior against.
package memstore

import (
	"context"
	"sync"
	"time"

	"eve.evalgo.org/eventledger/datastore"
	"eve.evalgo.org/eventledger/model"
)

type key struct {
	streamIdentifier string
}

// Store is a process-local datastore.Store. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	streams map[key][]model.Event
}

// New returns an empty Store.
func New() *Store {
	return &Store{streams: make(map[key][]model.Event)}
}

func (s *Store) Append(_ context.Context, stream model.Stream, preserveTimestamp bool, events []model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{stream.StreamIdentifier}
	existing := s.streams[k]
	if len(existing) > 0 {
		if err := datastore.CheckNotClosed(stream.StreamIdentifier, &existing[len(existing)-1]); err != nil {
			return err
		}
	}
	writeTime := time.Now().UTC()
	for _, e := range events {
		clone := e.Clone()
		if !preserveTimestamp {
			clone.Timestamp = writeTime
		}
		existing = append(existing, clone)
	}
	s.streams[k] = existing
	return nil
}

func (s *Store) Read(_ context.Context, stream model.Stream, startVersion, untilVersion int64) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.streams[key{stream.StreamIdentifier}]
	return sliceRange(all, startVersion, untilVersion), nil
}

func (s *Store) ReadAsStream(ctx context.Context, stream model.Stream, startVersion, untilVersion int64, yield func(model.Event) error) error {
	events, err := s.Read(ctx, stream, startVersion, untilVersion)
	if err != nil {
		return err
	}
	for _, e := range events {
		if err := yield(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) RemoveEventsForFailedCommit(_ context.Context, stream model.Stream, fromVersion, toVersion int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{stream.StreamIdentifier}
	all := s.streams[k]
	kept := all[:0:0]
	removed := 0
	for _, e := range all {
		if e.EventVersion >= fromVersion && e.EventVersion <= toVersion {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.streams[k] = kept
	return removed, nil
}

func sliceRange(all []model.Event, startVersion, untilVersion int64) []model.Event {
	var out []model.Event
	for _, e := range all {
		if e.EventVersion < startVersion {
			continue
		}
		if untilVersion >= 0 && e.EventVersion > untilVersion {
			continue
		}
		out = append(out, e)
	}
	return out
}

var _ datastore.Store = (*Store)(nil)
