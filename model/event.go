// Package model holds the value types of spec.md §3: events, streams,
// object-document manifests, version tokens, backup handles and rebuild
// tokens. Nothing here talks to storage; it is pure data plus the
// invariant checks that don't need I/O (hash recomputation, wire-form
// parsing).
package model

import "time"

// Event is an immutable record within a stream. EventVersion is assigned
// by the leased session before the data store is asked to append it, and
// within a stream the sequence of EventVersions committed so far is dense
// starting at 0 (spec.md §3 invariant).
//
// Timestamp is set by the data store at append time unless the caller
// requests preserve_timestamp (used by restore to keep the original
// commit time across a backup round-trip, spec.md §4.A/§4.G).
type Event struct {
	EventType         string                 `json:"eventType"`
	EventVersion      int64                  `json:"eventVersion"`
	SchemaVersion     int                    `json:"schemaVersion"`
	Payload           []byte                 `json:"payload"`
	ExternalSequencer string                 `json:"externalSequencer,omitempty"`
	ActionMetadata    map[string]interface{} `json:"actionMetadata,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	Timestamp         time.Time              `json:"timestamp"`
}

// Clone returns a deep-enough copy of e so callers can buffer events
// without aliasing the caller's payload slice.
func (e Event) Clone() Event {
	c := e
	if e.Payload != nil {
		c.Payload = append([]byte(nil), e.Payload...)
	}
	return c
}
