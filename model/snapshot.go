package model

import (
	"fmt"
	"time"
)

// SnapshotPolicy governs component J's post-commit snapshot creation and
// retention (spec.md §4.J). A snapshot is taken iff Enabled &&
// total events processed >= MinEventsBeforeSnapshot && events since the
// last snapshot >= Every.
type SnapshotPolicy struct {
	Enabled                 bool
	Every                   int64
	MinEventsBeforeSnapshot int64
	KeepSnapshots           int
	MaxAge                  time.Duration
}

// SnapshotRecord is one serialized aggregate state, stored at
// snapshots/<object_id>/<version>.json.
type SnapshotRecord struct {
	ObjectName string    `json:"objectName"`
	ObjectID   string    `json:"objectId"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"createdAt"`
	State      []byte    `json:"state"`
	Location   string    `json:"location"`
}

// SnapshotLocation returns the canonical storage path for a snapshot of
// objectID at version.
func SnapshotLocation(objectID string, version int64) string {
	return fmt.Sprintf("snapshots/%s/%d.json", objectID, version)
}
