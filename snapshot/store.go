// Package snapshot implements component J: policy-driven post-commit
// snapshot creation and retention (spec.md §4.J). Handler hooks in as a
// session.PostCommitAction, the same extension point used for any other
// side effect a commit needs to trigger.
package snapshot

import (
	"context"

	"eve.evalgo.org/eventledger/model"
)

// Store persists and lists snapshot records for one object. List must
// return records in ascending version order.
type Store interface {
	Save(ctx context.Context, record model.SnapshotRecord) error
	List(ctx context.Context, objectName, objectID string) ([]model.SnapshotRecord, error)
	Delete(ctx context.Context, objectName, objectID string, version int64) error
}
