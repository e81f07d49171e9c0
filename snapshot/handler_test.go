package snapshot_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/eventledger/model"
	"eve.evalgo.org/eventledger/session"
	"eve.evalgo.org/eventledger/snapshot"
)

func fixedSerializer(body []byte) snapshot.StateSerializer {
	return func(ctx context.Context, result session.CommitResult) ([]byte, error) { return body, nil }
}

func commitAt(objectID string, toVersion int64) session.CommitResult {
	return session.CommitResult{ObjectName: "order", ObjectID: objectID, FromVersion: toVersion, ToVersion: toVersion}
}

func TestSnapshotSkippedBeforeMinEvents(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewMemStore()
	policy := model.SnapshotPolicy{Enabled: true, Every: 1, MinEventsBeforeSnapshot: 5, KeepSnapshots: 3}
	handler := snapshot.NewHandler(store, policy, fixedSerializer([]byte("state")))

	action := handler.PostCommitAction()
	require.NoError(t, action.Run(ctx, commitAt("o1", 2)))

	records, err := store.List(ctx, "order", "o1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSnapshotTakenOnceThresholdsMet(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewMemStore()
	policy := model.SnapshotPolicy{Enabled: true, Every: 2, MinEventsBeforeSnapshot: 2, KeepSnapshots: 3}
	handler := snapshot.NewHandler(store, policy, fixedSerializer([]byte("state")))
	action := handler.PostCommitAction()

	require.NoError(t, action.Run(ctx, commitAt("o1", 1))) // totalEvents=2, every check: 1-(-1)=2 >= 2 -> snapshot
	records, err := store.List(ctx, "order", "o1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1), records[0].Version)
}

func TestSnapshotDisabledPolicyNeverSnapshots(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewMemStore()
	policy := model.SnapshotPolicy{Enabled: false, Every: 1, MinEventsBeforeSnapshot: 0, KeepSnapshots: 3}
	handler := snapshot.NewHandler(store, policy, fixedSerializer([]byte("state")))

	require.NoError(t, handler.PostCommitAction().Run(ctx, commitAt("o1", 10)))
	records, err := store.List(ctx, "order", "o1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSnapshotRetentionKeepsNewestK(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewMemStore()
	policy := model.SnapshotPolicy{Enabled: true, Every: 1, MinEventsBeforeSnapshot: 0, KeepSnapshots: 2}
	handler := snapshot.NewHandler(store, policy, fixedSerializer([]byte("state")))
	action := handler.PostCommitAction()

	for v := int64(0); v < 5; v++ {
		require.NoError(t, action.Run(ctx, commitAt("o1", v)))
	}

	records, err := store.List(ctx, "order", "o1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(3), records[0].Version)
	assert.Equal(t, int64(4), records[1].Version)
}

func TestSnapshotRetentionKeepsRecordsWithinMaxAge(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewMemStore()
	require.NoError(t, store.Save(ctx, model.SnapshotRecord{ObjectName: "order", ObjectID: "o1", Version: 0, CreatedAt: time.Now().UTC().Add(-48 * time.Hour)}))

	policy := model.SnapshotPolicy{Enabled: true, Every: 1, MinEventsBeforeSnapshot: 0, KeepSnapshots: 1, MaxAge: 72 * time.Hour}
	handler := snapshot.NewHandler(store, policy, fixedSerializer([]byte("state")))

	require.NoError(t, handler.PostCommitAction().Run(ctx, commitAt("o1", 1)))

	records, err := store.List(ctx, "order", "o1")
	require.NoError(t, err)
	require.Len(t, records, 2)
}
