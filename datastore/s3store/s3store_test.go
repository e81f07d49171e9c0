package s3store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
)

func chunkedStream(id string, version int64) model.Stream {
	return model.Stream{
		StreamIdentifier:     id,
		CurrentStreamVersion: version,
		StreamType:           model.StreamTypeS3,
		ChunkSettings:        model.ChunkSettings{Enabled: true, Size: 2},
	}
}

func TestAppendAndReadAcrossChunks(t *testing.T) {
	ctx := context.Background()
	store := New(newMockClient(), "eventledger-test")
	stream := chunkedStream("order-1", -1)

	events := []model.Event{
		{EventType: "A", EventVersion: 0},
		{EventType: "B", EventVersion: 1},
		{EventType: "C", EventVersion: 2},
	}
	require.NoError(t, store.Append(ctx, stream, false, events))
	stream.CurrentStreamVersion = 2

	got, err := store.Read(ctx, stream, 0, -1)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "A", got[0].EventType)
	assert.Equal(t, "C", got[2].EventType)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestReadMissingChunkReturnsEmpty(t *testing.T) {
	store := New(newMockClient(), "eventledger-test")
	got, err := store.Read(context.Background(), chunkedStream("missing", -1), 0, -1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppendRejectsWriteAfterStreamClosed(t *testing.T) {
	ctx := context.Background()
	store := New(newMockClient(), "eventledger-test")
	stream := chunkedStream("order-1", -1)

	require.NoError(t, store.Append(ctx, stream, false, []model.Event{
		{EventType: "A", EventVersion: 0},
		{EventType: "StreamClosed", EventVersion: 1, Metadata: map[string]interface{}{"continuationStreamId": "order-2"}},
	}))
	stream.CurrentStreamVersion = 1

	err := store.Append(ctx, stream, false, []model.Event{{EventType: "B", EventVersion: 2}})
	require.Error(t, err)
	var streamClosed *ledgererr.EventStreamClosed
	require.ErrorAs(t, err, &streamClosed)
	assert.Equal(t, "order-2", streamClosed.Continuation)
}

func TestRemoveEventsForFailedCommit(t *testing.T) {
	ctx := context.Background()
	store := New(newMockClient(), "eventledger-test")
	stream := chunkedStream("order-1", -1)
	require.NoError(t, store.Append(ctx, stream, false, []model.Event{
		{EventType: "A", EventVersion: 0},
		{EventType: "B", EventVersion: 1},
		{EventType: "C", EventVersion: 2},
	}))
	stream.CurrentStreamVersion = 2

	removed, err := store.RemoveEventsForFailedCommit(ctx, stream, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	remaining, err := store.Read(ctx, stream, 0, -1)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "A", remaining[0].EventType)
}
