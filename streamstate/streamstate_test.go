package streamstate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/eventledger/datastore/memstore"
	"eve.evalgo.org/eventledger/documentstore"
	"eve.evalgo.org/eventledger/documentstore/memdocstore"
	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
	"eve.evalgo.org/eventledger/objectdocument"
	"eve.evalgo.org/eventledger/session"
	"eve.evalgo.org/eventledger/streamstate"
)

func identity(e model.Event) (model.Event, error) { return e, nil }

func newHarness() (*objectdocument.Factory, session.StaticResolver, *memstore.Store) {
	docStore := memdocstore.New()
	eventStore := memstore.New()
	router := objectdocument.NewRouter(map[string]string{"order": "mem"})
	factory := objectdocument.NewFactory(router, map[string]documentstore.Store{"mem": docStore}, nil)
	resolver := session.StaticResolver{"primary": eventStore}
	return factory, resolver, eventStore
}

func TestMigrateCopiesEventsClosesSourceAndSwapsActive(t *testing.T) {
	ctx := context.Background()
	factory, resolver, eventStore := newHarness()

	source := model.Stream{StreamIdentifier: "order-o1-0", CurrentStreamVersion: -1, DataStore: "primary"}
	_, err := factory.GetOrCreate(ctx, "order", "o1", "1", func() model.Stream { return source })
	require.NoError(t, err)

	require.NoError(t, eventStore.Append(ctx, source, false, []model.Event{
		{EventType: "Created", EventVersion: 0},
		{EventType: "Updated", EventVersion: 1},
	}))

	target := model.Stream{StreamIdentifier: "order-o1-1", DataStore: "primary"}
	migrator := streamstate.NewMigrator(factory, resolver)
	committed, err := migrator.Migrate(ctx, "order", "o1", "layout-migration", target, identity)
	require.NoError(t, err)

	assert.Equal(t, "order-o1-1", committed.Active.StreamIdentifier)
	assert.Equal(t, int64(1), committed.Active.CurrentStreamVersion)
	require.Len(t, committed.TerminatedStreams, 1)
	assert.Equal(t, "order-o1-0", committed.TerminatedStreams[0].StreamIdentifier)
	assert.Equal(t, "layout-migration", committed.TerminatedStreams[0].Reason)
	assert.Equal(t, "order-o1-1", committed.TerminatedStreams[0].ContinuationStreamID)

	targetEvents, err := eventStore.Read(ctx, committed.Active, 0, -1)
	require.NoError(t, err)
	require.Len(t, targetEvents, 2)
	assert.Equal(t, "Created", targetEvents[0].EventType)
	assert.Equal(t, "Updated", targetEvents[1].EventType)

	sourceEvents, err := eventStore.Read(ctx, source, 0, -1)
	require.NoError(t, err)
	require.Len(t, sourceEvents, 3)
	assert.Equal(t, "StreamClosed", sourceEvents[2].EventType)
	assert.Equal(t, "order-o1-1", sourceEvents[2].Metadata["continuationStreamId"])
}

func TestMigrateAppliesTransform(t *testing.T) {
	ctx := context.Background()
	factory, resolver, eventStore := newHarness()

	source := model.Stream{StreamIdentifier: "order-o2-0", CurrentStreamVersion: -1, DataStore: "primary"}
	_, err := factory.GetOrCreate(ctx, "order", "o2", "1", func() model.Stream { return source })
	require.NoError(t, err)
	require.NoError(t, eventStore.Append(ctx, source, false, []model.Event{{EventType: "Created", EventVersion: 0}}))

	upgrade := func(e model.Event) (model.Event, error) {
		e.SchemaVersion = 2
		return e, nil
	}

	target := model.Stream{StreamIdentifier: "order-o2-1", DataStore: "primary"}
	migrator := streamstate.NewMigrator(factory, resolver)
	committed, err := migrator.Migrate(ctx, "order", "o2", "schema-upgrade", target, upgrade)
	require.NoError(t, err)

	targetEvents, err := eventStore.Read(ctx, committed.Active, 0, -1)
	require.NoError(t, err)
	require.Len(t, targetEvents, 1)
	assert.Equal(t, 2, targetEvents[0].SchemaVersion)
}

func TestMigrateCopiesEventsThatArriveDuringMigration(t *testing.T) {
	ctx := context.Background()
	factory, resolver, eventStore := newHarness()

	source := model.Stream{StreamIdentifier: "order-o3-0", CurrentStreamVersion: -1, DataStore: "primary"}
	_, err := factory.GetOrCreate(ctx, "order", "o3", "1", func() model.Stream { return source })
	require.NoError(t, err)
	require.NoError(t, eventStore.Append(ctx, source, false, []model.Event{{EventType: "Created", EventVersion: 0}}))

	tailWriterRan := false
	tailingTransform := func(e model.Event) (model.Event, error) {
		if !tailWriterRan {
			tailWriterRan = true
			// simulate a writer landing a second event on the source
			// stream in the window between the migrator's first read
			// and its StreamClosed append.
			require.NoError(t, eventStore.Append(ctx, model.Stream{StreamIdentifier: "order-o3-0", CurrentStreamVersion: 0}, false,
				[]model.Event{{EventType: "Updated", EventVersion: 1}}))
		}
		return e, nil
	}

	target := model.Stream{StreamIdentifier: "order-o3-1", DataStore: "primary"}
	migrator := streamstate.NewMigrator(factory, resolver)
	committed, err := migrator.Migrate(ctx, "order", "o3", "layout-migration", target, tailingTransform)
	require.NoError(t, err)

	targetEvents, err := eventStore.Read(ctx, committed.Active, 0, -1)
	require.NoError(t, err)
	require.Len(t, targetEvents, 2)
	assert.Equal(t, "Updated", targetEvents[1].EventType)
}

func TestMigrateRetriesOnManifestConflict(t *testing.T) {
	ctx := context.Background()
	factory, resolver, eventStore := newHarness()

	source := model.Stream{StreamIdentifier: "order-o4-0", CurrentStreamVersion: -1, DataStore: "primary"}
	_, err := factory.GetOrCreate(ctx, "order", "o4", "1", func() model.Stream { return source })
	require.NoError(t, err)
	require.NoError(t, eventStore.Append(ctx, source, false, []model.Event{{EventType: "Created", EventVersion: 0}}))

	// a concurrent writer advances the manifest's etag out from under the
	// migrator mid-copy, so its first attempt to close the source and
	// commit the swapped-active manifest lands on a stale etag.
	raced := false
	raceDuringCopy := func(e model.Event) (model.Event, error) {
		if !raced {
			raced = true
			concurrent, err := factory.Get(ctx, "order", "o4")
			require.NoError(t, err)
			concurrent.SchemaVersion = "2"
			require.NoError(t, concurrent.Advance())
			_, err = factory.Set(ctx, concurrent)
			require.NoError(t, err)
		}
		return e, nil
	}

	target := model.Stream{StreamIdentifier: "order-o4-1", DataStore: "primary"}
	migrator := streamstate.NewMigrator(factory, resolver)
	committed, err := migrator.Migrate(ctx, "order", "o4", "layout-migration", target, raceDuringCopy)
	require.NoError(t, err)
	assert.Equal(t, "2", committed.SchemaVersion)
	assert.Equal(t, "order-o4-1", committed.Active.StreamIdentifier)

	targetEvents, err := eventStore.Read(ctx, committed.Active, 0, -1)
	require.NoError(t, err)
	require.Len(t, targetEvents, 1)
}

func TestMigrateFailsWhenSourceAlreadyClosed(t *testing.T) {
	ctx := context.Background()
	factory, resolver, eventStore := newHarness()

	source := model.Stream{StreamIdentifier: "order-o5-0", CurrentStreamVersion: -1, DataStore: "primary"}
	_, err := factory.GetOrCreate(ctx, "order", "o5", "1", func() model.Stream { return source })
	require.NoError(t, err)
	require.NoError(t, eventStore.Append(ctx, source, true, []model.Event{
		{EventType: "StreamClosed", EventVersion: 0, Metadata: map[string]interface{}{"continuationStreamId": "order-o5-1"}},
	}))

	target := model.Stream{StreamIdentifier: "order-o5-2", DataStore: "primary"}
	migrator := streamstate.NewMigrator(factory, resolver)
	_, err = migrator.Migrate(ctx, "order", "o5", "layout-migration", target, identity)
	require.Error(t, err)
	assert.True(t, ledgererr.Is(err, ledgererr.CodeMigrationFailed))
}
