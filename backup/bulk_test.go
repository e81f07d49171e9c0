package backup_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/eventledger/backup"
	"eve.evalgo.org/eventledger/datastore/memstore"
	"eve.evalgo.org/eventledger/documentstore"
	"eve.evalgo.org/eventledger/documentstore/memdocstore"
	"eve.evalgo.org/eventledger/model"
	"eve.evalgo.org/eventledger/objectdocument"
	"eve.evalgo.org/eventledger/session"
)

func seedObjects(t *testing.T, factory *objectdocument.Factory, resolver session.StaticResolver, ids []string) {
	eventStore, err := resolver.Resolve("primary")
	require.NoError(t, err)
	for _, id := range ids {
		stream := model.Stream{StreamIdentifier: "order-" + id + "-0", CurrentStreamVersion: -1, DataStore: "primary"}
		_, err := factory.GetOrCreate(context.Background(), "order", id, "1", func() model.Stream { return stream })
		require.NoError(t, err)
		require.NoError(t, eventStore.Append(context.Background(), stream, false, []model.Event{{EventType: "Created", EventVersion: 0}}))
	}
}

func TestBulkBackupCoversEveryRef(t *testing.T) {
	docStore := memdocstore.New()
	eventStore := memstore.New()
	router := objectdocument.NewRouter(map[string]string{"order": "mem"})
	factory := objectdocument.NewFactory(router, map[string]documentstore.Store{"mem": docStore}, nil)
	resolver := session.StaticResolver{"primary": eventStore}
	seedObjects(t, factory, resolver, []string{"o1", "o2", "o3"})

	reg, err := backup.OpenRegistry(filepath.Join(t.TempDir(), "backup-registry.json"))
	require.NoError(t, err)
	backupper := backup.NewBackupper(factory, resolver, reg, t.TempDir())

	refs := []backup.ObjectRef{{ObjectName: "order", ObjectID: "o1"}, {ObjectName: "order", ObjectID: "o2"}, {ObjectName: "order", ObjectID: "o3"}}

	var progressed int
	results := backupper.BulkBackup(context.Background(), refs, backup.Options{}, backup.Config{Concurrency: 2, ContinueOnError: true}, func(backup.ItemResult) { progressed++ })

	require.Len(t, results, 3)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.NotEmpty(t, r.BackupID)
	}
	assert.Equal(t, 3, progressed)

	entries := reg.Query(backup.Filter{ObjectName: "order", IncludeExpired: true})
	assert.Len(t, entries, 3)
}

func TestBulkRestoreCoversEveryRef(t *testing.T) {
	docStore := memdocstore.New()
	eventStore := memstore.New()
	router := objectdocument.NewRouter(map[string]string{"order": "mem"})
	factory := objectdocument.NewFactory(router, map[string]documentstore.Store{"mem": docStore}, nil)
	resolver := session.StaticResolver{"primary": eventStore}
	seedObjects(t, factory, resolver, []string{"o1", "o2"})

	reg, err := backup.OpenRegistry(filepath.Join(t.TempDir(), "backup-registry.json"))
	require.NoError(t, err)
	backupper := backup.NewBackupper(factory, resolver, reg, t.TempDir())

	h1, err := backupper.Backup(context.Background(), "order", "o1", backup.Options{})
	require.NoError(t, err)
	h2, err := backupper.Backup(context.Background(), "order", "o2", backup.Options{})
	require.NoError(t, err)

	refs := []backup.RestoreRef{
		{BackupID: h1.BackupID, ObjectName: "order", TargetActive: model.Stream{StreamIdentifier: "order-o1-restored", CurrentStreamVersion: -1, DataStore: "primary"}},
		{BackupID: h2.BackupID, ObjectName: "order", TargetActive: model.Stream{StreamIdentifier: "order-o2-restored", CurrentStreamVersion: -1, DataStore: "primary"}},
	}

	results := backupper.BulkRestore(context.Background(), refs, backup.Config{Concurrency: 2, ContinueOnError: true}, nil)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}

func TestBulkBackupCancelsRemainingOnFirstErrorWhenNotContinuing(t *testing.T) {
	docStore := memdocstore.New()
	eventStore := memstore.New()
	router := objectdocument.NewRouter(map[string]string{"order": "mem"})
	factory := objectdocument.NewFactory(router, map[string]documentstore.Store{"mem": docStore}, nil)
	resolver := session.StaticResolver{"primary": eventStore}
	seedObjects(t, factory, resolver, []string{"o1"})

	reg, err := backup.OpenRegistry(filepath.Join(t.TempDir(), "backup-registry.json"))
	require.NoError(t, err)
	backupper := backup.NewBackupper(factory, resolver, reg, t.TempDir())

	refs := []backup.ObjectRef{
		{ObjectName: "order", ObjectID: "o1"},
		{ObjectName: "order", ObjectID: "missing"},
	}

	results := backupper.BulkBackup(context.Background(), refs, backup.Options{}, backup.Config{Concurrency: 1, ContinueOnError: false}, nil)
	require.Len(t, results, 2)

	var sawError bool
	for _, r := range results {
		if r.Err != nil {
			sawError = true
		}
	}
	assert.True(t, sawError)
}
