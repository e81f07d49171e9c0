package backup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
)

func TestRegistryRegisterGetQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup-registry.json")
	reg, err := OpenRegistry(path)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h1 := model.BackupHandle{BackupID: "b1", ObjectName: "order", ObjectID: "o1", CreatedAt: now, Tags: map[string]string{"env": "prod"}}
	h2 := model.BackupHandle{BackupID: "b2", ObjectName: "order", ObjectID: "o2", CreatedAt: now.Add(time.Hour)}

	require.NoError(t, reg.Register(h1))
	require.NoError(t, reg.Register(h2))

	got, err := reg.Get("b1")
	require.NoError(t, err)
	assert.Equal(t, "o1", got.ObjectID)

	_, err = reg.Get("missing")
	require.Error(t, err)
	assert.True(t, ledgererr.Is(err, ledgererr.CodeExternalNotFound))

	results := reg.Query(Filter{Tags: map[string]string{"env": "prod"}})
	require.Len(t, results, 1)
	assert.Equal(t, "b1", results[0].BackupID)

	require.NoError(t, reg.Remove("b2"))
	_, err = reg.Get("b2")
	require.Error(t, err)
}

func TestRegistryPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup-registry.json")
	reg, err := OpenRegistry(path)
	require.NoError(t, err)
	require.NoError(t, reg.Register(model.BackupHandle{BackupID: "b1", ObjectName: "order", ObjectID: "o1"}))

	reopened, err := OpenRegistry(path)
	require.NoError(t, err)
	got, err := reopened.Get("b1")
	require.NoError(t, err)
	assert.Equal(t, "o1", got.ObjectID)
}

func TestRegistryExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup-registry.json")
	reg, err := OpenRegistry(path)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, reg.Register(model.BackupHandle{BackupID: "expired", CreatedAt: now.Add(-2 * time.Hour), Retention: time.Hour}))
	require.NoError(t, reg.Register(model.BackupHandle{BackupID: "fresh", CreatedAt: now, Retention: time.Hour}))

	expired := reg.Expired(now)
	require.Len(t, expired, 1)
	assert.Equal(t, "expired", expired[0].BackupID)

	results := reg.Query(Filter{Now: now})
	require.Len(t, results, 1)
	assert.Equal(t, "fresh", results[0].BackupID)
}
