package objectdocument_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/eventledger/objectdocument"
)

func TestRouterResolveIsCaseInsensitive(t *testing.T) {
	r := objectdocument.NewRouter(map[string]string{"Order": "blob"})
	storeName, err := r.Resolve("ORDER")
	require.NoError(t, err)
	assert.Equal(t, "blob", storeName)
}

func TestRouterResolveMissingAggregate(t *testing.T) {
	r := objectdocument.NewRouter(nil)
	_, err := r.Resolve("order")
	require.Error(t, err)
}

func TestRoutingFileJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.json")
	r := objectdocument.NewRouter(map[string]string{"order": "blob", "invoice": "table"})
	require.NoError(t, r.SaveRoutingFile(path))

	loaded, err := objectdocument.LoadRoutingFile(path)
	require.NoError(t, err)
	assert.Equal(t, r.Routes(), loaded.Routes())
}

func TestRoutingFileYAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	r := objectdocument.NewRouter(map[string]string{"order": "blob", "invoice": "table"})
	require.NoError(t, r.SaveRoutingFile(path))

	loaded, err := objectdocument.LoadRoutingFile(path)
	require.NoError(t, err)
	assert.Equal(t, r.Routes(), loaded.Routes())
}
