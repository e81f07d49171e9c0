package session

import (
	"eve.evalgo.org/eventledger/datastore"
	"eve.evalgo.org/eventledger/ledgererr"
)

// StaticResolver is a DataStoreResolver over a fixed name -> Store
// binding, the session-layer counterpart to objectdocument.Router.
type StaticResolver map[string]datastore.Store

// Resolve looks up name, failing with ledgererr.CodeConfigMissingBackend
// when it isn't registered.
func (r StaticResolver) Resolve(name string) (datastore.Store, error) {
	store, ok := r[name]
	if !ok {
		return nil, ledgererr.New(ledgererr.CodeConfigMissingBackend, "no data store backend registered for name "+name)
	}
	return store, nil
}

var _ DataStoreResolver = StaticResolver(nil)
