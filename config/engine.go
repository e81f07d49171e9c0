package config

import (
	"time"

	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
	"eve.evalgo.org/eventledger/objectdocument"
)

// EngineConfig is the ambient configuration every eventledger deployment
// loads at startup: the per-aggregate routing table, the default chunk
// layout for new streams, the snapshot policy, and the distributed lock's
// default TTL. It is built on top of EnvConfig the same way the rest of
// the eve.evalgo.org ecosystem layers typed config on that loader.
type EngineConfig struct {
	RoutingFile    string
	ChunkSettings  model.ChunkSettings
	SnapshotPolicy model.SnapshotPolicy
	LockTTL        time.Duration
}

// LoadEngineConfig reads the ambient settings from env (under prefix
// "EVENTLEDGER_"), defaulting anything unset.
func LoadEngineConfig(env *EnvConfig) *EngineConfig {
	return &EngineConfig{
		RoutingFile: env.GetString("ROUTING_FILE", "routing.json"),
		ChunkSettings: model.ChunkSettings{
			Enabled: env.GetBool("CHUNKING_ENABLED", true),
			Size:    env.GetInt("CHUNK_SIZE", model.DefaultChunkSize),
		},
		SnapshotPolicy: model.SnapshotPolicy{
			Enabled:                 env.GetBool("SNAPSHOT_ENABLED", false),
			Every:                   int64(env.GetInt("SNAPSHOT_EVERY", 100)),
			MinEventsBeforeSnapshot: int64(env.GetInt("SNAPSHOT_MIN_EVENTS", 100)),
			KeepSnapshots:           env.GetInt("SNAPSHOT_KEEP", 3),
			MaxAge:                  env.GetDuration("SNAPSHOT_MAX_AGE", 30*24*time.Hour),
		},
		LockTTL: env.GetDuration("LOCK_TTL", 60*time.Second),
	}
}

// Validate checks the config's numeric invariants, failing fast rather
// than letting a bad chunk size or lock TTL surface as a confusing
// storage-layer error later (spec.md §4.A/§4.H).
func (c *EngineConfig) Validate() error {
	if c.ChunkSettings.Enabled && c.ChunkSettings.Size <= 0 {
		return ledgererr.New(ledgererr.CodeConfigInvalidChunkSize, "chunk size must be positive when chunking is enabled")
	}
	if c.SnapshotPolicy.Enabled && (c.SnapshotPolicy.Every <= 0 || c.SnapshotPolicy.KeepSnapshots <= 0) {
		return ledgererr.New(ledgererr.CodeConfigInvalidPolicy, "snapshot policy must have a positive Every and KeepSnapshots when enabled")
	}
	if c.LockTTL <= 0 {
		return ledgererr.New(ledgererr.CodeConfigInvalidLockTTL, "lock TTL must be positive")
	}
	return nil
}

// LoadRouter loads the routing file and verifies every route points at
// one of the caller's registered backend names, failing fast
// (ledgererr.CodeConfigInvalidRouting) instead of deferring the error to
// the first object that happens to hit the bad route.
func (c *EngineConfig) LoadRouter(knownBackends map[string]bool) (*objectdocument.Router, error) {
	router, err := objectdocument.LoadRoutingFile(c.RoutingFile)
	if err != nil {
		return nil, err
	}
	for aggregate, backend := range router.Routes() {
		if !knownBackends[backend] {
			return nil, ledgererr.New(ledgererr.CodeConfigInvalidRouting,
				"aggregate "+aggregate+" routed to unregistered backend "+backend)
		}
	}
	return router, nil
}
