package backup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
	"eve.evalgo.org/eventledger/objectdocument"
	"eve.evalgo.org/eventledger/session"
)

// Options configures one Backup call.
type Options struct {
	IncludeTerminatedStreams bool
	Provider                 string
	Retention                time.Duration
	Tags                     map[string]string
}

// Backupper serializes objects to compressed artifacts under baseDir and
// catalogs them in a Registry (spec.md §4.G).
type Backupper struct {
	factory  *objectdocument.Factory
	stores   session.DataStoreResolver
	registry *Registry
	baseDir  string
}

func NewBackupper(factory *objectdocument.Factory, stores session.DataStoreResolver, registry *Registry, baseDir string) *Backupper {
	return &Backupper{factory: factory, stores: stores, registry: registry, baseDir: baseDir}
}

// Backup serializes (objectName, objectID)'s active stream, and optionally
// its terminated predecessors, into a single compressed artifact at
// backups/<objectID>/<backupID>.backup.json.gz and registers a handle for
// it.
func (b *Backupper) Backup(ctx context.Context, objectName, objectID string, opts Options) (*model.BackupHandle, error) {
	manifest, err := b.factory.Get(ctx, objectName, objectID)
	if err != nil {
		return nil, err
	}

	activeStore, err := b.stores.Resolve(manifest.Active.DataStore)
	if err != nil {
		return nil, err
	}
	activeEvents, err := activeStore.Read(ctx, manifest.Active, 0, -1)
	if err != nil {
		return nil, err
	}

	artifact := Artifact{
		ObjectName:    objectName,
		ObjectID:      objectID,
		SchemaVersion: manifest.SchemaVersion,
		ActiveEvents:  activeEvents,
	}

	if opts.IncludeTerminatedStreams {
		for _, ts := range manifest.TerminatedStreams {
			tsStore, err := b.stores.Resolve(ts.DataStore)
			if err != nil {
				return nil, err
			}
			tsEvents, err := tsStore.Read(ctx, ts.Stream, 0, -1)
			if err != nil {
				return nil, err
			}
			artifact.TerminatedStreams = append(artifact.TerminatedStreams, TerminatedStreamArtifact{
				TerminatedStream: ts,
				Events:           tsEvents,
			})
		}
	}

	compressed, checksum, err := serialize(artifact)
	if err != nil {
		return nil, err
	}

	backupID := uuid.NewString()
	location := filepath.Join(b.baseDir, "backups", objectID, backupID+".backup.json.gz")
	if err := os.MkdirAll(filepath.Dir(location), 0755); err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "create backup directory", err)
	}
	if err := os.WriteFile(location, compressed, 0644); err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "write backup artifact", err)
	}

	handle := model.BackupHandle{
		BackupID:                  backupID,
		CreatedAt:                 time.Now().UTC(),
		Provider:                  opts.Provider,
		Location:                  location,
		ObjectID:                  objectID,
		ObjectName:                objectName,
		StreamVersion:             manifest.Active.CurrentStreamVersion,
		EventCount:                len(activeEvents),
		SizeBytes:                 int64(len(compressed)),
		IncludesObjectDocument:    true,
		IncludesTerminatedStreams: opts.IncludeTerminatedStreams,
		IsCompressed:              true,
		Checksum:                  checksum,
		Retention:                 opts.Retention,
		Tags:                      opts.Tags,
	}
	if err := b.registry.Register(handle); err != nil {
		return nil, err
	}
	return &handle, nil
}

// Restore loads backupID, verifies its checksum, and appends its events to
// a target document. target.ObjectID must be empty (use the backup's own
// object id) or match the backup's object id exactly (spec.md §4.G). The
// target document's active stream must itself be empty: Restore never
// merges into a stream that already has committed events.
func (b *Backupper) Restore(ctx context.Context, backupID, objectName, targetObjectID string, targetActive model.Stream) (*model.ObjectDocument, error) {
	handle, err := b.registry.Get(backupID)
	if err != nil {
		return nil, err
	}
	if targetObjectID != "" && targetObjectID != handle.ObjectID {
		return nil, &ledgererr.InvalidOperationException{
			Reason: "restore target object id " + targetObjectID + " does not match backup object id " + handle.ObjectID,
		}
	}
	objectID := handle.ObjectID

	data, err := os.ReadFile(handle.Location)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeExternalProcessing, "read backup artifact", err)
	}
	artifact, err := deserialize(data, handle.Checksum)
	if err != nil {
		return nil, err
	}

	manifest, err := b.factory.GetOrCreate(ctx, objectName, objectID, artifact.SchemaVersion, func() model.Stream { return targetActive })
	if err != nil {
		return nil, err
	}
	if !manifest.Active.IsEmpty() {
		return nil, &ledgererr.ConstraintException{Constraint: "restore target stream already has committed events"}
	}

	if err := b.restoreTerminatedStreams(ctx, artifact); err != nil {
		return nil, err
	}

	if len(artifact.ActiveEvents) == 0 {
		return manifest, nil
	}

	targetStore, err := b.stores.Resolve(manifest.Active.DataStore)
	if err != nil {
		return nil, err
	}
	if err := targetStore.Append(ctx, manifest.Active, true, artifact.ActiveEvents); err != nil {
		return nil, err
	}

	updated := *manifest
	updated.Active.CurrentStreamVersion = artifact.ActiveEvents[len(artifact.ActiveEvents)-1].EventVersion
	updated.TerminatedStreams = terminatedStreamsFrom(artifact)
	if err := updated.Advance(); err != nil {
		return nil, ledgererr.Wrap(ledgererr.CodeDeserialization, "recompute manifest hash after restore", err)
	}
	return b.factory.Set(ctx, &updated)
}

func (b *Backupper) restoreTerminatedStreams(ctx context.Context, artifact Artifact) error {
	for _, ts := range artifact.TerminatedStreams {
		if len(ts.Events) == 0 {
			continue
		}
		store, err := b.stores.Resolve(ts.DataStore)
		if err != nil {
			return err
		}
		if err := store.Append(ctx, ts.Stream, true, ts.Events); err != nil {
			return err
		}
	}
	return nil
}

func terminatedStreamsFrom(artifact Artifact) []model.TerminatedStream {
	if len(artifact.TerminatedStreams) == 0 {
		return nil
	}
	out := make([]model.TerminatedStream, len(artifact.TerminatedStreams))
	for i, ts := range artifact.TerminatedStreams {
		out[i] = ts.TerminatedStream
	}
	return out
}
