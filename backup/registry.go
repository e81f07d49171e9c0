package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
)

// registryFile is the on-disk shape of backup-registry/backup-registry.json
// (spec.md §4.G), a flat list rather than registry.go's JSON-LD wrapper:
// backup handles have no need for the service-discovery shape that format
// was built for.
type registryFile struct {
	Backups []model.BackupHandle `json:"backups"`
}

// Registry is the JSON-file-backed catalog of backup handles, load/save
// shaped after registry.Registry.
type Registry struct {
	mu       sync.RWMutex
	filePath string
	handles  map[string]model.BackupHandle
}

// OpenRegistry loads filePath if it exists, or starts empty.
func OpenRegistry(filePath string) (*Registry, error) {
	r := &Registry{filePath: filePath, handles: make(map[string]model.BackupHandle)}
	if err := r.Load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ledgererr.Wrap(ledgererr.CodeExternalProcessing, "read backup registry", err)
	}

	var rf registryFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDeserialization, "parse backup registry", err)
	}

	r.handles = make(map[string]model.BackupHandle, len(rf.Backups))
	for _, h := range rf.Backups {
		r.handles[h.BackupID] = h
	}
	return nil
}

func (r *Registry) Save() error {
	r.mu.RLock()
	rf := registryFile{Backups: make([]model.BackupHandle, 0, len(r.handles))}
	for _, h := range r.handles {
		rf.Backups = append(rf.Backups, h)
	}
	r.mu.RUnlock()

	data, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDeserialization, "marshal backup registry", err)
	}
	if err := os.WriteFile(r.filePath, data, 0644); err != nil {
		return ledgererr.Wrap(ledgererr.CodeExternalProcessing, "write backup registry", err)
	}
	return nil
}

// Register adds or replaces handle and persists the registry.
func (r *Registry) Register(handle model.BackupHandle) error {
	r.mu.Lock()
	r.handles[handle.BackupID] = handle
	r.mu.Unlock()
	return r.Save()
}

// Remove deletes a handle and persists the registry. Not an error if
// backupID was never registered.
func (r *Registry) Remove(backupID string) error {
	r.mu.Lock()
	delete(r.handles, backupID)
	r.mu.Unlock()
	return r.Save()
}

// Get returns the handle for backupID, failing with
// ledgererr.CodeExternalNotFound when unknown.
func (r *Registry) Get(backupID string) (model.BackupHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[backupID]
	if !ok {
		return model.BackupHandle{}, ledgererr.New(ledgererr.CodeExternalNotFound, fmt.Sprintf("backup %s not registered", backupID))
	}
	return h, nil
}

// Filter selects handles by object_name, object_id, tag equality and a
// creation window (spec.md §4.G "Query"). Zero-valued fields are wildcards.
// IncludeExpired controls whether handles whose retention has already
// elapsed (as of Now) are returned.
type Filter struct {
	ObjectName     string
	ObjectID       string
	CreatedAfter   time.Time
	CreatedBefore  time.Time
	Tags           map[string]string
	IncludeExpired bool
	Now            time.Time
}

// Query returns every handle matching f.
func (r *Registry) Query(f Filter) []model.BackupHandle {
	now := f.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.BackupHandle
	for _, h := range r.handles {
		if f.ObjectName != "" && h.ObjectName != f.ObjectName {
			continue
		}
		if f.ObjectID != "" && h.ObjectID != f.ObjectID {
			continue
		}
		if !f.CreatedAfter.IsZero() && h.CreatedAt.Before(f.CreatedAfter) {
			continue
		}
		if !f.CreatedBefore.IsZero() && h.CreatedAt.After(f.CreatedBefore) {
			continue
		}
		if !matchesTags(h.Tags, f.Tags) {
			continue
		}
		if !f.IncludeExpired && h.Expired(now) {
			continue
		}
		out = append(out, h)
	}
	return out
}

func matchesTags(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

// Expired returns every handle whose retention has elapsed as of now,
// cleanup-eligible per spec.md §4.G.
func (r *Registry) Expired(now time.Time) []model.BackupHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.BackupHandle
	for _, h := range r.handles {
		if h.Expired(now) {
			out = append(out, h)
		}
	}
	return out
}
