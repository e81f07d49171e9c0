package snapshot

import (
	"context"
	"sort"
	"sync"

	"eve.evalgo.org/eventledger/model"
)

// MemStore is a process-local Store, used for tests and as the fixture
// the policy/retention logic is exercised against.
type MemStore struct {
	mu      sync.Mutex
	records map[string][]model.SnapshotRecord
}

func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string][]model.SnapshotRecord)}
}

func key(objectName, objectID string) string { return objectName + "/" + objectID }

func (m *MemStore) Save(_ context.Context, record model.SnapshotRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(record.ObjectName, record.ObjectID)
	m.records[k] = append(m.records[k], record)
	sort.Slice(m.records[k], func(i, j int) bool { return m.records[k][i].Version < m.records[k][j].Version })
	return nil
}

func (m *MemStore) List(_ context.Context, objectName, objectID string) ([]model.SnapshotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.records[key(objectName, objectID)]
	out := make([]model.SnapshotRecord, len(existing))
	copy(out, existing)
	return out, nil
}

func (m *MemStore) Delete(_ context.Context, objectName, objectID string, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(objectName, objectID)
	existing := m.records[k]
	for i, r := range existing {
		if r.Version == version {
			m.records[k] = append(existing[:i], existing[i+1:]...)
			return nil
		}
	}
	return nil
}
