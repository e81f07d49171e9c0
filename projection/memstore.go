package projection

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
)

// MemStore is a process-local Store, used for tests and single-process
// deployments the way memdocstore.Store serves object-document manifests.
type MemStore struct {
	mu     sync.Mutex
	states map[string]*model.ProjectionState
}

func NewMemStore() *MemStore {
	return &MemStore{states: make(map[string]*model.ProjectionState)}
}

func clone(s *model.ProjectionState) *model.ProjectionState {
	c := *s
	return &c
}

func (m *MemStore) Create(_ context.Context, state *model.ProjectionState) (*model.ProjectionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := state.Key()
	if _, exists := m.states[k]; exists {
		return nil, ledgererr.New(ledgererr.CodeConstraintViolation, "projection status already exists: "+k)
	}
	stored := clone(state)
	stored.ETag = uuid.NewString()
	m.states[k] = stored
	return clone(stored), nil
}

func (m *MemStore) Get(_ context.Context, projectionName, objectID string) (*model.ProjectionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := projectionName + "_" + objectID
	stored, ok := m.states[k]
	if !ok {
		return nil, ledgererr.New(ledgererr.CodeExternalNotFound, "projection status not found: "+k)
	}
	return clone(stored), nil
}

func (m *MemStore) Set(_ context.Context, state *model.ProjectionState) (*model.ProjectionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := state.Key()
	stored, ok := m.states[k]
	if !ok {
		return nil, ledgererr.New(ledgererr.CodeExternalNotFound, "projection status not found: "+k)
	}
	if stored.ETag != state.ETag {
		return nil, &ledgererr.OptimisticConcurrencyConflict{
			StreamIdentifier: k,
			Expected:         state.ETag,
			Actual:           stored.ETag,
		}
	}
	next := clone(state)
	next.ETag = uuid.NewString()
	m.states[k] = next
	return clone(next), nil
}

func (m *MemStore) List(_ context.Context, projectionName string) ([]*model.ProjectionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ProjectionState
	for _, s := range m.states {
		if s.ProjectionName == projectionName {
			out = append(out, clone(s))
		}
	}
	return out, nil
}
