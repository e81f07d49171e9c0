package snapshot

import (
	"context"
	"time"

	"eve.evalgo.org/eventledger/model"
	"eve.evalgo.org/eventledger/session"
)

// StateSerializer renders the aggregate's current state into bytes,
// given the manifest and events a commit just landed. It is the only
// domain-specific hook Handler needs: everything else (policy gating,
// retention) is generic.
type StateSerializer func(ctx context.Context, result session.CommitResult) ([]byte, error)

// Handler drives snapshot creation and cleanup from session commits.
type Handler struct {
	store      Store
	policy     model.SnapshotPolicy
	serializer StateSerializer
}

func NewHandler(store Store, policy model.SnapshotPolicy, serializer StateSerializer) *Handler {
	return &Handler{store: store, policy: policy, serializer: serializer}
}

// PostCommitAction adapts Handler into the session.PostCommitAction
// extension point, run after every successful commit.
func (h *Handler) PostCommitAction() session.PostCommitAction {
	return session.PostCommitAction{Name: "snapshot", Run: h.run}
}

func (h *Handler) run(ctx context.Context, result session.CommitResult) error {
	if !h.policy.Enabled {
		return nil
	}

	totalEventsProcessed := result.ToVersion + 1
	if totalEventsProcessed < h.policy.MinEventsBeforeSnapshot {
		return nil
	}

	existing, err := h.store.List(ctx, result.ObjectName, result.ObjectID)
	if err != nil {
		return err
	}

	lastVersion := int64(-1)
	if len(existing) > 0 {
		lastVersion = existing[len(existing)-1].Version
	}
	if result.ToVersion-lastVersion < h.policy.Every {
		return nil
	}

	state, err := h.serializer(ctx, result)
	if err != nil {
		return err
	}

	record := model.SnapshotRecord{
		ObjectName: result.ObjectName,
		ObjectID:   result.ObjectID,
		Version:    result.ToVersion,
		CreatedAt:  time.Now().UTC(),
		State:      state,
		Location:   model.SnapshotLocation(result.ObjectID, result.ToVersion),
	}
	if err := h.store.Save(ctx, record); err != nil {
		return err
	}

	return h.cleanup(ctx, result.ObjectName, result.ObjectID)
}

// cleanup retains the K newest snapshots plus any within MaxAge, always
// keeping at least one (spec.md §4.J).
func (h *Handler) cleanup(ctx context.Context, objectName, objectID string) error {
	records, err := h.store.List(ctx, objectName, objectID)
	if err != nil {
		return err
	}
	if len(records) <= 1 {
		return nil
	}

	keep := make(map[int64]bool, len(records))

	keepCount := h.policy.KeepSnapshots
	start := len(records) - keepCount
	if start < 0 {
		start = 0
	}
	for _, r := range records[start:] {
		keep[r.Version] = true
	}

	if h.policy.MaxAge > 0 {
		now := time.Now().UTC()
		for _, r := range records {
			if now.Sub(r.CreatedAt) <= h.policy.MaxAge {
				keep[r.Version] = true
			}
		}
	}

	if len(keep) == 0 {
		keep[records[len(records)-1].Version] = true
	}

	for _, r := range records {
		if keep[r.Version] {
			continue
		}
		if err := h.store.Delete(ctx, objectName, objectID, r.Version); err != nil {
			return err
		}
	}
	return nil
}
