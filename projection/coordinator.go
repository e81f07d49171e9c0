package projection

import (
	"context"
	"time"

	"github.com/google/uuid"

	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
)

// Coordinator drives one projection's per-object rebuild state machine
// over a Store, enforcing the legal-transition table of spec.md §4.I:
//
//	Active      -> Rebuilding          StartRebuild(strategy)
//	Rebuilding  -> CatchingUp          StartCatchUp(token)
//	CatchingUp  -> Active              CompleteRebuild(token)
//	Rebuilding  -> Active              CancelRebuild(token, nil)
//	Rebuilding  -> Failed              CancelRebuild(token, err)
//	*           -> Disabled            Disable()
//	Disabled    -> Active              Enable()
//	Rebuilding  -> Active (recovered)  RecoverStuckRebuilds()  [token expired]
//
// Every transition that takes a token requires it to match the token
// recorded on the stored state; a mismatch raises InvalidOperationException
// rather than silently proceeding.
type Coordinator struct {
	store Store
}

func NewCoordinator(store Store) *Coordinator {
	return &Coordinator{store: store}
}

func (c *Coordinator) getOrCreate(ctx context.Context, projectionName, objectID string) (*model.ProjectionState, error) {
	state, err := c.store.Get(ctx, projectionName, objectID)
	if err == nil {
		return state, nil
	}
	if !ledgererr.Is(err, ledgererr.CodeExternalNotFound) {
		return nil, err
	}
	return c.store.Create(ctx, &model.ProjectionState{
		ProjectionName: projectionName,
		ObjectID:       objectID,
		Status:         model.ProjectionActive,
		LastUpdated:    time.Now().UTC(),
	})
}

func requireToken(state *model.ProjectionState, token model.RebuildToken) error {
	if state.Token == nil || state.Token.TokenID != token.TokenID {
		return &ledgererr.InvalidOperationException{Reason: "rebuild token does not match projection " + state.Key()}
	}
	return nil
}

// StartRebuild transitions (projectionName, objectID) from Active to
// Rebuilding and issues a token valid for ttl. There is no default ttl: a
// ttl <= 0 produces a token that is already expired.
func (c *Coordinator) StartRebuild(ctx context.Context, projectionName, objectID string, strategy model.RebuildStrategy, ttl time.Duration) (*model.ProjectionState, error) {
	state, err := c.getOrCreate(ctx, projectionName, objectID)
	if err != nil {
		return nil, err
	}
	if state.Status != model.ProjectionActive {
		return nil, &ledgererr.InvalidOperationException{Reason: "cannot start rebuild from status " + string(state.Status)}
	}

	now := time.Now().UTC()
	token := model.RebuildToken{
		ProjectionName: projectionName,
		ObjectID:       objectID,
		TokenID:        uuid.NewString(),
		Strategy:       strategy,
		IssuedAt:       now,
		ExpiresAt:      now.Add(ttl),
	}

	updated := *state
	updated.Status = model.ProjectionRebuilding
	updated.RebuildInfo = &model.RebuildInfo{Strategy: strategy, StartedAt: now}
	updated.Token = &token
	updated.Version++
	updated.LastUpdated = now
	return c.store.Set(ctx, &updated)
}

// StartCatchUp transitions Rebuilding -> CatchingUp.
func (c *Coordinator) StartCatchUp(ctx context.Context, projectionName, objectID string, token model.RebuildToken) (*model.ProjectionState, error) {
	state, err := c.store.Get(ctx, projectionName, objectID)
	if err != nil {
		return nil, err
	}
	if state.Status != model.ProjectionRebuilding {
		return nil, &ledgererr.InvalidOperationException{Reason: "cannot start catch-up from status " + string(state.Status)}
	}
	if err := requireToken(state, token); err != nil {
		return nil, err
	}

	updated := *state
	updated.Status = model.ProjectionCatchingUp
	updated.Version++
	updated.LastUpdated = time.Now().UTC()
	return c.store.Set(ctx, &updated)
}

// CompleteRebuild transitions CatchingUp -> Active, retiring the token.
func (c *Coordinator) CompleteRebuild(ctx context.Context, projectionName, objectID string, token model.RebuildToken) (*model.ProjectionState, error) {
	state, err := c.store.Get(ctx, projectionName, objectID)
	if err != nil {
		return nil, err
	}
	if state.Status != model.ProjectionCatchingUp {
		return nil, &ledgererr.InvalidOperationException{Reason: "cannot complete rebuild from status " + string(state.Status)}
	}
	if err := requireToken(state, token); err != nil {
		return nil, err
	}

	updated := *state
	updated.Status = model.ProjectionActive
	updated.RebuildInfo = nil
	updated.Token = nil
	updated.Version++
	updated.LastUpdated = time.Now().UTC()
	return c.store.Set(ctx, &updated)
}

// CancelRebuild transitions Rebuilding -> Active (cause == nil) or
// Rebuilding -> Failed (cause != nil), retiring the token either way.
func (c *Coordinator) CancelRebuild(ctx context.Context, projectionName, objectID string, token model.RebuildToken, cause error) (*model.ProjectionState, error) {
	state, err := c.store.Get(ctx, projectionName, objectID)
	if err != nil {
		return nil, err
	}
	if state.Status != model.ProjectionRebuilding {
		return nil, &ledgererr.InvalidOperationException{Reason: "cannot cancel rebuild from status " + string(state.Status)}
	}
	if err := requireToken(state, token); err != nil {
		return nil, err
	}

	updated := *state
	if cause == nil {
		updated.Status = model.ProjectionActive
	} else {
		updated.Status = model.ProjectionFailed
	}
	updated.RebuildInfo = nil
	updated.Token = nil
	updated.Version++
	updated.LastUpdated = time.Now().UTC()
	return c.store.Set(ctx, &updated)
}

// Disable transitions any status to Disabled, creating the status
// document first if (projectionName, objectID) has never been seen.
func (c *Coordinator) Disable(ctx context.Context, projectionName, objectID string) (*model.ProjectionState, error) {
	state, err := c.getOrCreate(ctx, projectionName, objectID)
	if err != nil {
		return nil, err
	}
	if state.Status == model.ProjectionDisabled {
		return state, nil
	}

	updated := *state
	updated.Status = model.ProjectionDisabled
	updated.Version++
	updated.LastUpdated = time.Now().UTC()
	return c.store.Set(ctx, &updated)
}

// Enable transitions Disabled -> Active. A no-op (returns nil, nil) if
// the status document does not exist, and idempotent if it is not
// currently Disabled.
func (c *Coordinator) Enable(ctx context.Context, projectionName, objectID string) (*model.ProjectionState, error) {
	state, err := c.store.Get(ctx, projectionName, objectID)
	if err != nil {
		if ledgererr.Is(err, ledgererr.CodeExternalNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if state.Status != model.ProjectionDisabled {
		return state, nil
	}

	updated := *state
	updated.Status = model.ProjectionActive
	updated.Version++
	updated.LastUpdated = time.Now().UTC()
	return c.store.Set(ctx, &updated)
}

// RecoverStuckRebuilds scans every status document under projectionName
// and moves any Rebuilding entry whose token has expired as of now back
// to Active, returning the recovered states.
func (c *Coordinator) RecoverStuckRebuilds(ctx context.Context, projectionName string, now time.Time) ([]*model.ProjectionState, error) {
	states, err := c.store.List(ctx, projectionName)
	if err != nil {
		return nil, err
	}

	var recovered []*model.ProjectionState
	for _, state := range states {
		if state.Status != model.ProjectionRebuilding || state.Token == nil || !state.Token.Expired(now) {
			continue
		}
		updated := *state
		updated.Status = model.ProjectionActive
		updated.RebuildInfo = nil
		updated.Token = nil
		updated.Version++
		updated.LastUpdated = now
		committed, err := c.store.Set(ctx, &updated)
		if err != nil {
			return recovered, err
		}
		recovered = append(recovered, committed)
	}
	return recovered, nil
}
