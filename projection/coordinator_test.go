package projection_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
	"eve.evalgo.org/eventledger/projection"
)

func TestStartRebuildFromActive(t *testing.T) {
	ctx := context.Background()
	coord := projection.NewCoordinator(projection.NewMemStore())

	state, err := coord.StartRebuild(ctx, "order-summary", "o1", model.RebuildBlueGreen, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectionRebuilding, state.Status)
	require.NotNil(t, state.Token)
	require.NotNil(t, state.RebuildInfo)
	assert.Equal(t, model.RebuildBlueGreen, state.RebuildInfo.Strategy)
}

func TestStartRebuildRejectsNonActiveSource(t *testing.T) {
	ctx := context.Background()
	coord := projection.NewCoordinator(projection.NewMemStore())

	state, err := coord.StartRebuild(ctx, "order-summary", "o1", model.RebuildBlueGreen, time.Minute)
	require.NoError(t, err)

	_, err = coord.StartRebuild(ctx, "order-summary", "o1", model.RebuildBlueGreen, time.Minute)
	require.Error(t, err)
	var invalid *ledgererr.InvalidOperationException
	require.ErrorAs(t, err, &invalid)
	_ = state
}

func TestFullRebuildLifecycle(t *testing.T) {
	ctx := context.Background()
	coord := projection.NewCoordinator(projection.NewMemStore())

	state, err := coord.StartRebuild(ctx, "order-summary", "o1", model.RebuildBlockingWithCatchUp, time.Minute)
	require.NoError(t, err)
	token := *state.Token

	state, err = coord.StartCatchUp(ctx, "order-summary", "o1", token)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectionCatchingUp, state.Status)

	state, err = coord.CompleteRebuild(ctx, "order-summary", "o1", token)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectionActive, state.Status)
	assert.Nil(t, state.Token)
	assert.Nil(t, state.RebuildInfo)
}

func TestCancelRebuildWithoutCauseReturnsToActive(t *testing.T) {
	ctx := context.Background()
	coord := projection.NewCoordinator(projection.NewMemStore())

	state, err := coord.StartRebuild(ctx, "order-summary", "o1", model.RebuildBlueGreen, time.Minute)
	require.NoError(t, err)
	token := *state.Token

	state, err = coord.CancelRebuild(ctx, "order-summary", "o1", token, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectionActive, state.Status)
}

func TestCancelRebuildWithCauseFails(t *testing.T) {
	ctx := context.Background()
	coord := projection.NewCoordinator(projection.NewMemStore())

	state, err := coord.StartRebuild(ctx, "order-summary", "o1", model.RebuildBlueGreen, time.Minute)
	require.NoError(t, err)
	token := *state.Token

	state, err = coord.CancelRebuild(ctx, "order-summary", "o1", token, errors.New("strategy exploded"))
	require.NoError(t, err)
	assert.Equal(t, model.ProjectionFailed, state.Status)
}

func TestTransitionRejectsMismatchedToken(t *testing.T) {
	ctx := context.Background()
	coord := projection.NewCoordinator(projection.NewMemStore())

	_, err := coord.StartRebuild(ctx, "order-summary", "o1", model.RebuildBlueGreen, time.Minute)
	require.NoError(t, err)

	wrongToken := model.RebuildToken{TokenID: "not-the-real-token"}
	_, err = coord.StartCatchUp(ctx, "order-summary", "o1", wrongToken)
	require.Error(t, err)
	var invalid *ledgererr.InvalidOperationException
	require.ErrorAs(t, err, &invalid)
}

func TestDisableCreatesIfAbsentAndEnableRestoresActive(t *testing.T) {
	ctx := context.Background()
	coord := projection.NewCoordinator(projection.NewMemStore())

	state, err := coord.Disable(ctx, "order-summary", "new-object")
	require.NoError(t, err)
	assert.Equal(t, model.ProjectionDisabled, state.Status)

	state, err = coord.Enable(ctx, "order-summary", "new-object")
	require.NoError(t, err)
	assert.Equal(t, model.ProjectionActive, state.Status)
}

func TestEnableIsNoOpWhenAbsent(t *testing.T) {
	ctx := context.Background()
	coord := projection.NewCoordinator(projection.NewMemStore())

	state, err := coord.Enable(ctx, "order-summary", "never-seen")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestDisableDuringRebuildThenEnableGoesToActive(t *testing.T) {
	ctx := context.Background()
	coord := projection.NewCoordinator(projection.NewMemStore())

	_, err := coord.StartRebuild(ctx, "order-summary", "o1", model.RebuildBlueGreen, time.Minute)
	require.NoError(t, err)

	state, err := coord.Disable(ctx, "order-summary", "o1")
	require.NoError(t, err)
	assert.Equal(t, model.ProjectionDisabled, state.Status)

	state, err = coord.Enable(ctx, "order-summary", "o1")
	require.NoError(t, err)
	assert.Equal(t, model.ProjectionActive, state.Status)
}

func TestRecoverStuckRebuildsOnlyRecoversExpiredTokens(t *testing.T) {
	ctx := context.Background()
	store := projection.NewMemStore()
	coord := projection.NewCoordinator(store)

	_, err := coord.StartRebuild(ctx, "order-summary", "stuck", model.RebuildBlueGreen, -time.Minute)
	require.NoError(t, err)
	_, err = coord.StartRebuild(ctx, "order-summary", "fresh", model.RebuildBlueGreen, time.Hour)
	require.NoError(t, err)

	recovered, err := coord.RecoverStuckRebuilds(ctx, "order-summary", time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	assert.Equal(t, "stuck", recovered[0].ObjectID)
	assert.Equal(t, model.ProjectionActive, recovered[0].Status)

	fresh, err := store.Get(ctx, "order-summary", "fresh")
	require.NoError(t, err)
	assert.Equal(t, model.ProjectionRebuilding, fresh.Status)
}
