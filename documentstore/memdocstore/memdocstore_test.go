package memdocstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
)

func newDoc(t *testing.T) *model.ObjectDocument {
	t.Helper()
	doc, err := model.New("order", "o1", "1", model.Stream{StreamIdentifier: "order-o1-0", CurrentStreamVersion: -1})
	require.NoError(t, err)
	return doc
}

func TestCreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := New()
	doc := newDoc(t)

	created, err := s.Create(ctx, doc)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ETag)

	_, err = s.Create(ctx, doc)
	require.Error(t, err)
	assert.True(t, ledgererr.Is(err, ledgererr.CodeConstraintViolation))
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	_, err := New().Get(context.Background(), "order", "missing")
	require.Error(t, err)
	assert.True(t, ledgererr.Is(err, ledgererr.CodeExternalNotFound))
}

func TestSetRejectsStaleETag(t *testing.T) {
	ctx := context.Background()
	s := New()
	created, err := s.Create(ctx, newDoc(t))
	require.NoError(t, err)

	stale := *created
	stale.ETag = "stale-etag"
	stale.Active.CurrentStreamVersion = 0
	require.NoError(t, stale.Advance())

	_, err = s.Set(ctx, &stale)
	require.Error(t, err)
	var conflict *ledgererr.OptimisticConcurrencyConflict
	assert.ErrorAs(t, err, &conflict)
}

func TestSetSucceedsWithMatchingETagAndAdvancesHash(t *testing.T) {
	ctx := context.Background()
	s := New()
	created, err := s.Create(ctx, newDoc(t))
	require.NoError(t, err)

	created.Active.CurrentStreamVersion = 0
	require.NoError(t, created.Advance())

	updated, err := s.Set(ctx, created)
	require.NoError(t, err)
	assert.NotEqual(t, created.ETag, updated.ETag)

	fetched, err := s.Get(ctx, "order", "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), fetched.Active.CurrentStreamVersion)
}
