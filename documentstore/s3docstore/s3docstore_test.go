package s3docstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/eventledger/ledgererr"
	"eve.evalgo.org/eventledger/model"
)

type mockClient struct {
	objects map[string][]byte
}

func newMockClient() *mockClient { return &mockClient{objects: make(map[string][]byte)} }

func (m *mockClient) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockClient) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func newDoc(t *testing.T) *model.ObjectDocument {
	t.Helper()
	doc, err := model.New("order", "o1", "1", model.Stream{StreamIdentifier: "order-o1-0", CurrentStreamVersion: -1})
	require.NoError(t, err)
	return doc
}

func TestCreateGetSetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New(newMockClient(), "eventledger-test")

	created, err := store.Create(ctx, newDoc(t))
	require.NoError(t, err)

	fetched, err := store.Get(ctx, "order", "o1")
	require.NoError(t, err)
	assert.Equal(t, created.ETag, fetched.ETag)

	created.Active.CurrentStreamVersion = 0
	require.NoError(t, created.Advance())
	updated, err := store.Set(ctx, created)
	require.NoError(t, err)
	assert.NotEqual(t, created.ETag, updated.ETag)
}

func TestCreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	store := New(newMockClient(), "eventledger-test")
	_, err := store.Create(ctx, newDoc(t))
	require.NoError(t, err)

	_, err = store.Create(ctx, newDoc(t))
	require.Error(t, err)
	assert.True(t, ledgererr.Is(err, ledgererr.CodeConstraintViolation))
}

func TestSetRejectsMismatchedETag(t *testing.T) {
	ctx := context.Background()
	store := New(newMockClient(), "eventledger-test")
	created, err := store.Create(ctx, newDoc(t))
	require.NoError(t, err)

	created.ETag = "wrong"
	_, err = store.Set(ctx, created)
	require.Error(t, err)
	var conflict *ledgererr.OptimisticConcurrencyConflict
	assert.ErrorAs(t, err, &conflict)
}
