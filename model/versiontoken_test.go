package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/eventledger/ledgererr"
)

func TestVersionTokenCompareOrdersByEventVersion(t *testing.T) {
	a := VersionToken{ObjectName: "order", ObjectID: "o1", EventVersion: 2}
	b := VersionToken{ObjectName: "order", ObjectID: "o1", EventVersion: 5}

	cmp, err := a.Compare(b)
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	cmp, err = b.Compare(a)
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)

	cmp, err = a.Compare(a)
	require.NoError(t, err)
	assert.Equal(t, 0, cmp)
}

func TestVersionTokenCompareRejectsDifferentObjects(t *testing.T) {
	a := VersionToken{ObjectName: "order", ObjectID: "o1", EventVersion: 2}
	b := VersionToken{ObjectName: "order", ObjectID: "o2", EventVersion: 2}

	_, err := a.Compare(b)
	require.Error(t, err)
	var mismatch *ledgererr.VersionTokenMismatch
	assert.ErrorAs(t, err, &mismatch)
}

func TestObjectIDWireFormRoundTrip(t *testing.T) {
	wire, err := ObjectIDWireForm("o1", "order.v1")
	require.NoError(t, err)
	assert.Equal(t, "oid[o1]order.v1", wire)

	value, schema, err := ParseObjectIDWireForm(wire)
	require.NoError(t, err)
	assert.Equal(t, "o1", value)
	assert.Equal(t, "order.v1", schema)
}

func TestObjectIDWireFormRejectsEmptySchema(t *testing.T) {
	_, err := ObjectIDWireForm("o1", "")
	require.Error(t, err)

	_, _, err = ParseObjectIDWireForm("oid[o1]")
	require.Error(t, err)
}

func TestVersionIDWireFormRoundTrip(t *testing.T) {
	wire, err := VersionIDWireForm("o1:4", "order.v1")
	require.NoError(t, err)

	value, schema, err := ParseVersionIDWireForm(wire)
	require.NoError(t, err)
	assert.Equal(t, "o1:4", value)
	assert.Equal(t, "order.v1", schema)
}

func TestParseWireFormRejectsMissingPrefix(t *testing.T) {
	_, _, err := ParseObjectIDWireForm("vid[o1]order.v1")
	require.Error(t, err)
}

func TestParseWireFormRejectsMissingCloseBracket(t *testing.T) {
	_, _, err := ParseObjectIDWireForm("oid[o1")
	require.Error(t, err)
}
