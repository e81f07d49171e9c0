package model

import (
	"fmt"
	"strings"

	"eve.evalgo.org/eventledger/ledgererr"
)

// VersionToken is the triple (object_name, object_id, stream_identifier,
// event_version) projections use to reference a specific point in an
// object's history. Two tokens are only comparable when they share the
// same object_name + object_id (spec.md §3).
type VersionToken struct {
	ObjectName       string
	ObjectID         string
	StreamIdentifier string
	EventVersion     int64
	SchemaVersion    string
}

// sameObject reports whether t and other refer to the same logical object.
func (t VersionToken) sameObject(other VersionToken) bool {
	return t.ObjectName == other.ObjectName && t.ObjectID == other.ObjectID
}

// Compare orders t against other within the same object's history. It
// fails with a VersionTokenMismatch when the tokens belong to different
// objects, since "version 3 of order A" and "version 3 of order B" have
// no meaningful ordering.
func (t VersionToken) Compare(other VersionToken) (int, error) {
	if !t.sameObject(other) {
		return 0, &ledgererr.VersionTokenMismatch{
			Left:  fmt.Sprintf("%s/%s", t.ObjectName, t.ObjectID),
			Right: fmt.Sprintf("%s/%s", other.ObjectName, other.ObjectID),
		}
	}
	switch {
	case t.EventVersion < other.EventVersion:
		return -1, nil
	case t.EventVersion > other.EventVersion:
		return 1, nil
	default:
		return 0, nil
	}
}

// ObjectIDWireForm formats an object identifier in the engine's wire
// notation: oid[<value>]<schema>. An empty schema is a parse error on the
// way back in, so ObjectIDWireForm rejects it up front too.
func ObjectIDWireForm(value, schema string) (string, error) {
	if schema == "" {
		return "", fmt.Errorf("model: object id schema must not be empty")
	}
	return fmt.Sprintf("oid[%s]%s", value, schema), nil
}

// ParseObjectIDWireForm parses the oid[<value>]<schema> wire form.
func ParseObjectIDWireForm(wire string) (value, schema string, err error) {
	return parseWireForm(wire, "oid[")
}

// VersionIDWireForm formats a version token in the engine's wire
// notation: vid[<value>]<schema>.
func VersionIDWireForm(value, schema string) (string, error) {
	if schema == "" {
		return "", fmt.Errorf("model: version id schema must not be empty")
	}
	return fmt.Sprintf("vid[%s]%s", value, schema), nil
}

// ParseVersionIDWireForm parses the vid[<value>]<schema> wire form.
func ParseVersionIDWireForm(wire string) (value, schema string, err error) {
	return parseWireForm(wire, "vid[")
}

func parseWireForm(wire, prefix string) (value, schema string, err error) {
	if !strings.HasPrefix(wire, prefix) {
		return "", "", fmt.Errorf("model: %q does not start with %q", wire, prefix)
	}
	rest := wire[len(prefix):]
	closeIdx := strings.Index(rest, "]")
	if closeIdx < 0 {
		return "", "", fmt.Errorf("model: %q missing closing ']'", wire)
	}
	value = rest[:closeIdx]
	schema = rest[closeIdx+1:]
	if schema == "" {
		return "", "", fmt.Errorf("model: %q has empty or missing schema", wire)
	}
	return value, schema, nil
}
