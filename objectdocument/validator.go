package objectdocument

import (
	"regexp"

	"eve.evalgo.org/eventledger/ledgererr"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateIdentifier checks a path component used in a storage key
// (object name or object id) against spec.md §4.C's validator before it
// ever touches storage.
func ValidateIdentifier(field, value string) error {
	if !identifierPattern.MatchString(value) {
		return &ledgererr.InvalidObjectId{Field: field, Value: value}
	}
	return nil
}
