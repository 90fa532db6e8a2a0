package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxIDLength is the maximum length of a group, resource or version id
const MaxIDLength = 256

// ValidateNonEmpty validates that a string is not empty
func ValidateNonEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	return nil
}

// ValidateID validates an id taken from a URL path or document. Ids become
// path segments, storage keys and blob keys.
func ValidateID(field, id string) error {
	if err := ValidateNonEmpty(field, id); err != nil {
		return ValidationError{Field: field, Reason: "cannot be empty"}
	}
	if len(id) > MaxIDLength {
		return ValidationError{Field: field, Reason: fmt.Sprintf("length (%d) exceeds maximum (%d)", len(id), MaxIDLength)}
	}
	if !utf8.ValidString(id) {
		return ValidationError{Field: field, Reason: "must be valid UTF-8"}
	}
	if strings.ContainsAny(id, "/\\?#\x00") {
		return ValidationError{Field: field, Reason: "cannot contain '/', '\\', '?', '#' or NUL"}
	}
	if id == "." || id == ".." {
		return ValidationError{Field: field, Reason: "cannot be a relative path segment"}
	}
	return nil
}

// ValidateBodyID checks that an id present in a request body matches the
// id addressed by the URL. An empty body id is allowed.
func ValidateBodyID(pathID, bodyID string) error {
	if bodyID != "" && bodyID != pathID {
		return ValidationError{Field: "id", Reason: fmt.Sprintf("body id '%s' does not match path id '%s'", bodyID, pathID)}
	}
	return nil
}

// ValidateIDs validates every key of an id-keyed collection
func ValidateIDs[T any](field string, items map[string]T) error {
	for id := range items {
		if err := ValidateID(field, id); err != nil {
			return err
		}
	}
	return nil
}
