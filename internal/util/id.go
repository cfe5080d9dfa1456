package util

import "github.com/google/uuid"

func NewID() string {
	return uuid.NewString()
}

// IsID reports whether value parses as a UUID, the id format used by
// every table in the schema.
func IsID(value string) bool {
	return uuid.Validate(value) == nil
}
