package util

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewID returns a lowercase ULID, optionally prefixed. ULIDs sort by creation
// time, so ids double as a stable tie-breaker in listings.
func NewID(prefix string) string {
	id := strings.ToLower(ulid.Make().String())
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
