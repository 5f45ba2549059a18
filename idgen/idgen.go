// Package idgen generates the identifiers used for sessions and journal
// entries.
package idgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 UUID v7 strings (time-sortable).
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID from gen ("pgs_", "op_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using Default.
func New() string {
	return Default()
}

// ParsePrefixed checks that id is prefix followed by a valid UUID and
// returns id unchanged.
func ParsePrefixed(prefix, id string) (string, error) {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return "", fmt.Errorf("idgen: %q: missing prefix %q", id, prefix)
	}
	if _, err := uuid.Parse(rest); err != nil {
		return "", fmt.Errorf("idgen: %q: invalid UUID: %w", id, err)
	}
	return id, nil
}
