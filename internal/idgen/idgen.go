// Package idgen generates run identifiers backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// RunPrefix is prepended to every run ID.
const RunPrefix = "run-"

// Alphabet is URL- and filename-safe so IDs can appear in S3 keys and
// NATS payloads without escaping.
const Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Length is the number of random characters after the prefix.
const Length = 12

// RunID returns a new run identifier such as "run-3k9x0c1m2a7q".
func RunID() (string, error) {
	return WithPrefix(RunPrefix)
}

// WithPrefix returns a new ID with the given prefix.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
