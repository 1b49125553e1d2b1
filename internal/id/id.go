// Package id generates identifiers for requests and events.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUID v7 strings.
type Generator struct{}

// NewGenerator creates a new Generator.
func NewGenerator() Generator {
	return Generator{}
}

// NewID returns a UUID v7 string.
func (Generator) NewID() (string, error) {
	v, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return v.String(), nil
}

// MustNewID returns a UUID v7 string, falling back to a random v4 when the
// v7 clock source fails.
func (g Generator) MustNewID() string {
	if v, err := g.NewID(); err == nil {
		return v
	}
	return uuid.NewString()
}
