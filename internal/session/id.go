// Package session holds session identity helpers. A session has no stored record
// of its own; it exists while at least one turn carries its id.
package session

import (
	"errors"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const MaxIDLength = 128

var ErrInvalidID = errors.New("invalid session id")

// NewID mints an opaque session id.
func NewID() string {
	return uuid.NewString()
}

// Normalize trims id and returns a minted one when it is empty.
// The boolean reports whether a new id was minted.
func Normalize(id string) (string, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return NewID(), true, nil
	}
	if err := Validate(id); err != nil {
		return "", false, err
	}
	return id, false, nil
}

// Validate rejects ids that cannot be used as a storage or routing key.
func Validate(id string) error {
	if id == "" || len(id) > MaxIDLength {
		return ErrInvalidID
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) || r == '/' || r == '#' {
			return ErrInvalidID
		}
	}
	return nil
}
