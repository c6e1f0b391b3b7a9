// Package identity provides client identifier generation and validation.
package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// IDLength is the length of a generated client identifier.
	IDLength = 16

	// MaxIDLength is the longest identifier accepted from a client.
	MaxIDLength = 64

	// alphabet is the set of symbols used for generated identifiers.
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var (
	// ErrEmptyID is returned when an identifier is empty.
	ErrEmptyID = errors.New("identifier is empty")

	// ErrIDTooLong is returned when an identifier exceeds MaxIDLength.
	ErrIDTooLong = errors.New("identifier too long")

	// ErrInvalidCharacter is returned when an identifier contains
	// control or non-ASCII characters.
	ErrInvalidCharacter = errors.New("identifier contains invalid characters")
)

// Generate produces a random IDLength-character identifier drawn uniformly
// from the alphanumeric alphabet. It provides no uniqueness guarantee on its
// own; callers must check the result against the live registry.
func Generate() string {
	buf := make([]byte, IDLength)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		// crypto/rand never fails on supported platforms; if it does the
		// process has no usable entropy source and cannot admit clients.
		panic(fmt.Sprintf("identity: entropy source unavailable: %v", err))
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf)
}

// Validate checks a client-supplied identifier for basic sanity before it is
// used in a registry lookup or insert. Generated identifiers always pass.
func Validate(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: %d chars, max %d", ErrIDTooLong, len(id), MaxIDLength)
	}
	for _, r := range id {
		if r <= 0x20 || r > 0x7e {
			return ErrInvalidCharacter
		}
	}
	return nil
}
