// Package roomid generates short human-shareable room codes.
package roomid

import (
	"crypto/rand"
	"fmt"
)

// Crockford's base32 alphabet, lowercased. No i/l/o/u so codes survive
// being read aloud or retyped.
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// CodeLength is the number of characters in a room code.
const CodeLength = 6

// RandSource interface for dependency injection of randomness
type RandSource interface {
	Intn(n int) int
}

// Generator produces room codes with configurable randomness.
type Generator struct {
	randSource RandSource
}

// NewGenerator creates a generator. A nil RandSource uses crypto/rand.
func NewGenerator(randSource RandSource) *Generator {
	return &Generator{randSource: randSource}
}

// Generate returns a new room code using crypto/rand.
func Generate() string {
	return NewGenerator(nil).Generate()
}

// Generate returns a new CodeLength-character room code. Uniqueness among
// active rooms is the caller's concern; the room manager retries on
// collision.
func (g *Generator) Generate() string {
	code := make([]byte, CodeLength)
	if g.randSource != nil {
		for i := range code {
			code[i] = alphabet[g.randSource.Intn(len(alphabet))]
		}
		return string(code)
	}

	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		panic("failed to generate random bytes: " + err.Error())
	}
	for i := range code {
		code[i] = alphabet[int(buf[i])%len(alphabet)]
	}
	return string(code)
}

// Validate checks that a code has the right length and alphabet.
func Validate(code string) error {
	if len(code) != CodeLength {
		return fmt.Errorf("room code must be exactly %d characters, got %d", CodeLength, len(code))
	}
	for i, ch := range code {
		valid := false
		for _, a := range alphabet {
			if ch == a {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid character %c at position %d", ch, i)
		}
	}
	return nil
}
