// Package ids generates the public identifiers of sessions and participants.
package ids

import (
	"crypto/rand"
	"sync"

	"github.com/google/uuid"
)

// Generator produces identifiers. Session and participant codes come from
// one; pre-create correlation ids from another.
type Generator interface {
	Generate() string
}

const (
	codeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	codeLength   = 8
)

// CodeGenerator produces random 8-character codes of lowercase letters and
// digits. Codes are short enough to read aloud in a lab; callers retry on
// the rare collision.
//
// Thread-safety: CodeGenerator is stateless and safe for concurrent use.
type CodeGenerator struct{}

// Generate returns a fresh random code.
//
// Panics if the system random source fails.
func (CodeGenerator) Generate() string {
	// Rejection sampling keeps every character equally likely: bytes at or
	// above the largest multiple of 36 are discarded.
	const limit = 256 - 256%len(codeAlphabet)

	out := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength*2)
	for len(out) < codeLength {
		if _, err := rand.Read(buf); err != nil {
			panic("ids: crypto/rand failed: " + err.Error())
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == codeLength {
				break
			}
		}
	}
	return string(out)
}

// UUIDv7Generator generates time-sortable UUIDv7 pre-create ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so ids sort by
// the time the creation request was made.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined identifiers for testing.
//
// Tests can provide a known sequence, including deliberate repeats, to
// exercise collision retries and produce byte-stable golden output.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
//
// Example:
//
//	gen := NewFixedGenerator("sess0001", "part0001")
//	gen.Generate() // "sess0001"
//	gen.Generate() // "part0001"
//	gen.Generate() // panic: all tokens exhausted
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
//
// Panics if all tokens have been consumed. This is a fail-fast approach
// to catch test misconfiguration.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}

// Remaining reports how many tokens are left.
func (g *FixedGenerator) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tokens) - g.idx
}
