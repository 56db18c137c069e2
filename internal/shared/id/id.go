// Package id provides identifier generation for terminals and protocol
// round-trips.
//
// Terminal ids are prefixed ULIDs: lexicographically sortable by creation
// time and readable in logs ("term_01J..."). Request ids used to correlate
// request/response pairs with the rendering surface are random UUIDs.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// TerminalID identifies a terminal instance.
type TerminalID string

// RequestID correlates a request with its response.
type RequestID string

const (
	TerminalPrefix = "term"
	RequestPrefix  = "req"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator with cryptographically secure entropy.
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string.
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewTerminalID generates a new terminal ID.
func NewTerminalID() TerminalID {
	return TerminalID(Default().GenerateWithPrefix(TerminalPrefix))
}

// NewRequestID generates a new request ID for a surface round-trip.
func NewRequestID() RequestID {
	return RequestID(RequestPrefix + "_" + uuid.NewString())
}

func (id TerminalID) String() string { return string(id) }
func (id RequestID) String() string  { return string(id) }

// IsValid checks if an ID string is a valid ULID.
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// IsTerminalID reports whether s looks like a generated terminal id.
func IsTerminalID(s string) bool {
	rest, ok := strings.CutPrefix(s, TerminalPrefix+"_")
	return ok && IsValid(rest)
}

// Timestamp extracts the creation time from a generated terminal id.
func Timestamp(s string) (time.Time, error) {
	rest, _ := strings.CutPrefix(s, TerminalPrefix+"_")
	parsed, err := ulid.Parse(rest)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

// ValidateExternal checks an id received from outside the process: ids must
// be non-empty, at most 128 bytes, and free of whitespace and control bytes.
func ValidateExternal(s string) error {
	if s == "" {
		return fmt.Errorf("id is empty")
	}
	if len(s) > 128 {
		return fmt.Errorf("id exceeds 128 bytes")
	}
	for _, r := range s {
		if r <= ' ' || r == 0x7f {
			return fmt.Errorf("id contains invalid character %q", r)
		}
	}
	return nil
}
