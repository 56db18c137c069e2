// Package apperrors classifies backend failures so subsystem boundaries can
// decide how to surface them: validation failures are rejected before any
// process is touched, transient I/O is retried, and integrity findings are
// reported as diagnostics.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// KindUnknown is an uncategorized failure.
	KindUnknown Kind = "unknown"
	// KindValidation indicates bad ids, dimensions or payload sizes.
	KindValidation Kind = "validation"
	// KindTransientIO indicates a write or resize failure that may succeed on retry.
	KindTransientIO Kind = "transient_io"
	// KindHandshakeTimeout indicates the rendering surface never acknowledged a terminal.
	KindHandshakeTimeout Kind = "handshake_timeout"
	// KindRestore indicates an invalid or expired session snapshot.
	KindRestore Kind = "restore"
	// KindIntegrity indicates inconsistent registry state.
	KindIntegrity Kind = "integrity"
	// KindProgrammer indicates misuse such as reusing a disposed service.
	KindProgrammer Kind = "programmer"
)

// Kinded is implemented by errors that carry a classification.
type Kinded interface {
	Kind() Kind
}

// Error wraps a failure with a stable classification.
type Error struct {
	kind Kind
	Op   string
	Err  error
}

// New constructs a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{kind: kind, Op: op, Err: err}
}

// Kind returns the classification.
func (e *Error) Kind() Kind {
	return e.kind
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return fmt.Sprintf("%s failed", e.Op)
	}
	return string(e.kind) + " error"
}

func (e *Error) Unwrap() error {
	return e.Err
}

type sentinel struct {
	kind Kind
	msg  string
}

func (s *sentinel) Error() string { return s.msg }
func (s *sentinel) Kind() Kind    { return s.kind }

// Sentinel returns a comparable error value with a fixed classification.
// Use it for package-level Err variables.
func Sentinel(kind Kind, msg string) error {
	return &sentinel{kind: kind, msg: msg}
}

// KindOf returns the classification of the first classified error in err's
// chain, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
