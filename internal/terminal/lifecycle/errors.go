package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/termhost/internal/shared/apperrors"
)

var (
	// ErrNotFound is returned when no machine exists for a terminal id.
	ErrNotFound = apperrors.Sentinel(apperrors.KindValidation, "lifecycle: terminal not found")
	// ErrExists is returned when a machine already exists for a terminal id.
	ErrExists = apperrors.Sentinel(apperrors.KindProgrammer, "lifecycle: terminal already tracked")
)

// InvalidTransitionError reports a transition outside the table.
type InvalidTransitionError struct {
	TerminalID string
	From       State
	To         State
	Valid      []State
}

func (e *InvalidTransitionError) Error() string {
	valid := make([]string, len(e.Valid))
	for i, s := range e.Valid {
		valid[i] = string(s)
	}
	allowed := "none"
	if len(valid) > 0 {
		allowed = strings.Join(valid, ", ")
	}
	return fmt.Sprintf("lifecycle: invalid transition %s -> %s for %s (valid: %s)",
		e.From, e.To, e.TerminalID, allowed)
}

// Kind classifies the error as a validation failure.
func (e *InvalidTransitionError) Kind() apperrors.Kind {
	return apperrors.KindValidation
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}
