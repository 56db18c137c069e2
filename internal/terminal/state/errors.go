package state

import (
	"fmt"

	"github.com/GriffinCanCode/termhost/internal/shared/apperrors"
)

var (
	// ErrDuplicateTerminal is returned when registering an id that exists.
	ErrDuplicateTerminal = apperrors.Sentinel(apperrors.KindProgrammer, "state: terminal already registered")
	// ErrNotFound is returned for unknown terminal ids.
	ErrNotFound = apperrors.Sentinel(apperrors.KindValidation, "state: terminal not found")
	// ErrPoolFull is returned when every terminal number is taken.
	ErrPoolFull = apperrors.Sentinel(apperrors.KindValidation, "state: maximum number of terminals reached")
	// ErrNumberInUse is returned when a requested number belongs to a live terminal.
	ErrNumberInUse = apperrors.Sentinel(apperrors.KindValidation, "state: terminal number in use")
	// ErrInvalidNumber is returned for numbers outside 1..MaxTerminals.
	ErrInvalidNumber = apperrors.Sentinel(apperrors.KindValidation, "state: terminal number out of range")
	// ErrInvalidID is returned for empty terminal ids.
	ErrInvalidID = apperrors.Sentinel(apperrors.KindValidation, "state: invalid terminal id")
)

// IntegrityError is a registry inconsistency found by HealthCheck.
type IntegrityError struct {
	TerminalID string `json:"terminalId,omitempty"`
	Field      string `json:"field"`
	Problem    string `json:"problem"`
}

func (e *IntegrityError) Error() string {
	if e.TerminalID == "" {
		return fmt.Sprintf("state integrity: %s: %s", e.Field, e.Problem)
	}
	return fmt.Sprintf("state integrity: %s %s: %s", e.TerminalID, e.Field, e.Problem)
}

// Kind classifies the error as an integrity failure.
func (e *IntegrityError) Kind() apperrors.Kind {
	return apperrors.KindIntegrity
}
