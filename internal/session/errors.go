package session

import (
	"github.com/GriffinCanCode/termhost/internal/shared/apperrors"
)

var (
	// ErrRestoreInProgress is returned when Restore is re-entered.
	ErrRestoreInProgress = apperrors.Sentinel(apperrors.KindProgrammer, "session: restore already in progress")
	// ErrDisabled is returned when persistence is switched off.
	ErrDisabled = apperrors.Sentinel(apperrors.KindValidation, "session: persistence disabled")
)

// RestoreError reports a snapshot that cannot be restored. The stored
// session is cleared when one is encountered.
type RestoreError struct {
	Reason string
	Err    error
}

func (e *RestoreError) Error() string {
	if e.Err != nil {
		return "session: restore: " + e.Reason + ": " + e.Err.Error()
	}
	return "session: restore: " + e.Reason
}

func (e *RestoreError) Unwrap() error { return e.Err }

// Kind classifies the error.
func (e *RestoreError) Kind() apperrors.Kind { return apperrors.KindRestore }
