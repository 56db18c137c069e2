package dispatch

import "github.com/GriffinCanCode/termhost/internal/shared/apperrors"

var (
	// ErrHandlersFrozen is returned when the handler table is built twice.
	ErrHandlersFrozen = apperrors.Sentinel(apperrors.KindProgrammer, "dispatch: handlers already registered")
	// ErrDeleteTimeout is returned when the surface never answers a deletion request.
	ErrDeleteTimeout = apperrors.Sentinel(apperrors.KindTransientIO, "dispatch: deletion response timed out")
	// ErrDeleteRejected is returned when the surface declines a deletion.
	ErrDeleteRejected = apperrors.Sentinel(apperrors.KindValidation, "dispatch: deletion rejected")
	// ErrClosed is returned after the dispatcher is closed.
	ErrClosed = apperrors.Sentinel(apperrors.KindProgrammer, "dispatch: closed")
	// ErrMissingTerminalID is returned for terminal commands without an id.
	ErrMissingTerminalID = apperrors.Sentinel(apperrors.KindValidation, "dispatch: missing terminalId")
)
