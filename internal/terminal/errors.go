package terminal

import "github.com/GriffinCanCode/termhost/internal/shared/apperrors"

var (
	// ErrNotFound is returned for unknown terminal ids.
	ErrNotFound = apperrors.Sentinel(apperrors.KindValidation, "terminal: not found")
	// ErrNotLive is returned when input or resize targets a terminal that is
	// not Ready or Active.
	ErrNotLive = apperrors.Sentinel(apperrors.KindValidation, "terminal: not accepting input")
	// ErrLimitReached is returned when the pool is full.
	ErrLimitReached = apperrors.Sentinel(apperrors.KindValidation, "terminal: maximum number of terminals reached")
)
