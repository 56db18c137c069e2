package process

import (
	"fmt"

	"github.com/GriffinCanCode/termhost/internal/shared/apperrors"
)

var (
	// ErrNotReady is returned when no process handle is attached.
	ErrNotReady = apperrors.Sentinel(apperrors.KindTransientIO, "process: not ready")
	// ErrProcessInvalid is returned when the handle is killed or has no pid.
	ErrProcessInvalid = apperrors.Sentinel(apperrors.KindTransientIO, "process: invalid or killed")
	// ErrDataTooLarge is returned when a single write exceeds the size limit.
	ErrDataTooLarge = apperrors.Sentinel(apperrors.KindValidation, "process: write exceeds size limit")
	// ErrNoSecondary is returned by AttemptRecovery when no distinct secondary handle exists.
	ErrNoSecondary = apperrors.Sentinel(apperrors.KindTransientIO, "process: no secondary handle")
)

// Dimension limits accepted by Resize.
const (
	MaxCols = 500
	MaxRows = 200
)

// DimensionError reports a resize outside 1..MaxCols x 1..MaxRows.
type DimensionError struct {
	Cols int
	Rows int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("process: invalid dimensions %dx%d (limit %dx%d)", e.Cols, e.Rows, MaxCols, MaxRows)
}

// Kind classifies the error as a validation failure.
func (e *DimensionError) Kind() apperrors.Kind {
	return apperrors.KindValidation
}

// ValidateDimensions checks cols and rows against the resize limits.
func ValidateDimensions(cols, rows int) error {
	if cols <= 0 || rows <= 0 || cols > MaxCols || rows > MaxRows {
		return &DimensionError{Cols: cols, Rows: rows}
	}
	return nil
}

// RetryError is returned by RetryWrite after every attempt failed.
type RetryError struct {
	Attempts int
	Last     error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("process: write failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryError) Unwrap() error {
	return e.Last
}

// Kind classifies the error as transient I/O.
func (e *RetryError) Kind() apperrors.Kind {
	return apperrors.KindTransientIO
}
