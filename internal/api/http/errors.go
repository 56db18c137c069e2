package http

import (
	"errors"
	"net/http"

	"github.com/GriffinCanCode/termhost/internal/dispatch"
	"github.com/GriffinCanCode/termhost/internal/session"
	"github.com/GriffinCanCode/termhost/internal/shared/apperrors"
	"github.com/GriffinCanCode/termhost/internal/terminal"
	"github.com/GriffinCanCode/termhost/internal/terminal/lifecycle"
	"github.com/GriffinCanCode/termhost/internal/terminal/state"
)

// StatusFor maps a backend error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, terminal.ErrNotFound), errors.Is(err, state.ErrNotFound), errors.Is(err, lifecycle.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, terminal.ErrLimitReached), errors.Is(err, state.ErrPoolFull),
		errors.Is(err, session.ErrRestoreInProgress), errors.Is(err, dispatch.ErrDeleteRejected):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrDeleteTimeout):
		return http.StatusGatewayTimeout
	}

	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindTransientIO:
		return http.StatusServiceUnavailable
	case apperrors.KindHandshakeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.KindRestore:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
