// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/opencra/opencra/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807. Business
// failures keep their message; anything unrecognised is reported generically
// so internals never leak to the caller.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrInvalidTransition):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Transition", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// IsDomainError reports whether the error carries one of the known domain
// kinds. Anything else is unexpected and should be logged before responding.
func IsDomainError(err error) bool {
	return errors.Is(err, shared.ErrValidation) ||
		errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrForbidden) ||
		errors.Is(err, shared.ErrDuplicate) ||
		errors.Is(err, shared.ErrConflict) ||
		errors.Is(err, shared.ErrInvalidTransition)
}
