package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-procure/meridian-procure/internal/shared"
)

// RespondError maps workflow errors to HTTP responses using RFC7807. The
// detail string carries the stage/role/precondition context the services
// attach when wrapping the sentinel.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrUnauthorized):
		Problem(w, http.StatusForbidden, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrInvalidTransition):
		Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, shared.ErrInvalidState):
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrDuplicateRFQ):
		Problem(w, http.StatusConflict, "Duplicate RFQ", err.Error())
	case errors.Is(err, shared.ErrConcurrentModification):
		Problem(w, http.StatusConflict, "Concurrent Modification", err.Error())
	case errors.Is(err, shared.ErrNoEligibleVendors):
		Problem(w, http.StatusUnprocessableEntity, "No Eligible Vendors", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
