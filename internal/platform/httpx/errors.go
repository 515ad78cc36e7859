package httpx

import (
	"errors"
	"net/http"

	"github.com/melodium-shop/melodium/internal/shared"
)

// RespondError maps the core error taxonomy to HTTP responses. Anything
// not wrapping a known kind is treated as an internal failure and the
// detail is withheld from the client.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrPolicy):
		Problem(w, http.StatusUnprocessableEntity, "Rejected", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
