package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avk1987/crypto-vault/internal/errs"
)

type errBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps domain sentinels onto HTTP status codes. Unknown errors
// become an opaque 500; the detail stays in the server log.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errBody{"invalid credentials"})
	case errors.Is(err, errs.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errBody{"rate limited"})
	case errors.Is(err, errs.ErrChallengeNotFound):
		writeJSON(w, http.StatusBadRequest, errBody{"no pending verification"})
	case errors.Is(err, errs.ErrChallengeExpired):
		writeJSON(w, http.StatusBadRequest, errBody{"code expired"})
	case errors.Is(err, errs.ErrTooManyAttempts):
		writeJSON(w, http.StatusBadRequest, errBody{"too many attempts"})
	case errors.Is(err, errs.ErrInvalidCode):
		writeJSON(w, http.StatusBadRequest, errBody{"invalid code"})
	case errors.Is(err, errs.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errBody{"forbidden"})
	case errors.Is(err, errs.ErrAlreadyGranted):
		writeJSON(w, http.StatusConflict, errBody{"already shared"})
	case errors.Is(err, errs.ErrUnknownPrincipal):
		writeJSON(w, http.StatusNotFound, errBody{"recipient not found"})
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errBody{"not found"})
	case errors.Is(err, errs.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errBody{"already exists"})
	default:
		writeJSON(w, http.StatusInternalServerError, errBody{"internal"})
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
