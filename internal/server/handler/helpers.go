package handler

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/TroveFi/yieldrouter/internal/domain"
)

// writeJSON marshals v and writes it with the given status code. A marshal
// failure falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps engine sentinel errors onto HTTP status codes and
// writes the error message. Unknown errors become a 500 with a generic body
// so internal detail does not leak.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "insufficient permissions")
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrUnknownAsset),
		errors.Is(err, domain.ErrUnknownStrategy),
		errors.Is(err, domain.ErrNotAssessed):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrDuplicateAsset):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidParameter),
		errors.Is(err, domain.ErrLengthMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNoEligibleStrategy),
		errors.Is(err, domain.ErrInsufficientCapacity),
		errors.Is(err, domain.ErrStaleData):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrQuoteUnavailable),
		errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseLimit extracts a ?limit= query parameter with a default and cap.
func parseLimit(r *http.Request, def, max int) int {
	limit := def
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

// parseBig parses a base-10 integer string into a big.Int. Empty strings and
// malformed values are rejected.
func parseBig(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	v, ok := new(big.Int).SetString(s, 10)
	return v, ok
}
