package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
)

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, &domain.APIError{
		Code:    status,
		Message: message,
	})
}

// handleError converts domain errors to HTTP errors.
func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrAlreadyExists):
		respondError(w, http.StatusConflict, "already exists")
	case errors.Is(err, domain.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid input")
	case errors.Is(err, domain.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrAliasNotFound):
		respondUpstreamError(w, "alias not found on appliance", err)
	case errors.Is(err, domain.ErrReloadFailed):
		respondUpstreamError(w, "filter reload failed", err)
	case errors.Is(err, domain.ErrRemote):
		respondUpstreamError(w, "appliance rejected the request", err)
	case errors.Is(err, domain.ErrTransport):
		respondUpstreamError(w, "appliance unreachable", err)
	case errors.Is(err, domain.ErrParse):
		respondUpstreamError(w, "unexpected appliance response", err)
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func respondUpstreamError(w http.ResponseWriter, message string, err error) {
	respondJSON(w, http.StatusBadGateway, &domain.APIError{
		Code:    http.StatusBadGateway,
		Message: message,
		Details: err.Error(),
	})
}

// queryInt reads a non-negative integer query parameter, returning def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.ErrInvalidInput
	}
	return n, nil
}
