package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/personakit/persona-engine/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// MapError translates service-layer sentinel errors into HTTP responses.
// ErrNotFound covers both genuinely missing resources and denied private
// lookups, so a caller can never distinguish "does not exist" from "exists
// but you may not see it".
func MapError(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return ErrorResponse(w, http.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, apperrors.ErrAccessDenied):
		return ErrorResponse(w, http.StatusForbidden, "access_denied", "Access denied")
	case errors.Is(err, apperrors.ErrNotOwner):
		return ErrorResponse(w, http.StatusForbidden, "not_owner", "Only the entry owner may do this")
	case errors.Is(err, apperrors.ErrValidation):
		return ErrorResponse(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		return ErrorResponse(w, http.StatusConflict, "conflict", "Resource already exists")
	case errors.Is(err, apperrors.ErrConfig):
		return ErrorResponse(w, http.StatusServiceUnavailable, "configuration_error", "Service is misconfigured")
	default:
		return ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
