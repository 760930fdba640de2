package web

import (
	"encoding/json"
	"net/http"

	"projectbooks/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeDomainError maps the typed domain errors onto HTTP statuses. Anything
// untyped is an infrastructure failure and surfaces as a 500 without detail.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case core.IsValidation(err):
		writeError(w, r, err.Error(), "VALIDATION", http.StatusUnprocessableEntity)
	case core.IsInvalidTransition(err):
		writeError(w, r, err.Error(), "INVALID_TRANSITION", http.StatusConflict)
	case core.IsAccessDenied(err):
		writeError(w, r, err.Error(), "ACCESS_DENIED", http.StatusForbidden)
	case core.IsNotFound(err):
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case core.IsConflict(err):
		writeError(w, r, err.Error(), "CONFLICT", http.StatusConflict)
	default:
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
