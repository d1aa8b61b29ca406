package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/logwell/logwell/internal/cursor"
	"github.com/logwell/logwell/internal/repository"
	"github.com/logwell/logwell/internal/service/apikey"
	"github.com/logwell/logwell/internal/service/auth"
	"github.com/logwell/logwell/internal/service/logs"
	"github.com/logwell/logwell/internal/service/project"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error code and message.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

// writeServiceError maps service errors onto HTTP status codes. Unknown
// errors are logged and reported as 500 without detail.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	var validation *logs.ValidationError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_error", Message: validation.Message, Field: validation.Field})
	case errors.Is(err, cursor.ErrInvalidCursor):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_cursor", Message: "cursor is malformed", Field: "cursor"})
	case errors.Is(err, project.ErrInvalidInput), errors.Is(err, repository.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, apikey.ErrUnauthorized), errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "resource already exists")
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
	default:
		r.logger.Error("request failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
