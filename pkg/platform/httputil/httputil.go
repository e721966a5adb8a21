package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "idhub/pkg/domain-errors"
)

// ErrorResponse is the OAuth 2.0 error body.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// StatusFor maps a domain error code to its HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidRequest, dErrors.CodeUnsupportedGrantType, dErrors.CodeInvalidGrant:
		return http.StatusBadRequest
	case dErrors.CodeInvalidClient, dErrors.CodeInvalidCredentials, dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeAccessDenied:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as an OAuth error body. Server errors never carry a
// description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)
	body := ErrorResponse{Error: string(code)}
	if status < http.StatusInternalServerError {
		body.Description = dErrors.Message(err)
	}
	WriteJSON(w, status, body)
}

// WriteJSON writes v with the given status. Token and error responses must not
// be cached by intermediaries.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
