// Error envelope for the JSON API.

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorCode identifies a class of API failure.
type ErrorCode string

const (
	ErrorCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrorCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrorCodeRateLimited      ErrorCode = "RATE_LIMITED"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetails `json:"error"`
}

type ErrorDetails struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// apiError carries an HTTP status through the handler return path.
type apiError struct {
	status  int
	code    ErrorCode
	message string
}

func (e *apiError) Error() string { return e.message }

func badRequest(message string) *apiError {
	return &apiError{status: http.StatusBadRequest, code: ErrorCodeValidationFailed, message: message}
}

// writeError writes the error envelope with the given status.
func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := ErrorResponse{Error: ErrorDetails{Code: code, Message: message}}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode error response", "err", err)
	}
}
