package httpapi

import (
	"encoding/json"
	"net/http"
)

// Response is the standard API response wrapper, adapted from the
// teacher's `internal/api/handlers/response.go` (same Data/Error
// fields, without its Meta/time-of-response field since this package
// has exactly one resource and no clients rely on it).
type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo carries a machine-readable code alongside the message, the
// same shape the teacher's handlers use.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrNotFound      = "NOT_FOUND"
	ErrInternalError = "INTERNAL_ERROR"
)

// WriteJSON writes data as the Response envelope's Data field.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Data: data})
}

// WriteError writes code/message as the Response envelope's Error field.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Error: &ErrorInfo{Code: code, Message: message}})
}
