package errors

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// APIError is an HTTP-facing error carrying the status code and a stable
// machine-readable error code. The error handler turns it into an RFC 7807
// problem response.
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Render lets an APIError be passed straight to chi/render.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ValidationError names the offending field in a 400 response.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New builds an APIError.
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails builds an APIError with a details payload.
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Sentinels for the common handler outcomes.
var (
	ErrDatasetNotFound   = New(http.StatusNotFound, "DATASET_NOT_FOUND", "Processed dataset not found")
	ErrPipelineNotFound  = New(http.StatusNotFound, "PIPELINE_NOT_FOUND", "operation not found")
	ErrRateLimitExceeded = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")
)

// ErrValidation builds a 400 naming the invalid field.
func ErrValidation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", ValidationError{
		Field:   field,
		Message: message,
	})
}

// NotFoundError builds a 404 for the named resource.
func NotFoundError(resource string) *APIError {
	return NewWithDetails(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource), resource)
}
