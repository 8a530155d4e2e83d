// Package errs defines the domain error taxonomy and its HTTP mapping.
package errs

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/vedalearn/backend/pkg/response"
)

// Sentinel domain errors, mapped to HTTP status codes in handlers.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation failed")
)

// NotFound wraps ErrNotFound with a caller-facing reason.
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// InvalidTransition wraps ErrInvalidTransition with a caller-facing reason.
func InvalidTransition(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

// Forbidden wraps ErrForbidden with a caller-facing reason.
func Forbidden(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// Validation wraps ErrValidation with a caller-facing reason.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Reason strips the sentinel prefix, leaving the caller-facing message.
func Reason(err error) string {
	msg := err.Error()
	for _, s := range []error{ErrNotFound, ErrInvalidTransition, ErrForbidden, ErrValidation} {
		prefix := s.Error() + ": "
		if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
			return msg[len(prefix):]
		}
	}
	return msg
}

// Write maps a domain error to the response envelope. Unknown errors become 500
// with a generic message so internals never leak to clients.
func Write(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, Reason(err))
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrValidation):
		response.BadRequest(c, Reason(err))
	case errors.Is(err, ErrForbidden):
		response.Forbidden(c, Reason(err))
	default:
		response.Internal(c, "internal error")
	}
}
