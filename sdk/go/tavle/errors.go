// Package tavle provides a Go client for the Tavle board API.
package tavle

import (
	"errors"
	"fmt"
)

// Error represents a failure reported by the Tavle API. Board actions
// always return HTTP 200 and signal failure inside the response envelope,
// so StatusCode is 200 for action-level failures and the real HTTP status
// for transport-level ones (401, 404, 413, ...).
type Error struct {
	StatusCode  int
	Message     string
	FieldErrors map[string]string
}

func (e *Error) Error() string {
	if len(e.FieldErrors) > 0 {
		return fmt.Sprintf("tavle: validation failed (%d fields)", len(e.FieldErrors))
	}
	return fmt.Sprintf("tavle: %s (%d)", e.Message, e.StatusCode)
}

// IsNotFound returns true when the target entity does not exist or belongs
// to another org. The server deliberately does not distinguish the two.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 404 || e.Message == "Not found."
	}
	return false
}

// IsUnauthorized returns true if the request carried no valid token.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 401 ||
			e.Message == "You must be signed in to perform this action."
	}
	return false
}

// IsForbidden returns true when the caller's role does not permit the action.
func IsForbidden(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 403 ||
			e.Message == "You do not have permission to perform this action."
	}
	return false
}

// IsValidation returns true for per-field validation failures. Inspect
// Error.FieldErrors for the messages, keyed by request field name.
func IsValidation(err error) bool {
	var e *Error
	return errors.As(err, &e) && len(e.FieldErrors) > 0
}

// IsRateLimited returns true when the per-user action quota is exhausted.
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return len(e.Message) > 17 && e.Message[:17] == "Too many requests"
	}
	return false
}
