// Package booking commits bookings under the per-business exclusive scope and
// runs the owner, client and payment operations around them.
package booking

import "errors"

// Errors returned by this package. Callers match them with errors.Is; the HTTP
// layer maps each one to a status code.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("slot no longer available")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConfiguration     = errors.New("configuration error")
	// ErrUnavailable is transient; the whole operation may be retried.
	ErrUnavailable = errors.New("temporarily unavailable")
)
