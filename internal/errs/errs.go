// Package errs holds the failure taxonomy shared by every trading component.
package errs

import "errors"

var (
	// ErrDataUnavailable marks a per-symbol quote miss. Callers skip the symbol.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrAuth marks a credential failure. Credential dependent calls abort.
	ErrAuth = errors.New("auth error")
	// ErrOrder marks a rejected submission or an order query failure.
	ErrOrder = errors.New("order error")
	// ErrPersistence marks an unreadable or unwritable state store.
	ErrPersistence = errors.New("persistence error")
	// ErrConfig marks malformed configuration. Fatal at startup.
	ErrConfig = errors.New("config error")
)

// Kind returns a short label for the taxonomy member wrapped by err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrOrder):
		return "order"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrConfig):
		return "config"
	default:
		return "internal"
	}
}
