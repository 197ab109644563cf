package domain

import "errors"

// Sentinel errors for domain error conditions.
// Use errors.Is() for matching - never compare error strings.
var (
	// ID validation errors
	ErrEmptyID   = errors.New("ID cannot be empty")
	ErrInvalidID = errors.New("invalid ID format")

	// Resource errors
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")

	// Identity errors
	ErrUnauthorized = errors.New("authentication required")
	ErrNoIdentity   = errors.New("no user identity available")

	// Validation errors
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidTimezone    = errors.New("unrecognized timezone")
	ErrInvalidAlarmStatus = errors.New("invalid alarm status")
	ErrInvalidAlarmSource = errors.New("invalid alarm source")

	// Operational errors
	ErrUnavailable  = errors.New("service temporarily unavailable")
	ErrEngineClosed = errors.New("time engine is closed")

	// Configuration errors
	ErrConfigRequired = errors.New("required configuration key missing")
)

// IsRetryable returns true if the error represents a transient condition
// that may succeed if the caller tries again. The engine itself never retries.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// clientErrors enumerates all domain errors that represent client-side issues.
var clientErrors = []error{
	ErrInvalidInput,
	ErrInvalidTimezone,
	ErrInvalidAlarmStatus,
	ErrInvalidAlarmSource,
	ErrNotFound,
	ErrUnauthorized,
	ErrNoIdentity,
	ErrEmptyID,
	ErrInvalidID,
}

// IsClientError returns true if the error represents a client-side issue
// that will not succeed on retry without client-side changes.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound returns true if the error represents a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
