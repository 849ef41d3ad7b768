package credential

import "errors"

// Domain-specific errors for credential issuance.
var (
	// ErrInvalidKey is returned when the shared access key is not valid base64.
	ErrInvalidKey = errors.New("credential: shared access key is not valid base64")

	// ErrInvalidTTL is returned when a zero time-to-live is requested.
	ErrInvalidTTL = errors.New("credential: ttl must be greater than zero")

	// ErrSigningFailed is returned when the signature payload or password
	// cannot be produced.
	ErrSigningFailed = errors.New("credential: signing failed")
)
