package iothub

import "errors"

// Domain-specific errors for IoT Hub conventions.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidConnectionString is returned when a connection string is
	// empty or lacks one of the required fields.
	ErrInvalidConnectionString = errors.New("iothub: invalid connection string")

	// ErrInvalidRequestID is returned when a command response is requested
	// without a correlation identifier.
	ErrInvalidRequestID = errors.New("iothub: request id cannot be empty")

	// ErrInvalidStatus is returned for command response status codes outside 100-999.
	ErrInvalidStatus = errors.New("iothub: invalid response status")

	// ErrInvalidSignature is returned when an empty signature is supplied
	// for password assembly.
	ErrInvalidSignature = errors.New("iothub: signature cannot be empty")
)
