package session

import "errors"

// Sentinel errors. Callers use errors.Is; wrapped causes carry the detail.
var (
	// ErrConfig marks failures that retrying cannot fix: credential issuance
	// or an unusable trust anchor.
	ErrConfig = errors.New("session: configuration error")

	// ErrConnect is returned for a failed handshake. It is retried.
	ErrConnect = errors.New("session: connect failed")

	// ErrSubscribe is returned when restoring a subscription fails. The
	// connection is torn down and the attempt retried.
	ErrSubscribe = errors.New("session: subscribe failed")

	// ErrPublish is returned when an outbound message cannot be sent.
	ErrPublish = errors.New("session: publish failed")

	// ErrPayloadDecode is returned when an inbound payload is not valid text.
	// The message is dropped.
	ErrPayloadDecode = errors.New("session: payload decode failed")
)
