// Package session keeps one device connected to its hub.
//
// It holds the connection state machine, the subscription set that must be
// restored after every connect, and the single driving loop that ties the
// two to message routing and telemetry.
//
// # State machine
//
//	Disconnected ──(unhealthy)──▶ Connecting ──(connect + subscribe ok)──▶ Connected
//	                                  │  ▲
//	                                  └──┘ failure: backoff, sleep, retry
//	Connected ──(credential near expiry or link down)──▶ Disconnected
//
// A credential is issued for every connect attempt. Credential issuance
// errors and an unusable trust anchor are configuration errors: they are
// returned wrapped in ErrConfig instead of being retried.
//
// # Concurrency
//
// Supervisor, SubscriptionManager and Runner are owned by one goroutine.
// The only blocking points are the backoff sleep and the inter-tick sleep,
// both of which end early when the context is cancelled.
package session
