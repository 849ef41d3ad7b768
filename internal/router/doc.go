// Package router dispatches inbound hub messages.
//
// Each message is classified by topic. Notifications are decoded and
// handed to a NotificationHandler; nothing is sent back. Commands are
// handed to a CommandHandler whose status and body are published to the
// correlated response topic. Anything else is dropped.
//
// A payload that is not valid UTF-8 is reported as session.ErrPayloadDecode
// and the message is dropped; routing of later messages is unaffected.
package router
