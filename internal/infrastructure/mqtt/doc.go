// Package mqtt provides the MQTT transport used by the session supervisor.
//
// This package manages:
//   - One broker connection at a time, built from a ConnectionConfig
//   - TLS with a caller-supplied trust anchor (PEM bundle)
//   - Subscriptions and publishes with bounded acknowledgement waits
//   - A bounded inbound queue drained by a single consumer
//
// # Architecture
//
// Reconnection is not handled here. Every Connect builds a fresh paho
// client with auto-reconnect disabled; the caller decides when and how
// often to retry. Messages delivered by paho's callback goroutine are
// copied into a buffered channel and read with Receive, so the consumer
// never runs on a library goroutine.
//
//	paho callback → inbound queue → Receive (one message per call)
//
// When the queue is full, new messages are dropped and counted.
//
// # Usage
//
//	t := mqtt.NewTransport(mqtt.Options{InboundBuffer: 64})
//	err := t.Connect(ctx, mqtt.ConnectionConfig{
//	    Host:        "h.example.com",
//	    Port:        8883,
//	    TLS:         true,
//	    TrustAnchor: "/etc/hublink/root.pem",
//	    ClientID:    "dev1",
//	    Username:    "h.example.com/dev1/?api-version=2020-09-30",
//	}, password)
//	defer t.Disconnect()
//
//	if msg, ok := t.Receive(); ok {
//	    handle(msg.Topic, msg.Payload)
//	}
package mqtt
