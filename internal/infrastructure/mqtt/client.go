package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Message is an inbound publish copied off the paho callback goroutine.
type Message struct {
	Topic   string
	Payload []byte
}

// Options tunes a Transport. Zero values select the package defaults.
type Options struct {
	ConnectTimeout time.Duration
	KeepAlive      time.Duration

	// InboundBuffer is the capacity of the inbound queue.
	InboundBuffer int

	// Logger receives connection-lost and queue-overflow warnings. May be nil.
	Logger Logger
}

// Transport owns at most one broker connection at a time.
//
// Thread Safety:
//   - All methods are safe for concurrent use, but Receive is intended for
//     a single consumer.
//   - paho invokes the message callback on its own goroutine; the callback
//     only copies the message into the inbound queue.
type Transport struct {
	opts    Options
	inbound chan Message
	dropped atomic.Uint64

	mu     sync.RWMutex
	client pahomqtt.Client
}

// NewTransport creates a disconnected Transport.
func NewTransport(opts Options) *Transport {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = defaultKeepAlive
	}
	if opts.InboundBuffer <= 0 {
		opts.InboundBuffer = defaultInboundBuffer
	}
	return &Transport{
		opts:    opts,
		inbound: make(chan Message, opts.InboundBuffer),
	}
}

// Connect establishes a new broker connection, replacing any existing one.
//
// It performs the following:
//  1. Disconnects the previous client, if any
//  2. Builds options from cfg (loading the trust anchor when TLS is set)
//  3. Starts the MQTT handshake and waits for CONNACK, the connect
//     timeout, or ctx cancellation, whichever comes first
//
// Parameters:
//   - ctx: Cancels the handshake wait
//   - cfg: Broker address and identity
//   - password: Credential sent in the CONNECT packet
//
// Returns:
//   - error: ErrTrustAnchor for an unusable trust anchor, otherwise
//     ErrConnectionFailed wrapping the cause
func (t *Transport) Connect(ctx context.Context, cfg ConnectionConfig, password string) error {
	t.Disconnect()

	opts, err := buildClientOptions(cfg, password, t.opts)
	if err != nil {
		return err
	}

	opts.SetDefaultPublishHandler(t.enqueue)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, cause error) {
		if logger := t.opts.Logger; logger != nil {
			logger.Warn("MQTT connection lost", "broker", cfg.BrokerURL(), "error", cause)
		}
	})

	client := pahomqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect(), t.opts.ConnectTimeout+time.Second); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.BrokerURL(), err)
	}

	t.mu.Lock()
	t.client = client
	t.mu.Unlock()

	return nil
}

// IsConnected reports whether the current client is connected.
// It turns false as soon as paho detects the connection is gone.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.client != nil && t.client.IsConnected()
}

// Disconnect closes the current connection. Calling it while disconnected
// is a no-op.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(defaultDisconnectQuiesce)
	}
}

// Receive returns the oldest queued inbound message without blocking.
//
// Returns:
//   - Message: The message, valid only when ok is true
//   - bool: false if the queue is empty
func (t *Transport) Receive() (Message, bool) {
	select {
	case msg := <-t.inbound:
		return msg, true
	default:
		return Message{}, false
	}
}

// Dropped returns how many inbound messages were discarded because the
// queue was full.
func (t *Transport) Dropped() uint64 {
	return t.dropped.Load()
}

// current returns the connected client or ErrNotConnected.
func (t *Transport) current() (pahomqtt.Client, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.client == nil || !t.client.IsConnected() {
		return nil, ErrNotConnected
	}
	return t.client, nil
}

// enqueue copies a paho message into the inbound queue.
func (t *Transport) enqueue(_ pahomqtt.Client, msg pahomqtt.Message) {
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())

	select {
	case t.inbound <- Message{Topic: msg.Topic(), Payload: payload}:
	default:
		n := t.dropped.Add(1)
		if logger := t.opts.Logger; logger != nil {
			logger.Warn("MQTT inbound queue full, message dropped",
				"topic", msg.Topic(),
				"dropped_total", n,
			)
		}
	}
}

// waitToken blocks until the token completes, timeout elapses, or ctx ends.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
