package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/hublink/internal/backoff"
	"github.com/nerrad567/hublink/internal/credential"
	"github.com/nerrad567/hublink/internal/infrastructure/mqtt"
)

// State is the connection state of a Supervisor.
type State int

const (
	// StateDisconnected means no usable session exists.
	StateDisconnected State = iota

	// StateConnecting means connect attempts are in progress.
	StateConnecting

	// StateConnected means the handshake and subscription restore succeeded.
	StateConnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// RetryContext tracks consecutive failed connect attempts.
// It is reset after every successful connect.
type RetryContext struct {
	AttemptCount     uint32
	AttemptStartedAt time.Time
}

// Transport is the broker connection the Supervisor drives.
// *mqtt.Transport satisfies it.
type Transport interface {
	Connect(ctx context.Context, cfg mqtt.ConnectionConfig, password string) error
	IsConnected() bool
	Disconnect()
	Subscribe(topic string, qos byte) error
	Publish(topic string, qos byte, payload []byte) error
	Receive() (mqtt.Message, bool)
}

// Issuer produces credentials. *credential.Issuer satisfies it.
type Issuer interface {
	Issue(ttlSeconds uint64) (credential.Credential, error)
}

// Observer receives lifecycle events, for metrics. Methods are called on
// the driving goroutine and must not block. States are passed by name.
type Observer interface {
	RecordStateChange(from, to string)
	RecordConnectAttempt(attempt uint32, elapsed time.Duration, err error)
}

// SupervisorConfig holds the settings fixed for the Supervisor's lifetime.
type SupervisorConfig struct {
	Connection mqtt.ConnectionConfig

	// TokenTTL is the lifetime requested for each credential.
	TokenTTL time.Duration

	// RenewFraction triggers renewal once the remaining lifetime falls
	// below TokenTTL * RenewFraction.
	RenewFraction float64

	Backoff backoff.Policy
}

// Supervisor owns the connection state machine.
//
// Thread Safety:
//   - Not safe for concurrent use. All methods must be called from the
//     driving goroutine.
type Supervisor struct {
	cfg       SupervisorConfig
	transport Transport
	issuer    Issuer
	subs      *SubscriptionManager

	state      State
	cred       credential.Credential
	retry      RetryContext
	generation uint64

	logger   Logger
	observer Observer
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewSupervisor creates a Supervisor in StateDisconnected.
func NewSupervisor(cfg SupervisorConfig, transport Transport, issuer Issuer, subs *SubscriptionManager) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		transport: transport,
		issuer:    issuer,
		subs:      subs,
		state:     StateDisconnected,
		logger:    noopLogger{},
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// SetLogger sets the logger. nil restores the no-op logger.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetObserver sets an optional lifecycle observer.
func (s *Supervisor) SetObserver(o Observer) {
	s.observer = o
}

// SetClock replaces the time source. Intended for tests.
func (s *Supervisor) SetClock(now func() time.Time) {
	s.now = now
}

// SetSleeper replaces the backoff sleep. Intended for tests.
func (s *Supervisor) SetSleeper(sleep func(ctx context.Context, d time.Duration) error) {
	s.sleep = sleep
}

// State returns the current state.
func (s *Supervisor) State() State { return s.state }

// Generation returns the number of successful connects so far.
func (s *Supervisor) Generation() uint64 { return s.generation }

// Credential returns the credential of the current session.
func (s *Supervisor) Credential() credential.Credential { return s.cred }

// Retry returns the current retry context.
func (s *Supervisor) Retry() RetryContext { return s.retry }

// renewThreshold is the remaining lifetime below which the credential is renewed.
func (s *Supervisor) renewThreshold() time.Duration {
	return time.Duration(float64(s.cfg.TokenTTL) * s.cfg.RenewFraction)
}

// IsHealthy reports whether the session is connected, the transport link
// is up, and the credential is not yet due for renewal.
func (s *Supervisor) IsHealthy() bool {
	if s.state != StateConnected {
		return false
	}
	if !s.transport.IsConnected() {
		return false
	}
	return s.cred.Remaining(s.now()) >= s.renewThreshold()
}

// EnsureConnected evaluates health once and, if the session is unhealthy,
// tears it down and reconnects, retrying with backoff until it succeeds.
//
// Returns:
//   - error: nil once connected; an error wrapping ErrConfig for
//     non-retryable failures; ctx.Err() when cancelled
func (s *Supervisor) EnsureConnected(ctx context.Context) error {
	if s.IsHealthy() {
		return nil
	}

	if s.state == StateConnected {
		reason := "transport disconnected"
		if s.transport.IsConnected() {
			reason = "credential renewal due"
		}
		s.logger.Info("session unhealthy, reconnecting",
			"reason", reason,
			"expires_at", s.cred.ExpiresAt().UTC().Format(time.RFC3339),
		)
		s.teardown()
	}

	s.setState(StateConnecting)

	for {
		if err := ctx.Err(); err != nil {
			s.setState(StateDisconnected)
			return err
		}

		s.retry.AttemptCount++
		s.retry.AttemptStartedAt = s.now()

		err := s.attempt(ctx)
		elapsed := s.now().Sub(s.retry.AttemptStartedAt)
		if s.observer != nil {
			s.observer.RecordConnectAttempt(s.retry.AttemptCount, elapsed, err)
		}

		if err == nil {
			s.logger.Info("session connected",
				"broker", s.cfg.Connection.BrokerURL(),
				"attempts", s.retry.AttemptCount,
				"expires_at", s.cred.ExpiresAt().UTC().Format(time.RFC3339),
			)
			s.retry = RetryContext{}
			s.generation++
			s.setState(StateConnected)
			return nil
		}

		if errors.Is(err, ErrConfig) {
			s.logger.Error("session configuration error", "error", err)
			s.setState(StateDisconnected)
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.setState(StateDisconnected)
			return ctxErr
		}

		delay := s.cfg.Backoff.Delay(s.retry.AttemptCount, elapsed)
		s.logger.Warn("connect attempt failed",
			"attempt", s.retry.AttemptCount,
			"retry_in", delay,
			"error", err,
		)
		if err := s.sleep(ctx, delay); err != nil {
			s.setState(StateDisconnected)
			return err
		}
	}
}

// attempt issues a credential, connects, and restores subscriptions.
func (s *Supervisor) attempt(ctx context.Context) error {
	cred, err := s.issuer.Issue(ttlSeconds(s.cfg.TokenTTL))
	if err != nil {
		return fmt.Errorf("%w: issuing credential: %w", ErrConfig, err)
	}

	if err := s.transport.Connect(ctx, s.cfg.Connection, cred.Token); err != nil {
		if errors.Is(err, mqtt.ErrTrustAnchor) {
			return fmt.Errorf("%w: %w", ErrConfig, err)
		}
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	if err := s.subs.Restore(ctx, s.transport); err != nil {
		s.transport.Disconnect()
		return err
	}

	s.cred = cred
	return nil
}

// Publish sends on the live session.
//
// Returns:
//   - error: ErrPublish wrapping mqtt.ErrNotConnected when no session is
//     up, or wrapping the transport error
func (s *Supervisor) Publish(topic string, qos byte, payload []byte) error {
	if s.state != StateConnected {
		return fmt.Errorf("%w: %w", ErrPublish, mqtt.ErrNotConnected)
	}
	if err := s.transport.Publish(topic, qos, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}

// Receive returns the next queued inbound message without blocking.
func (s *Supervisor) Receive() (mqtt.Message, bool) {
	return s.transport.Receive()
}

// Close disconnects gracefully.
func (s *Supervisor) Close() {
	if s.state == StateDisconnected && !s.transport.IsConnected() {
		return
	}
	s.teardown()
	s.logger.Info("session closed")
}

func (s *Supervisor) teardown() {
	s.transport.Disconnect()
	s.cred = credential.Credential{}
	s.setState(StateDisconnected)
}

func (s *Supervisor) setState(next State) {
	if next == s.state {
		return
	}
	prev := s.state
	s.state = next
	s.logger.Debug("session state changed", "from", prev.String(), "to", next.String())
	if s.observer != nil {
		s.observer.RecordStateChange(prev.String(), next.String())
	}
}

// ttlSeconds converts a TTL to whole seconds, at least one.
func ttlSeconds(d time.Duration) uint64 {
	secs := int64(d / time.Second)
	if secs < 1 {
		return 1
	}
	return uint64(secs)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
