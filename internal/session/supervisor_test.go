package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/nerrad567/hublink/internal/backoff"
	"github.com/nerrad567/hublink/internal/infrastructure/mqtt"
	"github.com/nerrad567/hublink/internal/iothub"
)

type harness struct {
	clock     *fakeClock
	transport *fakeTransport
	issuer    *fakeIssuer
	sleeper   *recordingSleeper
	observer  *recordingObserver
	sup       *Supervisor
}

func newHarness() *harness {
	clock := newFakeClock()
	h := &harness{
		clock:     clock,
		transport: &fakeTransport{subscribeErr: map[string]error{}},
		issuer:    &fakeIssuer{clock: clock},
		sleeper:   &recordingSleeper{},
		observer:  &recordingObserver{},
	}
	hub := iothub.NewClient("h.example.com", "dev1", iothub.Options{})
	h.sup = NewSupervisor(SupervisorConfig{
		Connection:    mqtt.ConnectionConfig{Host: hub.Host(), Port: iothub.DefaultPort, TLS: true, ClientID: hub.ClientID(), Username: hub.Username()},
		TokenTTL:      time.Hour,
		RenewFraction: 0.2,
		Backoff:       backoff.Policy{Base: time.Second, Cap: time.Minute},
	}, h.transport, h.issuer, NewSubscriptionManager(hub.SubscribeTopics()))
	h.sup.SetClock(clock.Now)
	h.sup.SetSleeper(h.sleeper.Sleep)
	h.sup.SetObserver(h.observer)
	return h
}

var wantTopics = []string{iothub.NotificationSubscribeTopic, iothub.CommandSubscribeTopic}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnecting, "CONNECTING"},
		{StateConnected, "CONNECTED"},
		{State(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestEnsureConnected_FirstConnect(t *testing.T) {
	h := newHarness()

	if h.sup.IsHealthy() {
		t.Fatal("IsHealthy() = true before connecting")
	}
	if err := h.sup.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}

	if h.sup.State() != StateConnected {
		t.Errorf("State() = %v, want CONNECTED", h.sup.State())
	}
	if h.sup.Generation() != 1 {
		t.Errorf("Generation() = %d, want 1", h.sup.Generation())
	}
	if !slices.Equal(h.transport.passwords, []string{"token-1"}) {
		t.Errorf("passwords = %v, want [token-1]", h.transport.passwords)
	}
	if !slices.Equal(h.transport.subscribed, wantTopics) {
		t.Errorf("subscribed = %v, want %v", h.transport.subscribed, wantTopics)
	}
	if h.sup.Retry().AttemptCount != 0 {
		t.Errorf("Retry().AttemptCount = %d, want 0 after success", h.sup.Retry().AttemptCount)
	}
	if !h.sup.IsHealthy() {
		t.Error("IsHealthy() = false after connect")
	}

	wantTransitions := []string{"DISCONNECTED->CONNECTING", "CONNECTING->CONNECTED"}
	if !slices.Equal(h.observer.transitions, wantTransitions) {
		t.Errorf("transitions = %v, want %v", h.observer.transitions, wantTransitions)
	}
}

func TestEnsureConnected_HealthySessionIsUntouched(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.sup.EnsureConnected(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		h.clock.Advance(time.Minute)
		if err := h.sup.EnsureConnected(ctx); err != nil {
			t.Fatal(err)
		}
	}

	if len(h.transport.passwords) != 1 {
		t.Errorf("connects = %d, want 1", len(h.transport.passwords))
	}
	if h.issuer.issued != 1 {
		t.Errorf("issued = %d, want 1", h.issuer.issued)
	}
}

func TestIsHealthy_RenewalTrigger(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.sup.EnsureConnected(ctx); err != nil {
		t.Fatal(err)
	}

	// TTL 1h, fraction 0.2: renewal is due with less than 12m remaining.
	h.clock.Advance(47*time.Minute + 59*time.Second)
	if !h.sup.IsHealthy() {
		t.Fatal("IsHealthy() = false with 12m01s remaining")
	}

	h.clock.Advance(2 * time.Second)
	if h.sup.IsHealthy() {
		t.Fatal("IsHealthy() = true with 11m59s remaining")
	}

	if err := h.sup.EnsureConnected(ctx); err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}

	if h.transport.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1 (teardown before reconnect)", h.transport.disconnects)
	}
	if !slices.Equal(h.transport.passwords, []string{"token-1", "token-2"}) {
		t.Errorf("passwords = %v, want fresh credential on reconnect", h.transport.passwords)
	}
	if h.sup.Credential().Token != "token-2" {
		t.Errorf("Credential().Token = %q, want token-2", h.sup.Credential().Token)
	}
	if h.sup.Generation() != 2 {
		t.Errorf("Generation() = %d, want 2", h.sup.Generation())
	}
	wantSubs := append(slices.Clone(wantTopics), wantTopics...)
	if !slices.Equal(h.transport.subscribed, wantSubs) {
		t.Errorf("subscribed = %v, want %v", h.transport.subscribed, wantSubs)
	}
}

func TestEnsureConnected_LinkDown(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.sup.EnsureConnected(ctx); err != nil {
		t.Fatal(err)
	}
	h.transport.connected = false

	if h.sup.IsHealthy() {
		t.Fatal("IsHealthy() = true with transport down")
	}
	if err := h.sup.EnsureConnected(ctx); err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}
	if len(h.transport.passwords) != 2 {
		t.Errorf("connects = %d, want 2", len(h.transport.passwords))
	}
}

func TestEnsureConnected_RecoversAfterFailures(t *testing.T) {
	for _, k := range []int{1, 3, 8} {
		t.Run(fmt.Sprintf("K=%d", k), func(t *testing.T) {
			h := newHarness()
			for i := 0; i < k; i++ {
				h.transport.connectErrs = append(h.transport.connectErrs, fmt.Errorf("%w: %w", mqtt.ErrConnectionFailed, errBrokerDown))
			}

			if err := h.sup.EnsureConnected(context.Background()); err != nil {
				t.Fatalf("EnsureConnected() error = %v", err)
			}

			if h.sup.State() != StateConnected {
				t.Errorf("State() = %v, want CONNECTED", h.sup.State())
			}
			if len(h.transport.passwords) != k+1 {
				t.Errorf("connect attempts = %d, want %d", len(h.transport.passwords), k+1)
			}
			if h.issuer.issued != k+1 {
				t.Errorf("credentials issued = %d, want one per attempt (%d)", h.issuer.issued, k+1)
			}
			if len(h.sleeper.delays) != k {
				t.Fatalf("sleeps = %d, want %d", len(h.sleeper.delays), k)
			}
			for i, d := range h.sleeper.delays {
				want := backoff.Policy{Base: time.Second, Cap: time.Minute}.Delay(uint32(i+1), 0)
				if d != want {
					t.Errorf("delay[%d] = %v, want %v", i, d, want)
				}
			}
			if len(h.observer.attempts) != k+1 || h.observer.attempts[k].err != nil {
				t.Errorf("observed attempts = %+v, want %d with last successful", h.observer.attempts, k+1)
			}
			if h.observer.attempts[k].attempt != uint32(k+1) {
				t.Errorf("last attempt number = %d, want %d", h.observer.attempts[k].attempt, k+1)
			}
			if h.sup.Retry().AttemptCount != 0 {
				t.Errorf("Retry().AttemptCount = %d, want reset", h.sup.Retry().AttemptCount)
			}
		})
	}
}

func TestEnsureConnected_BackoffDiscountsAttemptDuration(t *testing.T) {
	h := newHarness()
	h.transport.connectErrs = []error{errBrokerDown}

	// Each Now() call inside the attempt moves the clock: attempt start,
	// then elapsed measurement 300ms later.
	calls := 0
	h.sup.SetClock(func() time.Time {
		calls++
		if calls == 2 {
			h.clock.Advance(300 * time.Millisecond)
		}
		return h.clock.Now()
	})

	if err := h.sup.EnsureConnected(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(h.sleeper.delays) != 1 || h.sleeper.delays[0] != 700*time.Millisecond {
		t.Errorf("delays = %v, want [700ms]", h.sleeper.delays)
	}
}

func TestEnsureConnected_SubscribeFailureRetries(t *testing.T) {
	h := newHarness()
	h.transport.subscribeErr[iothub.CommandSubscribeTopic] = errors.New("suback 0x80")

	if err := h.sup.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}

	want := []string{
		iothub.NotificationSubscribeTopic, iothub.CommandSubscribeTopic,
		iothub.NotificationSubscribeTopic, iothub.CommandSubscribeTopic,
	}
	if !slices.Equal(h.transport.subscribed, want) {
		t.Errorf("subscribed = %v, want %v", h.transport.subscribed, want)
	}
	if h.transport.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1 after failed restore", h.transport.disconnects)
	}
	if len(h.sleeper.delays) != 1 {
		t.Errorf("sleeps = %d, want 1", len(h.sleeper.delays))
	}
	if !errors.Is(h.observer.attempts[0].err, ErrSubscribe) {
		t.Errorf("first attempt error = %v, want ErrSubscribe", h.observer.attempts[0].err)
	}
	if h.sup.Generation() != 1 {
		t.Errorf("Generation() = %d, want 1", h.sup.Generation())
	}
}

func TestEnsureConnected_ConfigErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(h *harness)
	}{
		{
			name:    "credential issuance",
			prepare: func(h *harness) { h.issuer.err = errors.New("bad key") },
		},
		{
			name: "trust anchor",
			prepare: func(h *harness) {
				h.transport.connectErrs = []error{fmt.Errorf("%w: no certificates", mqtt.ErrTrustAnchor)}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			tt.prepare(h)

			err := h.sup.EnsureConnected(context.Background())
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("EnsureConnected() error = %v, want ErrConfig", err)
			}
			if len(h.sleeper.delays) != 0 {
				t.Errorf("sleeps = %d, want 0", len(h.sleeper.delays))
			}
			if h.sup.State() != StateDisconnected {
				t.Errorf("State() = %v, want DISCONNECTED", h.sup.State())
			}
		})
	}
}

func TestEnsureConnected_CancelledDuringBackoff(t *testing.T) {
	h := newHarness()
	h.transport.connectErrs = []error{errBrokerDown, errBrokerDown, errBrokerDown}

	ctx, cancel := context.WithCancel(context.Background())
	h.sup.SetSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})

	err := h.sup.EnsureConnected(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("EnsureConnected() error = %v, want context.Canceled", err)
	}
	if h.sup.State() != StateDisconnected {
		t.Errorf("State() = %v, want DISCONNECTED", h.sup.State())
	}
	if len(h.transport.passwords) != 1 {
		t.Errorf("connect attempts = %d, want 1", len(h.transport.passwords))
	}
}

func TestSupervisor_Publish(t *testing.T) {
	h := newHarness()

	err := h.sup.Publish("devices/dev1/messages/events/", 1, []byte("x"))
	if !errors.Is(err, ErrPublish) || !errors.Is(err, mqtt.ErrNotConnected) {
		t.Fatalf("Publish() before connect error = %v, want ErrPublish and ErrNotConnected", err)
	}

	if err := h.sup.EnsureConnected(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := h.sup.Publish("devices/dev1/messages/events/", 1, []byte("x")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(h.transport.published) != 1 {
		t.Errorf("published = %d, want 1", len(h.transport.published))
	}

	h.transport.publishErr = mqtt.ErrPublishFailed
	if err := h.sup.Publish("t", 1, nil); !errors.Is(err, ErrPublish) {
		t.Errorf("Publish() error = %v, want ErrPublish", err)
	}
}

func TestSupervisor_Close(t *testing.T) {
	h := newHarness()
	if err := h.sup.EnsureConnected(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.sup.Close()
	if h.sup.State() != StateDisconnected {
		t.Errorf("State() = %v, want DISCONNECTED", h.sup.State())
	}
	if h.transport.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", h.transport.disconnects)
	}

	h.sup.Close()
	if h.transport.disconnects != 1 {
		t.Errorf("second Close() disconnected again")
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext(cancelled) error = %v, want context.Canceled", err)
	}
}
