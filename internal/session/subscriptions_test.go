package session

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestSubscriptionManager_RestoreOrder(t *testing.T) {
	m := NewSubscriptionManager([]string{"a/#", "b/#", "c/#"})
	tr := &fakeTransport{}

	for i := 0; i < 3; i++ {
		if err := m.Restore(context.Background(), tr); err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
	}

	want := []string{"a/#", "b/#", "c/#", "a/#", "b/#", "c/#", "a/#", "b/#", "c/#"}
	if !slices.Equal(tr.subscribed, want) {
		t.Errorf("subscribed = %v, want %v", tr.subscribed, want)
	}
	for _, s := range m.Subscriptions() {
		if s.QoS != 1 {
			t.Errorf("Subscription %s QoS = %d, want 1", s.Topic, s.QoS)
		}
	}
}

func TestSubscriptionManager_StopsAtFirstFailure(t *testing.T) {
	cause := errors.New("not authorized")
	m := NewSubscriptionManager([]string{"a/#", "b/#", "c/#"})
	tr := &fakeTransport{subscribeErr: map[string]error{"b/#": cause}}

	err := m.Restore(context.Background(), tr)
	if !errors.Is(err, ErrSubscribe) || !errors.Is(err, cause) {
		t.Fatalf("Restore() error = %v, want ErrSubscribe wrapping cause", err)
	}
	if !slices.Equal(tr.subscribed, []string{"a/#", "b/#"}) {
		t.Errorf("subscribed = %v, want [a/# b/#]", tr.subscribed)
	}
}

func TestSubscriptionManager_Cancelled(t *testing.T) {
	m := NewSubscriptionManager([]string{"a/#"})
	tr := &fakeTransport{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Restore(ctx, tr); !errors.Is(err, context.Canceled) {
		t.Errorf("Restore() error = %v, want context.Canceled", err)
	}
	if len(tr.subscribed) != 0 {
		t.Errorf("subscribed = %v, want none", tr.subscribed)
	}
}

func TestSubscriptionManager_SubscriptionsIsACopy(t *testing.T) {
	m := NewSubscriptionManager([]string{"a/#"})
	subs := m.Subscriptions()
	subs[0].Topic = "mutated"

	if m.Subscriptions()[0].Topic != "a/#" {
		t.Error("Subscriptions() exposed internal slice")
	}
}
