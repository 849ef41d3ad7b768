package session

import (
	"context"
	"fmt"
)

// subscribeQoS is the QoS requested for every inbound channel.
const subscribeQoS = 1

// Subscription is one inbound topic filter.
type Subscription struct {
	Topic string
	QoS   byte
}

// Subscriber issues a single subscribe on the live connection.
type Subscriber interface {
	Subscribe(topic string, qos byte) error
}

// SubscriptionManager restores the required subscriptions after a connect.
type SubscriptionManager struct {
	subs []Subscription
}

// NewSubscriptionManager creates a manager for topics, restored in the
// given order at QoS 1.
func NewSubscriptionManager(topics []string) *SubscriptionManager {
	subs := make([]Subscription, 0, len(topics))
	for _, t := range topics {
		subs = append(subs, Subscription{Topic: t, QoS: subscribeQoS})
	}
	return &SubscriptionManager{subs: subs}
}

// Subscriptions returns a copy of the subscription list in restore order.
func (m *SubscriptionManager) Subscriptions() []Subscription {
	out := make([]Subscription, len(m.subs))
	copy(out, m.subs)
	return out
}

// Restore subscribes to every topic, one call each, in order. It stops at
// the first failure; the caller must then treat the connection as unusable.
//
// Returns:
//   - error: nil when all subscriptions succeeded, otherwise ErrSubscribe
//     wrapping the topic and cause, or ctx.Err()
func (m *SubscriptionManager) Restore(ctx context.Context, s Subscriber) error {
	for _, sub := range m.subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Subscribe(sub.Topic, sub.QoS); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrSubscribe, sub.Topic, err)
		}
	}
	return nil
}
