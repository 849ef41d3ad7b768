package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe registers a topic filter. Matching messages are delivered
// through Receive.
//
// Subscriptions are not tracked; a new connection starts with none.
//
// Parameters:
//   - topic: The topic filter, wildcards allowed
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//
// Returns:
//   - error: nil when the broker granted the filter, otherwise a wrapped
//     ErrSubscribeFailed, ErrInvalidTopic, ErrInvalidQoS or ErrNotConnected
func (t *Transport) Subscribe(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	client, err := t.current()
	if err != nil {
		return err
	}

	token := client.Subscribe(topic, qos, t.enqueue)
	if !token.WaitTimeout(defaultAckTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrSubscribeFailed, topic, defaultAckTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}

	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		if code, found := st.Result()[topic]; found && code == subackFailure {
			return fmt.Errorf("%w: %s: rejected by broker", ErrSubscribeFailed, topic)
		}
	}

	return nil
}
