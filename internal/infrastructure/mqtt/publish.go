package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (256KB, the IoT Hub device-to-cloud limit).
const maxPayloadSize = 256 << 10

// Publish sends a message and waits for the broker acknowledgement
// (QoS 1 and 2) or for the write to complete (QoS 0).
//
// Parameters:
//   - topic: The topic to publish to
//   - qos: Quality of Service level (0, 1, or 2)
//   - payload: The message body
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (t *Transport) Publish(topic string, qos byte, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	client, err := t.current()
	if err != nil {
		return err
	}

	token := client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(defaultAckTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultAckTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
