package iothub

import (
	"fmt"
	"net/url"
	"strconv"
)

// Protocol constants for the IoT Hub MQTT surface.
const (
	// DefaultPort is the IoT Hub MQTT-over-TLS port.
	DefaultPort = 8883

	// APIVersion is the service API version advertised in the user name.
	APIVersion = "2020-09-30"

	// NotificationSubscribeTopic receives cloud-to-device messages.
	NotificationSubscribeTopic = "devices/+/messages/devicebound/#"

	// CommandSubscribeTopic receives direct method requests.
	CommandSubscribeTopic = "$iothub/methods/POST/#"

	commandRequestPrefix  = "$iothub/methods/POST/"
	commandResponsePrefix = "$iothub/methods/res/"
	requestIDMarker       = "/?$rid="
)

// Options customises the identifiers a Client produces.
type Options struct {
	// ModuleID targets a module identity instead of the device identity.
	ModuleID string

	// UserAgent is appended to the user name as DeviceClientType.
	UserAgent string
}

// Client derives identifiers and topics for one device identity.
// It is a value holder and safe for concurrent use.
type Client struct {
	host     string
	deviceID string
	opts     Options
}

// NewClient creates a Client for the given hub host and device.
func NewClient(host, deviceID string, opts Options) *Client {
	return &Client{host: host, deviceID: deviceID, opts: opts}
}

// Host returns the hub host name.
func (c *Client) Host() string {
	return c.host
}

// DeviceID returns the device identifier.
func (c *Client) DeviceID() string {
	return c.deviceID
}

// ClientID returns the MQTT client identifier.
//
// Example: dev1, or dev1/module1 for a module identity
func (c *Client) ClientID() string {
	if c.opts.ModuleID != "" {
		return c.deviceID + "/" + c.opts.ModuleID
	}
	return c.deviceID
}

// Username returns the MQTT user name.
//
// Example: h.example.com/dev1/?api-version=2020-09-30
func (c *Client) Username() string {
	name := c.host + "/" + c.ClientID() + "/?api-version=" + APIVersion
	if c.opts.UserAgent != "" {
		name += "&DeviceClientType=" + url.QueryEscape(c.opts.UserAgent)
	}
	return name
}

// BrokerURL returns the TLS broker URL for the hub.
//
// Example: ssl://h.example.com:8883
func (c *Client) BrokerURL() string {
	return fmt.Sprintf("ssl://%s:%d", c.host, DefaultPort)
}

// TelemetryTopic returns the device-to-cloud telemetry topic.
//
// Example: devices/dev1/messages/events/
func (c *Client) TelemetryTopic() string {
	if c.opts.ModuleID != "" {
		return fmt.Sprintf("devices/%s/modules/%s/messages/events/", c.deviceID, c.opts.ModuleID)
	}
	return fmt.Sprintf("devices/%s/messages/events/", c.deviceID)
}

// SubscribeTopics returns the inbound topic filters in subscription order:
// notifications first, then commands.
func (c *Client) SubscribeTopics() []string {
	return []string{NotificationSubscribeTopic, CommandSubscribeTopic}
}

// CommandResponseTopic returns the topic for a direct method response.
//
// Example: $iothub/methods/res/200/?$rid=42
func (c *Client) CommandResponseTopic(requestID string, status int) (string, error) {
	if requestID == "" {
		return "", ErrInvalidRequestID
	}
	if status < 100 || status > 999 {
		return "", fmt.Errorf("%w: %d", ErrInvalidStatus, status)
	}
	return commandResponsePrefix + strconv.Itoa(status) + requestIDMarker + requestID, nil
}
