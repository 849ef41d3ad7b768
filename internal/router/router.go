package router

import (
	"fmt"
	"unicode/utf8"

	"github.com/nerrad567/hublink/internal/infrastructure/mqtt"
	"github.com/nerrad567/hublink/internal/iothub"
	"github.com/nerrad567/hublink/internal/session"
)

// responseQoS is the QoS of command responses.
const responseQoS = 1

// Logger is the logging surface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Classifier maps topics to message kinds and builds response topics.
// *iothub.Client satisfies it.
type Classifier interface {
	Classify(topic string) iothub.Classification
	CommandResponseTopic(requestID string, status int) (string, error)
}

// Publisher sends a response on the live session.
type Publisher interface {
	Publish(topic string, qos byte, payload []byte) error
}

// Options configures a Router. Nil handlers select LogNotifications and Ack.
type Options struct {
	Notifications NotificationHandler
	Commands      CommandHandler
	Logger        Logger
}

// Router dispatches inbound messages.
type Router struct {
	classifier    Classifier
	publisher     Publisher
	notifications NotificationHandler
	commands      CommandHandler
	logger        Logger
}

// New creates a Router.
func New(classifier Classifier, publisher Publisher, opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	notifications := opts.Notifications
	if notifications == nil {
		notifications = LogNotifications{Logger: logger}
	}
	commands := opts.Commands
	if commands == nil {
		commands = Ack{}
	}
	return &Router{
		classifier:    classifier,
		publisher:     publisher,
		notifications: notifications,
		commands:      commands,
		logger:        logger,
	}
}

// Route handles one inbound message.
//
// Returns:
//   - error: session.ErrPayloadDecode for undecodable payloads or property
//     bags, session.ErrPublish when a command response could not be sent,
//     nil otherwise (including dropped unrecognized topics)
func (r *Router) Route(msg mqtt.Message) error {
	c := r.classifier.Classify(msg.Topic)

	switch c.Kind {
	case iothub.KindNotification:
		return r.routeNotification(msg, c)
	case iothub.KindCommand:
		return r.routeCommand(msg, c)
	default:
		r.logger.Debug("unrecognized topic dropped", "topic", msg.Topic)
		return nil
	}
}

func (r *Router) routeNotification(msg mqtt.Message, c iothub.Classification) error {
	props, err := iothub.ParseProperties(c.PropertyBag)
	if err != nil {
		return fmt.Errorf("%w: %w", session.ErrPayloadDecode, err)
	}
	body, err := decodeText(msg.Payload)
	if err != nil {
		return err
	}

	r.notifications.HandleNotification(props, body)
	return nil
}

func (r *Router) routeCommand(msg mqtt.Message, c iothub.Classification) error {
	body, err := decodeText(msg.Payload)
	if err != nil {
		return fmt.Errorf("command %s (rid %s): %w", c.Name, c.CorrelationID, err)
	}

	status, response := r.commands.HandleCommand(c.Name, c.CorrelationID, body)

	topic, err := r.classifier.CommandResponseTopic(c.CorrelationID, status)
	if err != nil {
		return fmt.Errorf("%w: command %s: %w", session.ErrPublish, c.Name, err)
	}
	if err := r.publisher.Publish(topic, responseQoS, response); err != nil {
		return fmt.Errorf("responding to command %s: %w", c.Name, err)
	}

	r.logger.Info("command answered", "method", c.Name, "rid", c.CorrelationID, "status", status)
	return nil
}

// decodeText validates payload as UTF-8 text.
func decodeText(payload []byte) (string, error) {
	if !utf8.Valid(payload) {
		return "", fmt.Errorf("%w: payload is not valid UTF-8", session.ErrPayloadDecode)
	}
	return string(payload), nil
}
