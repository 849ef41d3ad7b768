package router

import (
	"github.com/nerrad567/hublink/internal/iothub"
)

// Default command response.
const (
	StatusOK        = 200
	StatusNotFound  = 404
	successResponse = `{"status":"success"}`
	notFoundBody    = `{"status":"method not found"}`
)

// NotificationHandler receives decoded cloud-to-device messages.
type NotificationHandler interface {
	HandleNotification(props []iothub.Property, body string)
}

// CommandHandler answers a direct method request.
type CommandHandler interface {
	HandleCommand(name, correlationID, body string) (status int, response []byte)
}

// NotificationFunc adapts a function to NotificationHandler.
type NotificationFunc func(props []iothub.Property, body string)

// HandleNotification implements NotificationHandler.
func (f NotificationFunc) HandleNotification(props []iothub.Property, body string) {
	f(props, body)
}

// CommandFunc adapts a function to CommandHandler.
type CommandFunc func(name, correlationID, body string) (int, []byte)

// HandleCommand implements CommandHandler.
func (f CommandFunc) HandleCommand(name, correlationID, body string) (int, []byte) {
	return f(name, correlationID, body)
}

// LogNotifications logs each notification at info level.
type LogNotifications struct {
	Logger Logger
}

// HandleNotification implements NotificationHandler.
func (h LogNotifications) HandleNotification(props []iothub.Property, body string) {
	if h.Logger == nil {
		return
	}
	args := []any{"body", body, "properties", len(props)}
	for _, p := range props {
		args = append(args, "prop."+p.Name, p.Value)
	}
	h.Logger.Info("notification received", args...)
}

// Ack answers every command with 200 and {"status":"success"}.
type Ack struct{}

// HandleCommand implements CommandHandler.
func (Ack) HandleCommand(string, string, string) (int, []byte) {
	return StatusOK, []byte(successResponse)
}

// Mux dispatches commands by method name.
// Methods without a registered handler go to Fallback, or get a 404 when
// Fallback is nil.
type Mux struct {
	handlers map[string]CommandHandler
	Fallback CommandHandler
}

// NewMux creates a Mux with the given fallback.
func NewMux(fallback CommandHandler) *Mux {
	return &Mux{handlers: make(map[string]CommandHandler), Fallback: fallback}
}

// Handle registers h for the method name, replacing any previous handler.
func (m *Mux) Handle(name string, h CommandHandler) {
	m.handlers[name] = h
}

// HandleCommand implements CommandHandler.
func (m *Mux) HandleCommand(name, correlationID, body string) (int, []byte) {
	if h, ok := m.handlers[name]; ok {
		return h.HandleCommand(name, correlationID, body)
	}
	if m.Fallback != nil {
		return m.Fallback.HandleCommand(name, correlationID, body)
	}
	return StatusNotFound, []byte(notFoundBody)
}
