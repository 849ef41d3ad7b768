package outbox

import (
	"context"
	"fmt"
	"time"
)

// Logger is the logging surface used by Publisher.
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

// Sender delivers a message immediately or fails.
type Sender interface {
	Publish(topic string, qos byte, payload []byte) error
}

// Publisher sends through a Sender and stores what it could not send.
//
// It is intended for the single driving goroutine; Store implementations
// may be shared.
type Publisher struct {
	next   Sender
	store  Store
	logger Logger
	now    func() time.Time
}

// NewPublisher creates a Publisher. A nil logger disables logging.
func NewPublisher(next Sender, store Store, logger Logger) *Publisher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Publisher{next: next, store: store, logger: logger, now: time.Now}
}

// Publish sends the message. If sending fails the message is stored and
// the returned error wraps ErrQueued and the send error. If storing also
// fails the error wraps ErrStore.
func (p *Publisher) Publish(topic string, qos byte, payload []byte) error {
	sendErr := p.next.Publish(topic, qos, payload)
	if sendErr == nil {
		return nil
	}

	ctx := context.Background()
	evicted, err := p.store.Enqueue(ctx, NewEntry(topic, qos, payload, p.now()))
	if err != nil {
		return fmt.Errorf("%w (send: %w)", err, sendErr)
	}
	if evicted > 0 {
		p.logger.Warn("outbox full, oldest entries evicted", "evicted", evicted)
	}

	p.logger.Debug("publish queued", "topic", topic, "error", sendErr)
	return fmt.Errorf("%w: %w", ErrQueued, sendErr)
}

// Flush replays stored entries oldest first until the store is empty or
// a send fails. A failed entry stays at the head with its attempt count
// incremented.
//
// Returns:
//   - int: Number of entries delivered
//   - error: The send or store error that stopped the flush, or ctx.Err()
func (p *Publisher) Flush(ctx context.Context) (int, error) {
	sent := 0
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		e, ok, err := p.store.Oldest(ctx)
		if err != nil {
			return sent, err
		}
		if !ok {
			if sent > 0 {
				p.logger.Info("outbox flushed", "sent", sent)
			}
			return sent, nil
		}

		if err := p.next.Publish(e.Topic, e.QoS, e.Payload); err != nil {
			if markErr := p.store.MarkAttempt(ctx, e.ID); markErr != nil {
				p.logger.Error("outbox attempt not recorded", "id", e.ID, "error", markErr)
			}
			return sent, fmt.Errorf("replaying %s: %w", e.ID, err)
		}

		if err := p.store.Delete(ctx, e.ID); err != nil {
			return sent, err
		}
		sent++
	}
}

// Pending returns the number of stored entries.
func (p *Publisher) Pending(ctx context.Context) (int, error) {
	return p.store.Len(ctx)
}
