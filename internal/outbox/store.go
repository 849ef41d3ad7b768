package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry is one stored publish.
type Entry struct {
	ID        uuid.UUID
	Topic     string
	QoS       byte
	Payload   []byte
	CreatedAt time.Time

	// Attempts counts failed replays.
	Attempts int
}

// NewEntry creates an Entry with a fresh random ID.
func NewEntry(topic string, qos byte, payload []byte, now time.Time) Entry {
	body := make([]byte, len(payload))
	copy(body, payload)
	return Entry{
		ID:        uuid.New(),
		Topic:     topic,
		QoS:       qos,
		Payload:   body,
		CreatedAt: now.UTC(),
	}
}

// Store holds entries in insertion order.
type Store interface {
	// Enqueue appends e, evicting the oldest entries beyond capacity.
	// It returns how many entries were evicted.
	Enqueue(ctx context.Context, e Entry) (int, error)

	// Oldest returns the first entry. ok is false when the store is empty.
	Oldest(ctx context.Context) (e Entry, ok bool, err error)

	// Delete removes the entry with id. Deleting an absent id is not an error.
	Delete(ctx context.Context, id uuid.UUID) error

	// MarkAttempt increments the attempt counter of the entry with id.
	MarkAttempt(ctx context.Context, id uuid.UUID) error

	// Len returns the number of stored entries.
	Len(ctx context.Context) (int, error)
}
