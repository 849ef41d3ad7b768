package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/hublink/internal/infrastructure/database"
)

// SQLiteStore persists entries in the outbox table.
// The schema comes from the migrations package and must be applied first.
type SQLiteStore struct {
	db       *database.DB
	capacity int
}

// NewSQLiteStore creates a store over an opened, migrated database.
func NewSQLiteStore(db *database.DB, capacity int) (*SQLiteStore, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &SQLiteStore{db: db, capacity: capacity}, nil
}

// Enqueue implements Store. The insert and the eviction share a transaction.
func (s *SQLiteStore) Enqueue(ctx context.Context, e Entry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStore, err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	payload := e.Payload
	if payload == nil {
		payload = []byte{}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO outbox (id, seq, topic, qos, payload, created_at, attempts)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM outbox), ?, ?, ?, ?, ?)`,
		e.ID.String(), e.Topic, int(e.QoS), payload, e.CreatedAt.UTC().Format(time.RFC3339Nano), e.Attempts,
	); err != nil {
		return 0, fmt.Errorf("%w: insert: %w", ErrStore, err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM outbox WHERE id IN (
			SELECT id FROM outbox ORDER BY seq ASC
			LIMIT MAX(0, (SELECT COUNT(*) FROM outbox) - ?)
		)`, s.capacity)
	if err != nil {
		return 0, fmt.Errorf("%w: evict: %w", ErrStore, err)
	}
	evicted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStore, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", ErrStore, err)
	}
	return int(evicted), nil
}

// Oldest implements Store.
func (s *SQLiteStore) Oldest(ctx context.Context) (Entry, bool, error) {
	var (
		e         Entry
		id        string
		qos       int
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, topic, qos, payload, created_at, attempts
		FROM outbox ORDER BY seq ASC LIMIT 1`,
	).Scan(&id, &e.Topic, &qos, &e.Payload, &createdAt, &e.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: select: %w", ErrStore, err)
	}

	if e.ID, err = uuid.Parse(id); err != nil {
		return Entry{}, false, fmt.Errorf("%w: entry id %q: %w", ErrStore, id, err)
	}
	e.QoS = byte(qos)                                        //nolint:gosec // CHECK constraint keeps qos in 0..2
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // Format is controlled

	return e, true, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM outbox WHERE id = ?", id.String()); err != nil {
		return fmt.Errorf("%w: delete: %w", ErrStore, err)
	}
	return nil
}

// MarkAttempt implements Store.
func (s *SQLiteStore) MarkAttempt(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE outbox SET attempts = attempts + 1 WHERE id = ?", id.String()); err != nil {
		return fmt.Errorf("%w: update: %w", ErrStore, err)
	}
	return nil
}

// Len implements Store.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM outbox").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", ErrStore, err)
	}
	return n, nil
}
