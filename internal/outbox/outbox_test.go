package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/hublink/internal/infrastructure/database"
	"github.com/nerrad567/hublink/migrations"
)

var errOffline = errors.New("offline")

// fakeSender records deliveries and fails while down is set.
type fakeSender struct {
	down      bool
	failAfter int // fail once this many sends succeeded, when > 0
	sent      []string
}

func (f *fakeSender) Publish(topic string, _ byte, payload []byte) error {
	if f.down || (f.failAfter > 0 && len(f.sent) >= f.failAfter) {
		return errOffline
	}
	f.sent = append(f.sent, topic+"|"+string(payload))
	return nil
}

func openSQLiteStore(t *testing.T, capacity int) *SQLiteStore {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "outbox.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	store, err := NewSQLiteStore(db, capacity)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	return store
}

func stores(t *testing.T, capacity int) map[string]Store {
	t.Helper()
	mem, err := NewMemoryStore(capacity)
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	return map[string]Store{
		"Memory": mem,
		"SQLite": openSQLiteStore(t, capacity),
	}
}

// =============================================================================
// Store contract
// =============================================================================

func TestStore_FIFOAndDelete(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	for name, store := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			first := NewEntry("devices/dev1/messages/events/", 1, []byte("a"), now)
			second := NewEntry("devices/dev1/messages/events/", 1, []byte("b"), now.Add(time.Second))

			for _, e := range []Entry{first, second} {
				if _, err := store.Enqueue(ctx, e); err != nil {
					t.Fatalf("Enqueue() error = %v", err)
				}
			}

			got, ok, err := store.Oldest(ctx)
			if err != nil || !ok {
				t.Fatalf("Oldest() = %v, %v", ok, err)
			}
			if got.ID != first.ID || string(got.Payload) != "a" || got.QoS != 1 {
				t.Errorf("Oldest() = %+v, want first entry", got)
			}
			if !got.CreatedAt.Equal(now) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
			}

			if err := store.Delete(ctx, first.ID); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			got, _, _ = store.Oldest(ctx)
			if got.ID != second.ID {
				t.Errorf("Oldest() after delete = %s, want %s", got.ID, second.ID)
			}

			if n, _ := store.Len(ctx); n != 1 {
				t.Errorf("Len() = %d, want 1", n)
			}
		})
	}
}

func TestStore_EvictsOldest(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t, 2) {
		t.Run(name, func(t *testing.T) {
			var evictedTotal int
			var ids []Entry
			for _, body := range []string{"1", "2", "3"} {
				e := NewEntry("t", 1, []byte(body), time.Now())
				ids = append(ids, e)
				n, err := store.Enqueue(ctx, e)
				if err != nil {
					t.Fatalf("Enqueue() error = %v", err)
				}
				evictedTotal += n
			}

			if evictedTotal != 1 {
				t.Errorf("evicted = %d, want 1", evictedTotal)
			}
			if n, _ := store.Len(ctx); n != 2 {
				t.Errorf("Len() = %d, want 2", n)
			}
			got, _, _ := store.Oldest(ctx)
			if got.ID != ids[1].ID {
				t.Errorf("Oldest() = %q, want entry 2", got.Payload)
			}
		})
	}
}

func TestStore_MarkAttemptAndEmpty(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t, 5) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := store.Oldest(ctx); ok || err != nil {
				t.Fatalf("Oldest() on empty store = %v, %v; want false, nil", ok, err)
			}

			e := NewEntry("t", 0, nil, time.Now())
			if _, err := store.Enqueue(ctx, e); err != nil {
				t.Fatalf("Enqueue(nil payload) error = %v", err)
			}
			for i := 0; i < 2; i++ {
				if err := store.MarkAttempt(ctx, e.ID); err != nil {
					t.Fatalf("MarkAttempt() error = %v", err)
				}
			}
			got, _, _ := store.Oldest(ctx)
			if got.Attempts != 2 {
				t.Errorf("Attempts = %d, want 2", got.Attempts)
			}
			if len(got.Payload) != 0 {
				t.Errorf("Payload = %q, want empty", got.Payload)
			}
		})
	}
}

func TestNewStore_InvalidCapacity(t *testing.T) {
	if _, err := NewMemoryStore(0); !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("NewMemoryStore(0) error = %v, want ErrInvalidCapacity", err)
	}
	if _, err := NewSQLiteStore(nil, 0); !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("NewSQLiteStore(0) error = %v, want ErrInvalidCapacity", err)
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "outbox.db")

	open := func() (*database.DB, *SQLiteStore) {
		db, err := database.Open(database.Config{Path: path})
		if err != nil {
			t.Fatalf("database.Open() error = %v", err)
		}
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			t.Fatalf("Migrate() error = %v", err)
		}
		store, err := NewSQLiteStore(db, 10)
		if err != nil {
			t.Fatal(err)
		}
		return db, store
	}

	db, store := open()
	e := NewEntry("devices/dev1/messages/events/", 1, []byte("kept"), time.Now())
	if _, err := store.Enqueue(ctx, e); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	db.Close() //nolint:errcheck // Reopened below

	db, store = open()
	defer db.Close() //nolint:errcheck // Test cleanup

	got, ok, err := store.Oldest(ctx)
	if err != nil || !ok {
		t.Fatalf("Oldest() = %v, %v", ok, err)
	}
	if got.ID != e.ID || string(got.Payload) != "kept" {
		t.Errorf("Oldest() = %+v, want persisted entry", got)
	}
}

// =============================================================================
// Publisher
// =============================================================================

func TestPublisher_PassThroughWhenConnected(t *testing.T) {
	store, _ := NewMemoryStore(10)
	sender := &fakeSender{}
	p := NewPublisher(sender, store, nil)

	if err := p.Publish("t", 1, []byte("x")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent = %d, want 1", len(sender.sent))
	}
	if n, _ := p.Pending(context.Background()); n != 0 {
		t.Errorf("Pending() = %d, want 0", n)
	}
}

func TestPublisher_QueuesOnFailure(t *testing.T) {
	store, _ := NewMemoryStore(10)
	sender := &fakeSender{down: true}
	p := NewPublisher(sender, store, nil)

	err := p.Publish("t", 1, []byte("x"))
	if !errors.Is(err, ErrQueued) {
		t.Fatalf("Publish() error = %v, want ErrQueued", err)
	}
	if !errors.Is(err, errOffline) {
		t.Errorf("Publish() error = %v, want wrapped send error", err)
	}
	if n, _ := p.Pending(context.Background()); n != 1 {
		t.Errorf("Pending() = %d, want 1", n)
	}
}

func TestPublisher_FlushReplaysInOrder(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			sender := &fakeSender{down: true}
			p := NewPublisher(sender, store, nil)

			for _, body := range []string{"#0", "#1", "#2"} {
				_ = p.Publish("devices/dev1/messages/events/", 1, []byte(body))
			}

			sender.down = false
			sent, err := p.Flush(ctx)
			if err != nil {
				t.Fatalf("Flush() error = %v", err)
			}
			if sent != 3 {
				t.Errorf("Flush() sent = %d, want 3", sent)
			}

			want := []string{
				"devices/dev1/messages/events/|#0",
				"devices/dev1/messages/events/|#1",
				"devices/dev1/messages/events/|#2",
			}
			for i, w := range want {
				if i >= len(sender.sent) || sender.sent[i] != w {
					t.Fatalf("sent = %v, want %v", sender.sent, want)
				}
			}
			if n, _ := p.Pending(ctx); n != 0 {
				t.Errorf("Pending() = %d, want 0", n)
			}
		})
	}
}

func TestPublisher_FlushStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	store, _ := NewMemoryStore(10)
	sender := &fakeSender{down: true}
	p := NewPublisher(sender, store, nil)

	for _, body := range []string{"a", "b", "c"} {
		_ = p.Publish("t", 1, []byte(body))
	}

	sender.down = false
	sender.failAfter = 1

	sent, err := p.Flush(ctx)
	if !errors.Is(err, errOffline) {
		t.Fatalf("Flush() error = %v, want errOffline", err)
	}
	if sent != 1 {
		t.Errorf("Flush() sent = %d, want 1", sent)
	}

	head, _, _ := store.Oldest(ctx)
	if string(head.Payload) != "b" || head.Attempts != 1 {
		t.Errorf("head = %q attempts %d, want b with 1 attempt", head.Payload, head.Attempts)
	}
}

func TestPublisher_FlushHonoursContext(t *testing.T) {
	store, _ := NewMemoryStore(10)
	p := NewPublisher(&fakeSender{down: true}, store, nil)
	_ = p.Publish("t", 1, []byte("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Flush(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Flush() error = %v, want context.Canceled", err)
	}
}
