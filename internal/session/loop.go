package session

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/hublink/internal/infrastructure/mqtt"
)

// DefaultTickInterval is the sleep between loop ticks.
const DefaultTickInterval = 50 * time.Millisecond

// LoopState is the per-run state threaded through each tick.
type LoopState struct {
	// Tick counts completed ticks, starting at zero.
	Tick uint64

	// Generation is the supervisor generation seen at the last tick. A
	// change means a new session was established.
	Generation uint64
}

// Router handles one inbound message.
type Router interface {
	Route(msg mqtt.Message) error
}

// Scheduler is invoked once per tick. done ends the loop.
type Scheduler interface {
	OnTick(tick uint64) (done bool, err error)
}

// Flusher replays queued publishes.
type Flusher interface {
	Flush(ctx context.Context) (int, error)
	Pending(ctx context.Context) (int, error)
}

// Runner drives a Supervisor, a Router and a Scheduler from one goroutine.
type Runner struct {
	supervisor *Supervisor
	router     Router
	scheduler  Scheduler
	flusher    Flusher
	flushEvery uint64
	interval   time.Duration
	logger     Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a Runner. A non-positive interval selects DefaultTickInterval.
func NewRunner(supervisor *Supervisor, router Router, scheduler Scheduler, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Runner{
		supervisor: supervisor,
		router:     router,
		scheduler:  scheduler,
		interval:   interval,
		logger:     noopLogger{},
		sleep:      sleepContext,
	}
}

// SetLogger sets the logger. nil restores the no-op logger.
func (r *Runner) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// SetFlusher sets an optional outbox. It is flushed after every new
// session and, while connected, on ticks where tick % every == 0 and
// entries are pending. The periodic flush runs before the scheduler's
// turn. every == 0 limits flushing to new sessions.
func (r *Runner) SetFlusher(f Flusher, every uint64) {
	r.flusher = f
	r.flushEvery = every
}

// SetSleeper replaces the inter-tick sleep. Intended for tests.
func (r *Runner) SetSleeper(sleep func(ctx context.Context, d time.Duration) error) {
	r.sleep = sleep
}

// Run ticks until the scheduler reports done, ctx is cancelled, or a
// configuration error occurs. The session is disconnected on return.
//
// Returns:
//   - error: nil on completion or cancellation; otherwise the fatal error
func (r *Runner) Run(ctx context.Context) error {
	defer r.supervisor.Close()

	state := &LoopState{}
	for {
		done, err := r.Tick(ctx, state)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				r.logger.Info("shutdown requested", "ticks", state.Tick)
				return nil
			}
			return err
		}
		if done {
			r.drain(ctx)
			r.logger.Info("telemetry complete", "ticks", state.Tick)
			return nil
		}

		if err := r.sleep(ctx, r.interval); err != nil {
			r.logger.Info("shutdown requested", "ticks", state.Tick)
			return nil
		}
	}
}

// Tick runs one iteration:
//  1. ensure the session is connected (may block in backoff)
//  2. flush the outbox if a new session was established, or on the
//     flush cadence while entries are pending
//  3. route at most one inbound message
//  4. give the scheduler its turn
//
// Routing and scheduler errors are logged and do not stop the loop.
//
// Returns:
//   - bool: true when the scheduler is done
//   - error: a fatal supervisor error or ctx.Err()
func (r *Runner) Tick(ctx context.Context, state *LoopState) (bool, error) {
	if err := r.supervisor.EnsureConnected(ctx); err != nil {
		return false, err
	}

	if gen := r.supervisor.Generation(); gen != state.Generation {
		state.Generation = gen
		r.flush(ctx)
	} else if r.flushEvery > 0 && state.Tick%r.flushEvery == 0 && r.pending(ctx) {
		r.flush(ctx)
	}

	if msg, ok := r.supervisor.Receive(); ok {
		if err := r.router.Route(msg); err != nil {
			r.logger.Warn("inbound message dropped", "topic", msg.Topic, "error", err)
		}
	}

	done, err := r.scheduler.OnTick(state.Tick)
	if err != nil {
		r.logger.Warn("telemetry publish failed", "tick", state.Tick, "error", err)
	}
	state.Tick++

	return done, nil
}

// drain makes a last flush attempt before a finite run returns.
func (r *Runner) drain(ctx context.Context) {
	if r.flusher == nil || !r.supervisor.IsHealthy() || !r.pending(ctx) {
		return
	}
	r.flush(ctx)
	if n, err := r.flusher.Pending(ctx); err == nil && n > 0 {
		r.logger.Warn("outbox not empty at exit", "pending", n)
	}
}

func (r *Runner) pending(ctx context.Context) bool {
	n, err := r.flusher.Pending(ctx)
	if err != nil {
		r.logger.Warn("outbox length unavailable", "error", err)
		return false
	}
	return n > 0
}

func (r *Runner) flush(ctx context.Context) {
	if r.flusher == nil {
		return
	}
	sent, err := r.flusher.Flush(ctx)
	if err != nil {
		r.logger.Warn("outbox flush incomplete", "sent", sent, "error", err)
	}
}
