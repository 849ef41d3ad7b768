// Package telemetry publishes periodic device-to-cloud messages.
package telemetry

import (
	"errors"
	"fmt"

	"github.com/nerrad567/hublink/internal/outbox"
	"github.com/nerrad567/hublink/internal/session"
)

// Defaults used when a Config field is left zero.
const (
	DefaultEveryTicks = 100
	DefaultPrefix     = "hublink message"
)

// Publisher sends one telemetry message.
type Publisher interface {
	Publish(topic string, qos byte, payload []byte) error
}

// Recorder observes each message that was sent or queued for retry.
type Recorder interface {
	RecordTelemetry(seq uint64, queued bool)
}

// Logger is the logging surface used by the scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Config controls the cadence and content of telemetry.
type Config struct {
	// Topic is the device telemetry topic.
	Topic string

	// EveryTicks publishes on ticks where tick % EveryTicks == 0.
	EveryTicks uint64

	// MaxMessages finishes the loop after this many messages. 0 is unbounded.
	MaxMessages uint64

	// Prefix precedes " #{seq}" in the body.
	Prefix string

	// QoS of each message. The hub accepts 0 and 1.
	QoS byte
}

// Scheduler implements session.Scheduler.
type Scheduler struct {
	publisher Publisher
	cfg       Config
	recorder  Recorder
	logger    Logger

	seq    uint64
	queued uint64
}

// NewScheduler creates a Scheduler.
func NewScheduler(publisher Publisher, cfg Config) *Scheduler {
	if cfg.EveryTicks == 0 {
		cfg.EveryTicks = DefaultEveryTicks
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Scheduler{publisher: publisher, cfg: cfg, logger: noopLogger{}}
}

// SetRecorder sets an optional metrics recorder.
func (s *Scheduler) SetRecorder(r Recorder) {
	s.recorder = r
}

// SetLogger sets the logger. nil restores the no-op logger.
func (s *Scheduler) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Sent returns how many messages were handed off, including queued ones.
func (s *Scheduler) Sent() uint64 {
	return s.seq
}

// Queued returns how many of the sent messages went to the outbox.
func (s *Scheduler) Queued() uint64 {
	return s.queued
}

// OnTick publishes on every EveryTicks-th tick.
//
// A message stored by an outbox counts as sent. Any other publish failure
// is returned wrapping session.ErrPublish; the sequence number is consumed
// either way so bodies stay unique.
//
// Returns:
//   - bool: true once MaxMessages messages have been sent
//   - error: The publish failure, if any
func (s *Scheduler) OnTick(tick uint64) (bool, error) {
	if s.done() {
		return true, nil
	}
	if tick%s.cfg.EveryTicks != 0 {
		return false, nil
	}

	seq := s.seq
	s.seq++

	body := fmt.Sprintf("%s #%d", s.cfg.Prefix, seq)
	err := s.publisher.Publish(s.cfg.Topic, s.cfg.QoS, []byte(body))

	queued := errors.Is(err, outbox.ErrQueued)
	switch {
	case err == nil:
		s.logger.Debug("telemetry sent", "seq", seq)
	case queued:
		s.queued++
		s.logger.Warn("telemetry queued for retry", "seq", seq, "error", err)
	}
	if s.recorder != nil && (err == nil || queued) {
		s.recorder.RecordTelemetry(seq, queued)
	}

	if err != nil && !queued {
		if !errors.Is(err, session.ErrPublish) {
			err = fmt.Errorf("%w: %w", session.ErrPublish, err)
		}
		return s.done(), fmt.Errorf("telemetry #%d: %w", seq, err)
	}
	return s.done(), nil
}

func (s *Scheduler) done() bool {
	return s.cfg.MaxMessages > 0 && s.seq >= s.cfg.MaxMessages
}
