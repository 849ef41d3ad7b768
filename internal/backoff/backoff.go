// Package backoff computes reconnect delays.
//
// Delays grow exponentially from a base, are clipped to a ceiling, may be
// perturbed by a caller-supplied jitter, and are reduced by the time the
// failed attempt already took:
//
//	delay = min(base * 2^(attempt-1), cap)
//	delay += jitter            only if the result stays below cap
//	delay -= elapsed           floored at zero
//
// The result is always within [0, cap].
package backoff

import (
	"math/rand/v2"
	"time"
)

// maxShift bounds the exponent so the multiplication cannot overflow.
const maxShift = 31

// Defaults used when a Policy field is left zero.
const (
	DefaultBase = 1 * time.Second
	DefaultCap  = 60 * time.Second
)

// NextDelay returns the delay in milliseconds before retry attempt
// attemptCount (1-based). An attemptCount of zero is treated as one.
func NextDelay(elapsedMs, attemptCount, baseMs, capMs, jitterMs uint32) uint32 {
	if attemptCount == 0 {
		attemptCount = 1
	}

	shift := attemptCount - 1
	if shift > maxShift {
		shift = maxShift
	}

	delay := uint64(baseMs) << shift
	if delay > uint64(capMs) {
		delay = uint64(capMs)
	}

	if uint64(capMs)-delay > uint64(jitterMs) {
		delay += uint64(jitterMs)
	}

	if uint64(elapsedMs) >= delay {
		return 0
	}
	return uint32(delay - uint64(elapsedMs)) //nolint:gosec // delay <= capMs
}

// Policy applies NextDelay with duration-typed settings and random jitter.
type Policy struct {
	// Base is the delay before the first retry.
	Base time.Duration

	// Cap is the maximum delay.
	Cap time.Duration

	// MaxJitter bounds the random jitter added to each delay. Zero disables jitter.
	MaxJitter time.Duration

	// Jitter returns a value in [0, n). Defaults to math/rand/v2.
	Jitter func(n uint32) uint32
}

// Delay returns the wait before retry attempt, discounting the time the
// failed attempt took.
func (p Policy) Delay(attempt uint32, elapsed time.Duration) time.Duration {
	base := p.Base
	if base <= 0 {
		base = DefaultBase
	}
	ceiling := p.Cap
	if ceiling <= 0 {
		ceiling = DefaultCap
	}
	if ceiling < base {
		ceiling = base
	}

	var jitter uint32
	if maxJitter := toMillis(p.MaxJitter); maxJitter > 0 {
		draw := p.Jitter
		if draw == nil {
			draw = rand.Uint32N
		}
		jitter = draw(maxJitter)
	}

	ms := NextDelay(toMillis(elapsed), attempt, toMillis(base), toMillis(ceiling), jitter)
	return time.Duration(ms) * time.Millisecond
}

// toMillis converts a duration to milliseconds, saturating at the uint32 range.
func toMillis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(ms)
}
