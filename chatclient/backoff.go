package chatclient

import "time"

// maxBackoffShift bounds the doubling so the shift can never overflow, even
// with an absurd attempt limit configured.
const maxBackoffShift = 32

// backoff computes the doubling-with-cap reconnection schedule. attempts
// counts retry timer fires during the current outage; a successful connect
// resets it.
type backoff struct {
	base     time.Duration
	max      time.Duration
	attempts int
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max}
}

// nextDelay returns the delay to schedule for the upcoming attempt:
// base doubled once per completed attempt, capped at max.
func (b *backoff) nextDelay() time.Duration {
	if b.attempts >= maxBackoffShift {
		return b.max
	}
	d := b.base << uint(b.attempts)
	if d <= 0 || d > b.max {
		return b.max
	}
	return d
}

func (b *backoff) recordAttempt() {
	b.attempts++
}

func (b *backoff) reset() {
	b.attempts = 0
}
