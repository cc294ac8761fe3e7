package chatclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoff_DoublesFromBaseAndCaps(t *testing.T) {
	req := require.New(t)

	// Given the standard policy
	b := newBackoff(1000*time.Millisecond, 30000*time.Millisecond)

	// When an outage runs through five attempts
	var delays []time.Duration
	for i := 0; i < 5; i++ {
		delays = append(delays, b.nextDelay())
		b.recordAttempt()
	}

	// Then the schedule is exactly the doubling sequence
	req.Equal([]time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}, delays)

	// And further attempts hit the cap
	req.Equal(30000*time.Millisecond, b.nextDelay())
	b.recordAttempt()
	req.Equal(30000*time.Millisecond, b.nextDelay())
}

func TestBackoff_ResetRestartsFromBase(t *testing.T) {
	req := require.New(t)

	b := newBackoff(1000*time.Millisecond, 30000*time.Millisecond)
	b.recordAttempt()
	b.recordAttempt()
	req.Equal(4000*time.Millisecond, b.nextDelay())

	b.reset()
	req.Equal(0, b.attempts)
	req.Equal(1000*time.Millisecond, b.nextDelay())
}

func TestBackoff_HugeAttemptCountStaysAtCap(t *testing.T) {
	req := require.New(t)

	b := newBackoff(time.Second, 30*time.Second)
	b.attempts = 500
	req.Equal(30*time.Second, b.nextDelay())
}
