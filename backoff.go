package nfcagent

import (
	"math/rand"
	"sync"
	"time"
)

// reconnectPolicy is the delay schedule between consecutive reconnect
// attempts: exponential growth with a cap and a small jitter so that many
// clients don't reconnect in lockstep.
type reconnectPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64 // Fraction of the delay randomized in [1-j, 1+j]
}

func defaultReconnectPolicy() reconnectPolicy {
	return reconnectPolicy{
		Initial:    time.Second,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// backoff tracks the attempt counter for one connection's reconnect schedule.
// Reset on every successful connect.
type backoff struct {
	policy reconnectPolicy

	mu      sync.Mutex
	attempt int
}

func newBackoff(policy reconnectPolicy) *backoff {
	if policy.Initial <= 0 {
		policy.Initial = time.Second
	}
	if policy.Max < policy.Initial {
		policy.Max = policy.Initial
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}
	return &backoff{policy: policy}
}

// Next returns the delay before the next attempt and advances the counter.
func (b *backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := float64(b.policy.Initial)
	for i := 0; i < b.attempt; i++ {
		delay *= b.policy.Multiplier
		if delay >= float64(b.policy.Max) {
			delay = float64(b.policy.Max)
			break
		}
	}
	b.attempt++

	if j := b.policy.Jitter; j > 0 {
		delay *= 1 - j + 2*j*rand.Float64()
		if delay > float64(b.policy.Max) {
			delay = float64(b.policy.Max)
		}
	}

	return time.Duration(delay)
}

// Reset returns the schedule to its baseline.
func (b *backoff) Reset() {
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()
}

// Attempt returns the number of delays handed out since the last reset.
func (b *backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
