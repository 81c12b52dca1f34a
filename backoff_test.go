package nfcagent

import (
	"testing"
	"time"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := newBackoff(reconnectPolicy{
		Initial:    100 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 2.0,
		// No jitter so delays are exact
	})

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("attempt %d: expected %s, got %s", i, w, got)
		}
	}
	if b.Attempt() != len(want) {
		t.Errorf("expected attempt counter %d, got %d", len(want), b.Attempt())
	}
}

func TestBackoffReset(t *testing.T) {
	b := newBackoff(reconnectPolicy{
		Initial:    100 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 2.0,
	})

	b.Next()
	b.Next()
	b.Reset()

	if got := b.Next(); got != 100*time.Millisecond {
		t.Errorf("expected initial delay after reset, got %s", got)
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	policy := reconnectPolicy{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 1.0,
		Jitter:     0.1,
	}
	b := newBackoff(policy)

	lo := time.Duration(float64(time.Second) * 0.9)
	hi := time.Duration(float64(time.Second) * 1.1)
	for i := 0; i < 100; i++ {
		got := b.Next()
		if got < lo || got > hi {
			t.Fatalf("jittered delay %s outside [%s, %s]", got, lo, hi)
		}
	}
}

func TestBackoffSanitizesPolicy(t *testing.T) {
	b := newBackoff(reconnectPolicy{Initial: -1, Max: -1, Multiplier: 0})

	if got := b.Next(); got != time.Second {
		t.Errorf("expected fallback initial delay of 1s, got %s", got)
	}
	if got := b.Next(); got != time.Second {
		t.Errorf("expected multiplier clamp to hold delay at 1s, got %s", got)
	}
}
