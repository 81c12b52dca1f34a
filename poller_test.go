package nfcagent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// scriptedReader plays back a fixed sequence of read results, repeating the
// last one once the script runs out.
type scriptedReader struct {
	mu      sync.Mutex
	script  []readResult
	pos     int
	reads   int
	blockCh chan struct{} // when set, reads block until closed
}

type readResult struct {
	card *Card
	err  error
}

var errNoCard = &CardError{Message: "no card present"}

func (r *scriptedReader) ReadCard(ctx context.Context, reader int) (*Card, error) {
	r.mu.Lock()
	blockCh := r.blockCh
	r.reads++
	res := r.script[r.pos]
	if r.pos < len(r.script)-1 {
		r.pos++
	}
	r.mu.Unlock()

	if blockCh != nil {
		select {
		case <-blockCh:
		case <-ctx.Done():
			return nil, &ConnectionError{Op: "read_card", Err: ctx.Err()}
		}
	}
	return res.card, res.err
}

func (r *scriptedReader) readCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

func TestPollerEdgeDetection(t *testing.T) {
	cardA := &Card{UID: "04AAAA"}
	cardB := &Card{UID: "04BBBB"}
	reader := &scriptedReader{script: []readResult{
		{err: errNoCard},  // nothing yet
		{card: cardA},     // A arrives -> detected
		{card: cardA},     // A still there -> silent
		{card: cardB},     // swapped without removal -> detected
		{err: errNoCard},  // B gone -> removed
		{err: errNoCard},  // still gone -> silent
	}}

	poller := NewCardPoller(reader, 0, 5*time.Millisecond)

	var mu sync.Mutex
	var seen []string
	poller.OnCard(func(c *Card) {
		mu.Lock()
		seen = append(seen, "card:"+c.UID)
		mu.Unlock()
	})
	poller.OnRemoved(func() {
		mu.Lock()
		seen = append(seen, "removed")
		mu.Unlock()
	})

	poller.Start()
	defer poller.Stop()

	want := []string{"card:04AAAA", "card:04BBBB", "removed"}
	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		done := len(seen) >= len(want)
		mu.Unlock()
		if done || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(want) {
		t.Fatalf("expected events %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("event %d: expected %q, got %q", i, want[i], seen[i])
		}
	}
}

func TestPollerErrorsDoNotStopPolling(t *testing.T) {
	cardA := &Card{UID: "04AAAA"}
	transient := &ConnectionError{Op: "read_card", Err: errors.New("connection refused")}
	reader := &scriptedReader{script: []readResult{
		{card: cardA},    // detected
		{err: transient}, // transient failure, not a removal
		{card: cardA},    // same card again -> no duplicate event
	}}

	poller := NewCardPoller(reader, 0, 5*time.Millisecond)

	detected := make(chan string, 8)
	removed := make(chan struct{}, 8)
	gotErr := make(chan error, 8)
	poller.OnCard(func(c *Card) { detected <- c.UID })
	poller.OnRemoved(func() { removed <- struct{}{} })
	poller.OnError(func(err error) { gotErr <- err })

	poller.Start()
	defer poller.Stop()

	select {
	case uid := <-detected:
		if uid != "04AAAA" {
			t.Errorf("unexpected uid: %q", uid)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("card never detected")
	}

	select {
	case err := <-gotErr:
		var ce *ConnectionError
		if !errors.As(err, &ce) {
			t.Errorf("expected *ConnectionError, got %T", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error handler never fired")
	}

	// The failure must not read as a removal, and the unchanged card must not
	// re-fire detection.
	select {
	case <-removed:
		t.Error("transient error reported as card removal")
	case uid := <-detected:
		t.Errorf("duplicate detection for unchanged card %q", uid)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPollerStartStopIdempotent(t *testing.T) {
	reader := &scriptedReader{script: []readResult{{err: errNoCard}}}
	poller := NewCardPoller(reader, 0, 5*time.Millisecond)

	poller.Start()
	poller.Start()
	if !poller.IsRunning() {
		t.Error("expected running after Start")
	}

	poller.Stop()
	poller.Stop()
	if poller.IsRunning() {
		t.Error("expected stopped after Stop")
	}

	// A second start/stop round must work
	poller.Start()
	if !poller.IsRunning() {
		t.Error("expected running after restart")
	}
	poller.Stop()
}

func TestPollerRestartReportsCardAgain(t *testing.T) {
	cardA := &Card{UID: "04AAAA"}
	reader := &scriptedReader{script: []readResult{{card: cardA}}}
	poller := NewCardPoller(reader, 0, 5*time.Millisecond)

	detected := make(chan string, 8)
	poller.OnCard(func(c *Card) { detected <- c.UID })

	poller.Start()
	select {
	case <-detected:
	case <-time.After(2 * time.Second):
		t.Fatal("card never detected")
	}
	poller.Stop()

	// Stop clears the last-seen card, so the same card is an arrival again
	poller.Start()
	defer poller.Stop()
	select {
	case uid := <-detected:
		if uid != "04AAAA" {
			t.Errorf("unexpected uid: %q", uid)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("card not re-reported after restart")
	}
}

func TestPollerStopAbandonsInFlightRead(t *testing.T) {
	blockCh := make(chan struct{})
	cardA := &Card{UID: "04AAAA"}
	reader := &scriptedReader{
		script:  []readResult{{card: cardA}},
		blockCh: blockCh,
	}
	poller := NewCardPoller(reader, 0, 5*time.Millisecond)

	detected := make(chan string, 1)
	poller.OnCard(func(c *Card) { detected <- c.UID })

	poller.Start()

	deadline := time.Now().Add(2 * time.Second)
	for reader.readCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("read never started")
		}
		time.Sleep(time.Millisecond)
	}

	poller.Stop()
	close(blockCh) // let the abandoned read finish

	select {
	case uid := <-detected:
		t.Errorf("abandoned read delivered event for %q", uid)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPollerDefaultInterval(t *testing.T) {
	reader := &scriptedReader{script: []readResult{{err: errNoCard}}}
	poller := NewCardPoller(reader, 0, 0)
	if poller.interval != DefaultPollInterval {
		t.Errorf("expected default interval %s, got %s", DefaultPollInterval, poller.interval)
	}
}

func TestPollerHandlerRemoval(t *testing.T) {
	cardA := &Card{UID: "04AAAA"}
	reader := &scriptedReader{script: []readResult{{card: cardA}}}
	poller := NewCardPoller(reader, 0, 5*time.Millisecond)

	detected := make(chan string, 8)
	remove := poller.OnCard(func(c *Card) { detected <- c.UID })
	remove()
	remove() // removing twice is a no-op

	poller.Start()
	defer poller.Stop()

	select {
	case uid := <-detected:
		t.Errorf("removed handler fired for %q", uid)
	case <-time.After(100 * time.Millisecond):
	}
}
