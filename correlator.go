package nfcagent

import (
	"encoding/json"
	"sync"
	"time"
)

// wsResult is the single-assignment outcome of a pending request.
type wsResult struct {
	payload json.RawMessage
	err     error
}

// pendingRequest is one in-flight WebSocket request awaiting its reply.
// It is owned by the correlator from add until resolve/remove; the result
// channel is buffered so resolution never blocks the message loop. The timer
// field is guarded by the correlator's mutex; set it via arm, never directly.
type pendingRequest struct {
	id    string
	ch    chan wsResult
	timer *time.Timer
}

// correlator matches reply frames to in-flight requests by correlation id.
// Each id resolves exactly once: the entry is removed from the table under
// the lock before its result is delivered, so a timeout firing concurrently
// with a reply (or a connection drop) can never double-resolve.
type correlator struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[string]*pendingRequest)}
}

// add registers a new pending request under id. The caller guarantees id
// uniqueness (UUIDs).
func (c *correlator) add(id string) *pendingRequest {
	p := &pendingRequest{id: id, ch: make(chan wsResult, 1)}
	c.mu.Lock()
	c.pending[id] = p
	c.mu.Unlock()
	return p
}

// arm attaches the timeout timer to the pending request under the lock. If
// the request already resolved (a tiny timeout can fire before arm runs) the
// timer is stopped instead.
func (c *correlator) arm(id string, timer *time.Timer) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		p.timer = timer
	}
	c.mu.Unlock()

	if !ok {
		timer.Stop()
	}
}

// resolve completes the request registered under id and reports whether such
// a request existed. Late replies for ids that already timed out return false
// and are dropped by the caller.
func (c *correlator) resolve(id string, res wsResult) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	var timer *time.Timer
	if ok {
		delete(c.pending, id)
		timer = p.timer
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	if timer != nil {
		timer.Stop()
	}
	p.ch <- res
	return true
}

// remove drops a pending request without delivering a result; used when the
// waiter gave up (context cancelled).
func (c *correlator) remove(id string) {
	c.mu.Lock()
	p, ok := c.pending[id]
	var timer *time.Timer
	if ok {
		delete(c.pending, id)
		timer = p.timer
	}
	c.mu.Unlock()

	if ok && timer != nil {
		timer.Stop()
	}
}

// failAll force-resolves every pending request with err. Called when the
// connection drops so no waiter is left hanging. Timers are collected under
// the lock so a concurrent arm cannot slip a write in between.
func (c *correlator) failAll(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]*pendingRequest)
	timers := make([]*time.Timer, 0, len(pending))
	for _, p := range pending {
		if p.timer != nil {
			timers = append(timers, p.timer)
		}
	}
	c.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	for _, p := range pending {
		p.ch <- wsResult{err: err}
	}
}

// count returns the number of in-flight requests.
func (c *correlator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
