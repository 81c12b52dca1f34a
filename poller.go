package nfcagent

import (
	"context"
	"sync"
	"time"

	"github.com/SimplyPrint/nfc-agent-go/internal/logging"
)

// CardReader is the read-card primitive the poller cycles against. Both
// Client and Socket implement it.
type CardReader interface {
	ReadCard(ctx context.Context, reader int) (*Card, error)
}

// CardPoller turns the stateless read-card primitive into edge-triggered
// events: one card event when a new UID shows up, one removed event when the
// card goes away. The "no card present" answer from the agent is a normal
// state, never an error; only unexpected failures (agent unreachable,
// hardware fault) reach the error handlers, and those never stop the cycle.
//
// At most one read cycle is in flight per poller; a cycle that outlasts the
// interval simply delays the next tick instead of overlapping it.
type CardPoller struct {
	reader   CardReader
	index    int
	interval time.Duration

	registry *observerRegistry

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	lastUID  string
}

// pollerErrorEvent carries a read failure to error handlers; internal to the
// poller's registry.
type pollerErrorEvent struct {
	err error
}

func (pollerErrorEvent) EventKind() EventKind { return "poll_error" }

// NewCardPoller creates a poller over any CardReader. Pass 0 for interval to
// use the default. The poller starts stopped.
func NewCardPoller(reader CardReader, index int, interval time.Duration) *CardPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &CardPoller{
		reader:   reader,
		index:    index,
		interval: interval,
		registry: newObserverRegistry(),
	}
}

// OnCard registers a handler for card arrivals; returns a removal closure.
func (p *CardPoller) OnCard(fn func(*Card)) func() {
	return p.registry.add(EventCardDetected, func(e Event) {
		if ev, ok := e.(CardDetectedEvent); ok {
			card := ev.Card
			fn(&card)
		}
	})
}

// OnRemoved registers a handler for card removals; returns a removal closure.
func (p *CardPoller) OnRemoved(fn func()) func() {
	return p.registry.add(EventCardRemoved, func(Event) { fn() })
}

// OnError registers a handler for unexpected read failures; returns a removal
// closure.
func (p *CardPoller) OnError(fn func(error)) func() {
	return p.registry.add("poll_error", func(e Event) {
		if ev, ok := e.(pollerErrorEvent); ok {
			fn(ev.err)
		}
	})
}

// IsRunning reports whether the polling loop is active.
func (p *CardPoller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start begins the polling loop. Idempotent: calling Start on a running
// poller leaves the existing loop in place.
func (p *CardPoller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})

	go p.loop(p.stopCh)
}

// Stop cancels the polling loop and clears the last-seen card, so a restart
// reports the current card as a fresh arrival. Idempotent. A read in flight
// is abandoned; its outcome is discarded.
func (p *CardPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.stopCh)
	p.stopCh = nil
	p.lastUID = ""
}

// loop runs one cycle immediately, then on every tick until stopped. The
// loop body is sequential, so cycles never overlap.
func (p *CardPoller) loop(stopCh chan struct{}) {
	defer logging.RecoverAndLog("card poller", false)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.cycle(stopCh)
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.cycle(stopCh)
		}
	}
}

// cycle performs one read and applies the edge-detection rules.
func (p *CardPoller) cycle(stopCh chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		// Abandon the read if Stop arrives mid-call
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	card, err := p.reader.ReadCard(ctx, p.index)

	select {
	case <-stopCh:
		// Stopped while reading; discard whatever came back
		return
	default:
	}

	switch {
	case err == nil:
		p.mu.Lock()
		isNew := card.UID != p.lastUID
		p.lastUID = card.UID
		p.mu.Unlock()
		if isNew {
			logging.Info(logging.CatPoller, "Card detected", map[string]any{
				"reader": p.index,
				"uid":    card.UID,
			})
			p.registry.dispatch(CardDetectedEvent{Reader: p.index, Card: *card})
		}

	case IsNoCard(err):
		p.mu.Lock()
		hadCard := p.lastUID != ""
		p.lastUID = ""
		p.mu.Unlock()
		if hadCard {
			logging.Info(logging.CatPoller, "Card removed", map[string]any{
				"reader": p.index,
			})
			p.registry.dispatch(CardRemovedEvent{Reader: p.index})
		}

	default:
		// lastUID deliberately unchanged: a transient failure is not a removal
		logging.Warn(logging.CatPoller, "Read failed", map[string]any{
			"reader": p.index,
			"error":  err.Error(),
		})
		p.registry.dispatch(pollerErrorEvent{err: err})
	}
}
