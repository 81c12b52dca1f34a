package nfcagent

import (
	"sync"

	"github.com/SimplyPrint/nfc-agent-go/internal/logging"
)

// EventKind identifies a push event delivered over the WebSocket connection.
type EventKind string

const (
	// EventCardDetected fires when a subscribed reader sees a new card.
	EventCardDetected EventKind = "card_detected"
	// EventCardRemoved fires when the card leaves a subscribed reader.
	EventCardRemoved EventKind = "card_removed"
	// EventConnected and EventDisconnected are synthesized locally on
	// connection lifecycle changes; the agent never sends them.
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
)

// Event is a push event. Concrete types: CardDetectedEvent, CardRemovedEvent,
// ConnectedEvent, DisconnectedEvent.
type Event interface {
	EventKind() EventKind
}

// CardDetectedEvent reports a new card on a subscribed reader.
type CardDetectedEvent struct {
	Reader int  `json:"reader"`
	Card   Card `json:"card"`
}

func (CardDetectedEvent) EventKind() EventKind { return EventCardDetected }

// CardRemovedEvent reports that the card left a subscribed reader.
type CardRemovedEvent struct {
	Reader int `json:"reader"`
}

func (CardRemovedEvent) EventKind() EventKind { return EventCardRemoved }

// ConnectedEvent fires after the WebSocket connection is established.
type ConnectedEvent struct{}

func (ConnectedEvent) EventKind() EventKind { return EventConnected }

// DisconnectedEvent fires after the connection is torn down, deliberately or
// not.
type DisconnectedEvent struct{}

func (DisconnectedEvent) EventKind() EventKind { return EventDisconnected }

// Handler receives push events. Handlers run synchronously on the connection's
// message loop, in registration order; a slow handler delays later frames.
type Handler func(Event)

// observerRegistry maps event kinds to ordered handler lists. Registration is
// purely additive; the same handler may be registered twice and will fire
// twice. Removal goes through the closure returned by add.
type observerRegistry struct {
	mu     sync.Mutex
	nextID uint64
	byKind map[EventKind][]observer
}

type observer struct {
	id uint64
	fn Handler
}

func newObserverRegistry() *observerRegistry {
	return &observerRegistry{byKind: make(map[EventKind][]observer)}
}

// add registers fn for kind and returns a removal closure. Removing twice is
// a no-op.
func (r *observerRegistry) add(kind EventKind, fn Handler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.byKind[kind] = append(r.byKind[kind], observer{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		observers := r.byKind[kind]
		for i, o := range observers {
			if o.id == id {
				r.byKind[kind] = append(observers[:i:i], observers[i+1:]...)
				return
			}
		}
	}
}

// dispatch invokes every handler registered for the event's kind, in
// registration order. The handler list is copied before iteration so that
// handlers may register or remove observers mid-dispatch. A panicking handler
// is recorded but never stops the remaining handlers.
func (r *observerRegistry) dispatch(event Event) {
	r.mu.Lock()
	observers := make([]observer, len(r.byKind[event.EventKind()]))
	copy(observers, r.byKind[event.EventKind()])
	r.mu.Unlock()

	for _, o := range observers {
		invoke(o.fn, event)
	}
}

func invoke(fn Handler, event Event) {
	defer logging.RecoverAndLog("event handler", false)
	fn(event)
}
