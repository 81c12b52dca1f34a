package nfcagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SimplyPrint/nfc-agent-go/internal/logging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second
	// Time allowed to read the next message from the peer; the agent pings
	// every 54 seconds, so anything past this means the connection is dead
	pongWait = 60 * time.Second
	// Send this many pings ourselves to keep middleboxes from idling us out
	pingPeriod = 54 * time.Second
	// Maximum inbound message size (matches the agent's limit)
	maxMessageSize = 512 * 1024
	// Outbound queue depth per connection
	sendBuffer = 256
)

// WSMessage is the wire frame shared by requests, replies and push events.
// Replies echo the request ID; push events carry no ID.
type WSMessage struct {
	Type    string          `json:"type"`              // Method or event kind
	ID      string          `json:"id,omitempty"`      // Request ID for request/response matching
	Payload json.RawMessage `json:"payload,omitempty"` // Message payload
	Error   string          `json:"error,omitempty"`   // Error message if any
}

// ConnState is the WebSocket connection lifecycle state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Socket is a persistent WebSocket client for the agent. It multiplexes
// request/response calls over one connection and delivers push events to
// registered handlers. Safe for concurrent use; requests issued concurrently
// are correlated independently and never interfere.
//
// With auto-reconnect enabled (the default), an unintentional drop schedules
// reconnect attempts with exponential backoff. Requests in flight when the
// connection drops fail with *ConnectionError; requests issued while
// disconnected fail immediately rather than queue.
type Socket struct {
	url           string
	timeout       time.Duration
	autoReconnect bool
	dialer        *websocket.Dialer

	registry   *observerRegistry
	correlator *correlator
	backoff    *backoff

	mu             sync.Mutex
	state          ConnState
	conn           *websocket.Conn
	send           chan []byte
	reconnectTimer *time.Timer
}

// NewSocket creates a WebSocket client for the agent. The socket starts
// disconnected; call Connect.
func NewSocket(opts ...Option) *Socket {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Socket{
		url:           cfg.wsURL(),
		timeout:       cfg.timeout,
		autoReconnect: cfg.autoReconnect,
		dialer:        websocket.DefaultDialer,
		registry:      newObserverRegistry(),
		correlator:    newCorrelator(),
		backoff:       newBackoff(cfg.reconnect),
	}
}

// URL returns the WebSocket endpoint this socket dials.
func (s *Socket) URL() string {
	return s.url
}

// State returns the current connection state.
func (s *Socket) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the connection is currently open.
func (s *Socket) IsConnected() bool {
	return s.State() == StateConnected
}

// Connect opens the connection. No-op if already connected or connecting.
// A successful connect resets the reconnect backoff and fires the connected
// event. A failed connect does not schedule retries; retries only follow
// unintentional drops of an established connection.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnected || s.state == StateConnecting {
		s.mu.Unlock()
		return nil
	}
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		logging.Warn(logging.CatWebSocket, "Connect failed", map[string]any{
			"url":   s.url,
			"error": err.Error(),
		})
		return &ConnectionError{Op: "connect", Err: err}
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	s.mu.Lock()
	if s.state != StateConnecting {
		// Disconnect raced the dial; drop the fresh connection
		s.state = StateDisconnected
		s.mu.Unlock()
		conn.Close()
		return &ConnectionError{Op: "connect", Err: errors.New("closed during connect")}
	}
	s.conn = conn
	s.send = make(chan []byte, sendBuffer)
	s.state = StateConnected
	send := s.send
	s.mu.Unlock()

	s.backoff.Reset()

	go s.writePump(conn, send)
	go s.readPump(conn)

	logging.Info(logging.CatWebSocket, "Connected", map[string]any{"url": s.url})
	s.registry.dispatch(ConnectedEvent{})
	return nil
}

// Disconnect closes the connection deliberately. Pending requests fail with
// *ConnectionError; no reconnect is scheduled. Idempotent.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.state == StateDisconnected || s.state == StateClosing {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.state = StateClosing
	s.mu.Unlock()

	if conn == nil {
		// Still dialing; the connect path sees Closing and bails out
		return
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	conn.Close() // unblocks readPump, which finishes the teardown
}

// readPump owns inbound frames for one connection. Frames are handled
// strictly sequentially so push events keep their order relative to replies.
func (s *Socket) readPump(conn *websocket.Conn) {
	defer logging.RecoverAndLog("WebSocket readPump", false)
	defer s.teardown(conn)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warn(logging.CatWebSocket, "Connection lost", map[string]any{
					"error": err.Error(),
				})
				logging.CaptureError(err, "websocket", map[string]any{"url": s.url})
			} else {
				logging.Debug(logging.CatWebSocket, "Connection closed", nil)
			}
			return
		}
		s.handleMessage(message)
	}
}

// writePump owns outbound frames for one connection and keeps it alive with
// pings. It exits when the send channel closes (teardown) or a write fails.
func (s *Socket) writePump(conn *websocket.Conn, send chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer logging.RecoverAndLog("WebSocket writePump", false)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// teardown moves the socket to Disconnected exactly once per connection,
// fails every pending request, fires the disconnected event, and schedules a
// reconnect if the drop was not deliberate.
func (s *Socket) teardown(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	intentional := s.state == StateClosing
	s.conn = nil
	close(s.send)
	s.send = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	conn.Close()

	s.correlator.failAll(&ConnectionError{Op: "request", Err: errors.New("connection closed")})
	s.registry.dispatch(DisconnectedEvent{})

	if !intentional && s.autoReconnect {
		s.scheduleReconnect()
	}
}

// scheduleReconnect arms a timer for the next reconnect attempt, advancing
// the backoff schedule. A failed attempt schedules the next one; a successful
// Connect resets the schedule.
func (s *Socket) scheduleReconnect() {
	delay := s.backoff.Next()
	logging.Info(logging.CatWebSocket, "Reconnecting", map[string]any{
		"delay":   delay.String(),
		"attempt": s.backoff.Attempt(),
	})

	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.reconnectTimer = time.AfterFunc(delay, func() {
		defer logging.RecoverAndLog("WebSocket reconnect", false)
		if err := s.Connect(context.Background()); err != nil {
			s.mu.Lock()
			retry := s.state == StateDisconnected && s.autoReconnect
			s.mu.Unlock()
			if retry {
				s.scheduleReconnect()
			}
		}
	})
	s.mu.Unlock()
}

// handleMessage classifies one inbound frame. A frame with an id matching a
// pending request is its reply; everything else is treated as a push event.
// Malformed frames are dropped without closing the connection.
func (s *Socket) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logging.Debug(logging.CatWebSocket, "Dropping malformed frame", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if msg.ID != "" {
		res := wsResult{payload: msg.Payload}
		if msg.Error != "" {
			res = wsResult{err: &CardError{Message: msg.Error}}
		}
		if !s.correlator.resolve(msg.ID, res) {
			// Reply for a request that already timed out or was never ours
			logging.Debug(logging.CatWebSocket, "Dropping stale reply", map[string]any{
				"id":   msg.ID,
				"type": msg.Type,
			})
		}
		return
	}

	s.dispatchEvent(msg)
}

func (s *Socket) dispatchEvent(msg WSMessage) {
	switch EventKind(msg.Type) {
	case EventCardDetected:
		var ev CardDetectedEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			logging.Debug(logging.CatWebSocket, "Dropping malformed card_detected payload", map[string]any{
				"error": err.Error(),
			})
			return
		}
		logging.Info(logging.CatCard, "Card detected", map[string]any{
			"reader": ev.Reader,
			"uid":    ev.Card.UID,
		})
		s.registry.dispatch(ev)
	case EventCardRemoved:
		var ev CardRemovedEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			logging.Debug(logging.CatWebSocket, "Dropping malformed card_removed payload", map[string]any{
				"error": err.Error(),
			})
			return
		}
		logging.Info(logging.CatCard, "Card removed", map[string]any{
			"reader": ev.Reader,
		})
		s.registry.dispatch(ev)
	default:
		// Unknown event kinds are ignored for forward compatibility
		logging.Debug(logging.CatWebSocket, "Ignoring unknown event", map[string]any{
			"type": msg.Type,
		})
	}
}

// request issues one correlated request and waits for its reply, the request
// timeout, context cancellation, or connection teardown, whichever comes
// first. Requests never queue: with no open connection it fails immediately.
func (s *Socket) request(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: encode payload: %w", method, err)
		}
		raw = data
	}

	id := uuid.NewString()
	frame, err := json.Marshal(WSMessage{Type: method, ID: id, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("%s: encode frame: %w", method, err)
	}

	s.mu.Lock()
	if s.state != StateConnected || s.send == nil {
		s.mu.Unlock()
		return nil, &ConnectionError{Op: method, Err: ErrNotConnected}
	}
	p := s.correlator.add(id)
	s.correlator.arm(id, time.AfterFunc(s.timeout, func() {
		s.correlator.resolve(id, wsResult{err: &TimeoutError{Op: method, Timeout: s.timeout}})
	}))
	var enqueued bool
	select {
	case s.send <- frame:
		enqueued = true
	default:
	}
	s.mu.Unlock()

	if !enqueued {
		s.correlator.remove(id)
		return nil, &ConnectionError{Op: method, Err: errors.New("send buffer full")}
	}

	select {
	case res := <-p.ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.payload, nil
	case <-ctx.Done():
		s.correlator.remove(id)
		return nil, ctx.Err()
	}
}

// call is request plus reply decoding. out may be nil when the reply payload
// doesn't matter.
func (s *Socket) call(ctx context.Context, method string, payload, out any) error {
	res, err := s.request(ctx, method, payload)
	if err != nil {
		return err
	}
	if out == nil || len(res) == 0 {
		return nil
	}
	if err := json.Unmarshal(res, out); err != nil {
		return fmt.Errorf("%s: decode reply: %w", method, err)
	}
	return nil
}

// readerRequest is the payload shared by all per-reader methods.
type readerRequest struct {
	ReaderIndex int `json:"readerIndex"`
}

// ListReaders lists the readers currently attached to the agent.
func (s *Socket) ListReaders(ctx context.Context) ([]Reader, error) {
	var readers []Reader
	if err := s.call(ctx, "list_readers", nil, &readers); err != nil {
		return nil, err
	}
	return readers, nil
}

// ReadCard reads the card currently on the given reader. When no card is
// present the agent answers with an error; check it with IsNoCard.
func (s *Socket) ReadCard(ctx context.Context, reader int) (*Card, error) {
	var card Card
	if err := s.call(ctx, "read_card", readerRequest{ReaderIndex: reader}, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// WriteCard writes NDEF data to the card on the given reader.
func (s *Socket) WriteCard(ctx context.Context, reader int, req WriteRequest) error {
	if req.DataType == "" {
		req.DataType = "text"
	}
	payload := struct {
		ReaderIndex int    `json:"readerIndex"`
		Data        string `json:"data"`
		DataType    string `json:"dataType"`
		URL         string `json:"url,omitempty"`
	}{reader, req.Data, req.DataType, req.URL}
	return s.call(ctx, "write_card", payload, nil)
}

// EraseCard erases the NDEF contents of the card on the given reader.
func (s *Socket) EraseCard(ctx context.Context, reader int) error {
	return s.call(ctx, "erase_card", readerRequest{ReaderIndex: reader}, nil)
}

// LockCard permanently write-protects the card on the given reader.
// Irreversible; the agent requires the explicit confirm flag.
func (s *Socket) LockCard(ctx context.Context, reader int) error {
	payload := struct {
		ReaderIndex int  `json:"readerIndex"`
		Confirm     bool `json:"confirm"`
	}{reader, true}
	return s.call(ctx, "lock_card", payload, nil)
}

// SetPassword password-protects an NTAG-family card. password is 8 hex
// characters, pack is 4; protection starts at startPage.
func (s *Socket) SetPassword(ctx context.Context, reader int, password, pack string, startPage int) error {
	payload := struct {
		ReaderIndex int    `json:"readerIndex"`
		Password    string `json:"password"`
		Pack        string `json:"pack"`
		StartPage   int    `json:"startPage"`
	}{reader, password, pack, startPage}
	return s.call(ctx, "set_password", payload, nil)
}

// RemovePassword removes password protection set by SetPassword.
func (s *Socket) RemovePassword(ctx context.Context, reader int, password string) error {
	payload := struct {
		ReaderIndex int    `json:"readerIndex"`
		Password    string `json:"password"`
	}{reader, password}
	return s.call(ctx, "remove_password", payload, nil)
}

// WriteRecords writes multiple NDEF records in one pass.
func (s *Socket) WriteRecords(ctx context.Context, reader int, records []NDEFRecord) error {
	payload := struct {
		ReaderIndex int          `json:"readerIndex"`
		Records     []NDEFRecord `json:"records"`
	}{reader, records}
	return s.call(ctx, "write_records", payload, nil)
}

// Subscribe asks the agent to watch the given reader and push card_detected /
// card_removed events over this connection. Pass 0 for the agent's default
// interval.
func (s *Socket) Subscribe(ctx context.Context, reader int, interval time.Duration) error {
	payload := struct {
		ReaderIndex int `json:"readerIndex"`
		IntervalMs  int `json:"intervalMs,omitempty"`
	}{reader, int(interval / time.Millisecond)}
	return s.call(ctx, "subscribe", payload, nil)
}

// Unsubscribe stops push events for the given reader.
func (s *Socket) Unsubscribe(ctx context.Context, reader int) error {
	return s.call(ctx, "unsubscribe", readerRequest{ReaderIndex: reader}, nil)
}

// SupportedReaders returns the agent's catalog of known-to-work readers.
func (s *Socket) SupportedReaders(ctx context.Context) ([]SupportedReader, error) {
	var out struct {
		Readers []SupportedReader `json:"readers"`
	}
	if err := s.call(ctx, "supported_readers", nil, &out); err != nil {
		return nil, err
	}
	return out.Readers, nil
}

// GetVersion returns the agent's build information.
func (s *Socket) GetVersion(ctx context.Context) (*AgentVersion, error) {
	var v AgentVersion
	if err := s.call(ctx, "version", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Health returns the agent's health snapshot.
func (s *Socket) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := s.call(ctx, "health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// On registers a handler for an event kind and returns its removal closure.
// Registration is purely additive and keeps insertion order; registering the
// same handler twice makes it fire twice.
func (s *Socket) On(kind EventKind, handler Handler) func() {
	return s.registry.add(kind, handler)
}

// OnCardDetected registers a typed handler for card_detected events.
func (s *Socket) OnCardDetected(fn func(CardDetectedEvent)) func() {
	return s.On(EventCardDetected, func(e Event) {
		if ev, ok := e.(CardDetectedEvent); ok {
			fn(ev)
		}
	})
}

// OnCardRemoved registers a typed handler for card_removed events.
func (s *Socket) OnCardRemoved(fn func(CardRemovedEvent)) func() {
	return s.On(EventCardRemoved, func(e Event) {
		if ev, ok := e.(CardRemovedEvent); ok {
			fn(ev)
		}
	})
}

// OnConnected registers a handler fired after each successful connect.
func (s *Socket) OnConnected(fn func()) func() {
	return s.On(EventConnected, func(Event) { fn() })
}

// OnDisconnected registers a handler fired after each teardown.
func (s *Socket) OnDisconnected(fn func()) func() {
	return s.On(EventDisconnected, func(Event) { fn() })
}

// PollCard creates a card poller for the given reader over this socket.
// Pass 0 to use the default interval. The poller is not started.
func (s *Socket) PollCard(reader int, interval time.Duration) *CardPoller {
	return NewCardPoller(s, reader, interval)
}
