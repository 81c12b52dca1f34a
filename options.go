package nfcagent

import (
	"net/http"
	"os"
	"strconv"
	"time"
)

const (
	// DefaultPort is the port the agent listens on.
	DefaultPort = 32145
	// DefaultHost is the host the agent binds to.
	DefaultHost = "127.0.0.1"

	// DefaultTimeout bounds every request, HTTP and WebSocket alike.
	DefaultTimeout = 5 * time.Second
	// DefaultPollInterval is the card poller's cycle interval.
	DefaultPollInterval = 500 * time.Millisecond
)

type config struct {
	host          string
	port          int
	secure        bool
	timeout       time.Duration
	autoReconnect bool
	reconnect     reconnectPolicy
	httpClient    *http.Client
	socketURL     string
}

// defaultConfig reads defaults from the same environment variables the agent
// documents, so client and agent can be repointed together.
func defaultConfig() config {
	cfg := config{
		host:          DefaultHost,
		port:          DefaultPort,
		timeout:       DefaultTimeout,
		autoReconnect: true,
		reconnect:     defaultReconnectPolicy(),
	}

	if host := os.Getenv("NFC_AGENT_HOST"); host != "" {
		cfg.host = host
	}
	if portStr := os.Getenv("NFC_AGENT_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 && port < 65536 {
			cfg.port = port
		}
	}

	return cfg
}

// baseURL returns the agent's HTTP base URL, e.g. "http://127.0.0.1:32145".
func (c *config) baseURL() string {
	scheme := "http"
	if c.secure {
		scheme = "https"
	}
	return scheme + "://" + c.host + ":" + strconv.Itoa(c.port)
}

// wsURL returns the agent's WebSocket endpoint, e.g. "ws://127.0.0.1:32145/v1/ws".
func (c *config) wsURL() string {
	if c.socketURL != "" {
		return c.socketURL
	}
	scheme := "ws"
	if c.secure {
		scheme = "wss"
	}
	return scheme + "://" + c.host + ":" + strconv.Itoa(c.port) + "/v1/ws"
}

// Option configures a Client or Socket.
type Option func(*config)

// WithHost overrides the agent host.
func WithHost(host string) Option {
	return func(c *config) { c.host = host }
}

// WithPort overrides the agent port.
func WithPort(port int) Option {
	return func(c *config) { c.port = port }
}

// WithSecure selects https/wss transport.
func WithSecure(secure bool) Option {
	return func(c *config) { c.secure = secure }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) { c.timeout = timeout }
}

// WithAutoReconnect enables or disables automatic reconnection after an
// unintentional WebSocket drop. Enabled by default.
func WithAutoReconnect(enabled bool) Option {
	return func(c *config) { c.autoReconnect = enabled }
}

// WithReconnectBackoff sets the reconnect delay schedule. The delay starts at
// initial, is multiplied by multiplier after each failed attempt, and never
// exceeds max.
func WithReconnectBackoff(initial, max time.Duration, multiplier float64) Option {
	return func(c *config) {
		c.reconnect.Initial = initial
		c.reconnect.Max = max
		c.reconnect.Multiplier = multiplier
	}
}

// WithSocketURL overrides the full WebSocket endpoint URL, bypassing the
// host/port/secure settings. Useful for tunnels and tests.
func WithSocketURL(url string) Option {
	return func(c *config) { c.socketURL = url }
}

// WithHTTPClient supplies a custom *http.Client, e.g. for TLS configuration.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}
