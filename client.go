package nfcagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/SimplyPrint/nfc-agent-go/internal/logging"
)

// Client talks to the agent's REST API. It is safe for concurrent use.
//
// Every call takes a context; the configured request timeout applies on top
// of whatever deadline the context carries.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// NewClient creates a REST client for the agent.
func NewClient(opts ...Option) *Client {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL: cfg.baseURL(),
		timeout: cfg.timeout,
		http:    httpClient,
	}
}

// BaseURL returns the agent base URL this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close releases idle connections held by the underlying transport.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// IsConnected reports whether the agent is reachable and healthy. It never
// returns an error; any failure (connection refused, non-2xx) reads as false.
func (c *Client) IsConnected(ctx context.Context) bool {
	var readers []Reader
	return c.get(ctx, "/v1/readers", &readers) == nil
}

// GetReaders lists the readers currently attached to the agent.
func (c *Client) GetReaders(ctx context.Context) ([]Reader, error) {
	var readers []Reader
	if err := c.get(ctx, "/v1/readers", &readers); err != nil {
		return nil, err
	}
	return readers, nil
}

// ReadCard reads the card currently on the given reader. When no card is
// present the agent answers with an error; check it with IsNoCard.
func (c *Client) ReadCard(ctx context.Context, reader int) (*Card, error) {
	var card Card
	if err := c.get(ctx, readerPath(reader, "card"), &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// WriteCard writes NDEF data to the card on the given reader.
func (c *Client) WriteCard(ctx context.Context, reader int, req WriteRequest) error {
	if req.DataType == "" {
		req.DataType = "text"
	}
	return c.post(ctx, readerPath(reader, "card"), req, nil)
}

// EraseCard erases the NDEF contents of the card on the given reader.
func (c *Client) EraseCard(ctx context.Context, reader int) error {
	return c.post(ctx, readerPath(reader, "erase"), struct{}{}, nil)
}

// LockCard permanently write-protects the card on the given reader.
// Irreversible; the agent requires the explicit confirm flag.
func (c *Client) LockCard(ctx context.Context, reader int) error {
	body := struct {
		Confirm bool `json:"confirm"`
	}{Confirm: true}
	return c.post(ctx, readerPath(reader, "lock"), body, nil)
}

// SetPassword password-protects an NTAG-family card. password is 8 hex
// characters, pack is 4; protection starts at startPage.
func (c *Client) SetPassword(ctx context.Context, reader int, password, pack string, startPage int) error {
	body := struct {
		Password  string `json:"password"`
		Pack      string `json:"pack"`
		StartPage int    `json:"startPage"`
	}{Password: password, Pack: pack, StartPage: startPage}
	return c.post(ctx, readerPath(reader, "password"), body, nil)
}

// RemovePassword removes password protection set by SetPassword.
func (c *Client) RemovePassword(ctx context.Context, reader int, password string) error {
	body := struct {
		Password string `json:"password"`
	}{Password: password}
	return c.do(ctx, http.MethodDelete, readerPath(reader, "password"), body, nil)
}

// WriteRecords writes multiple NDEF records in one pass.
func (c *Client) WriteRecords(ctx context.Context, reader int, records []NDEFRecord) error {
	body := struct {
		Records []NDEFRecord `json:"records"`
	}{Records: records}
	return c.post(ctx, readerPath(reader, "records"), body, nil)
}

// MifareAuth selects the authentication key for MIFARE Classic operations.
// The zero value lets the agent fall back to the default transport key.
type MifareAuth struct {
	Key     string // 12 hex characters (6 bytes)
	KeyType string // "A" or "B"
}

// ReadMifareBlock reads one 16-byte MIFARE Classic block. auth may be nil.
func (c *Client) ReadMifareBlock(ctx context.Context, reader, block int, auth *MifareAuth) (*MifareBlock, error) {
	path := readerPath(reader, "mifare/"+strconv.Itoa(block))
	if auth != nil {
		path += "?key=" + auth.Key + "&keyType=" + auth.KeyType
	}
	var out MifareBlock
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WriteMifareBlock writes one 16-byte MIFARE Classic block. data is 32 hex
// characters; auth may be nil.
func (c *Client) WriteMifareBlock(ctx context.Context, reader, block int, data string, auth *MifareAuth) error {
	body := struct {
		Data    string `json:"data"`
		Key     string `json:"key,omitempty"`
		KeyType string `json:"keyType,omitempty"`
	}{Data: data}
	if auth != nil {
		body.Key = auth.Key
		body.KeyType = auth.KeyType
	}
	return c.post(ctx, readerPath(reader, "mifare/"+strconv.Itoa(block)), body, nil)
}

// DeriveUIDKeyAES asks the agent to derive a per-card key from the card UID
// and the given master key (AES-CMAC, computed agent-side).
func (c *Client) DeriveUIDKeyAES(ctx context.Context, reader int, masterKey string) (*DerivedKey, error) {
	body := struct {
		MasterKey string `json:"masterKey"`
	}{MasterKey: masterKey}
	var out DerivedKey
	if err := c.post(ctx, readerPath(reader, "mifare/derive-key"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadUltralightPage reads one 4-byte MIFARE Ultralight page.
func (c *Client) ReadUltralightPage(ctx context.Context, reader, page int) (*UltralightPage, error) {
	var out UltralightPage
	if err := c.get(ctx, readerPath(reader, "ultralight/"+strconv.Itoa(page)), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WriteUltralightPage writes one 4-byte MIFARE Ultralight page. data is 8 hex
// characters.
func (c *Client) WriteUltralightPage(ctx context.Context, reader, page int, data string) error {
	body := struct {
		Data string `json:"data"`
	}{Data: data}
	return c.post(ctx, readerPath(reader, "ultralight/"+strconv.Itoa(page)), body, nil)
}

// SupportedReaders returns the agent's catalog of known-to-work readers.
func (c *Client) SupportedReaders(ctx context.Context) ([]SupportedReader, error) {
	var out struct {
		Readers []SupportedReader `json:"readers"`
	}
	if err := c.get(ctx, "/v1/supported-readers", &out); err != nil {
		return nil, err
	}
	return out.Readers, nil
}

// GetVersion returns the agent's build information.
func (c *Client) GetVersion(ctx context.Context) (*AgentVersion, error) {
	var v AgentVersion
	if err := c.get(ctx, "/v1/version", &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Health returns the agent's health snapshot.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.get(ctx, "/v1/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// PollCard creates a card poller for the given reader over this client.
// Pass 0 to use the default interval. The poller is not started.
func (c *Client) PollCard(reader int, interval time.Duration) *CardPoller {
	return NewCardPoller(c, reader, interval)
}

func readerPath(reader int, suffix string) string {
	return "/v1/readers/" + strconv.Itoa(reader) + "/" + suffix
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	op := method + " " + path

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logging.Debug(logging.CatHTTP, "Request failed", map[string]any{
			"op":    op,
			"error": err.Error(),
		})
		return &ConnectionError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(op, resp)
	}

	if out == nil {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// errorFromResponse turns a non-2xx agent response into a CardError carrying
// the agent's error message.
func errorFromResponse(op string, resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return &CardError{Message: body.Error}
	}
	return &CardError{Message: fmt.Sprintf("%s: agent returned status %d", op, resp.StatusCode)}
}
