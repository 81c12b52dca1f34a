package nfcagent

// Reader represents an NFC reader attached to the agent.
type Reader struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"` // "picc" for contactless readers, "sam" for SAM slots
}

// Card represents a card as reported by the agent.
type Card struct {
	UID         string `json:"uid"`
	ATR         string `json:"atr,omitempty"`
	Type        string `json:"type,omitempty"`        // e.g., "NTAG213", "NTAG215", "NTAG216", "MIFARE Classic"
	Protocol    string `json:"protocol,omitempty"`    // Short protocol: "NFC-A", "NFC-V"
	ProtocolISO string `json:"protocolISO,omitempty"` // Full ISO protocol: "ISO 14443-3A", "ISO 15693"
	Size        int    `json:"size,omitempty"`        // Memory size in bytes
	Writable    bool   `json:"writable,omitempty"`    // Whether the tag is writable
	URL         string `json:"url,omitempty"`         // URL from first NDEF record (if URI record)
	Data        string `json:"data,omitempty"`        // NDEF data read from the tag (if available)
	DataType    string `json:"dataType,omitempty"`    // Type of data: "text", "json", "binary", or "unknown"
}

// NDEFRecord is a single NDEF record for write_records requests.
type NDEFRecord struct {
	Type string `json:"type"`           // "text", "url", "json", "binary", "openprinttag"
	Data string `json:"data"`           // Record payload (base64 for "binary")
	Lang string `json:"lang,omitempty"` // Language code for text records (default "en")
}

// WriteRequest is the body of a write-card operation.
type WriteRequest struct {
	Data     string `json:"data"`
	DataType string `json:"dataType,omitempty"` // "text", "json", "url", "binary", "openprinttag"
	URL      string `json:"url,omitempty"`      // Optional companion URL record
}

// AgentVersion describes the agent build.
type AgentVersion struct {
	Version         string `json:"version"`
	BuildTime       string `json:"buildTime"`
	GitCommit       string `json:"gitCommit"`
	UpdateAvailable bool   `json:"updateAvailable,omitempty"`
}

// Health describes the agent's current health.
type Health struct {
	Status      string  `json:"status"`
	Uptime      float64 `json:"uptime,omitempty"` // Seconds since agent start
	ReaderCount int     `json:"readerCount"`
}

// MifareBlock is one 16-byte MIFARE Classic block, hex encoded.
type MifareBlock struct {
	Block int    `json:"block"`
	Data  string `json:"data"`
}

// UltralightPage is one 4-byte MIFARE Ultralight page, hex encoded.
type UltralightPage struct {
	Page int    `json:"page"`
	Data string `json:"data"`
}

// DerivedKey is the result of a derive-key request.
type DerivedKey struct {
	Key string `json:"key"`
}

// SupportedReader describes a reader model from the agent's compatibility
// catalog.
type SupportedReader struct {
	Name          string           `json:"name"`
	Manufacturer  string           `json:"manufacturer"`
	Description   string           `json:"description"`
	SupportedTags []string         `json:"supportedTags"`
	Capabilities  ReaderCapability `json:"capabilities"`
	Limitations   []string         `json:"limitations"`
}

// ReaderCapability describes what operations a reader model can perform.
type ReaderCapability struct {
	Read      bool `json:"read"`
	Write     bool `json:"write"`
	NDEF      bool `json:"ndef"`
	Display   bool `json:"display,omitempty"`
	Bluetooth bool `json:"bluetooth,omitempty"`
}
