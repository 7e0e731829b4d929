package upcheck

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultDelay      = 10 * time.Second
	DefaultTimeout    = 2 * time.Second
	DefaultFailCount  = 2
	DefaultBufferSize = 1000
)

// DefaultSend is the request sent when an upstream configures no send
// lines of its own.
var DefaultSend = []string{"GET / HTTP/1.0"}

// UpstreamConfig is the probe configuration shared by every peer of one
// upstream group. It is immutable once the registry is built.
type UpstreamConfig struct {
	// Name identifies the upstream group.
	Name string

	// Enabled gates health checking for the whole group. Peers of a
	// disabled group are never probed and always report up.
	Enabled bool

	// Delay is the interval between probes of a single peer.
	Delay time.Duration

	// Timeout bounds one probe attempt, connect included.
	Timeout time.Duration

	// FailCount is how many consecutive good or bad results it takes
	// to flip the externally visible verdict.
	FailCount int

	// Send is the raw request written to the peer.
	Send []byte

	// Expected is the exact body a healthy response must carry.
	// Nil means any 200 response passes with no body check.
	Expected []byte

	// BufferSize is the receive buffer capacity, headers plus body.
	BufferSize int
}

// buildSend joins request lines with CRLF and terminates the request
// with a blank line, the same shape the probe speaks on the wire.
func buildSend(lines []string) []byte {
	return []byte(strings.Join(lines, "\r\n") + "\r\n\r\n")
}

// staleAfter is the silence window past which this group's lease holder
// is presumed dead and may be superseded.
func (c *UpstreamConfig) staleAfter() time.Duration {
	return 3 * (c.Delay + c.Timeout)
}

// FileConfig is the user-facing JSON configuration for one worker
// process.
type FileConfig struct {
	WorkerID    string               `json:"workerId"`
	NATS        NATSFileConfig       `json:"nats,omitempty"`
	StatusAddr  string               `json:"statusAddr,omitempty"`
	MetricsAddr string               `json:"metricsAddr,omitempty"`
	Upstreams   []UpstreamFileConfig `json:"upstreams"`
}

// NATSFileConfig contains the connection settings for the shared status
// store. Leaving Servers empty keeps the worker on the in-process
// memory store.
type NATSFileConfig struct {
	Servers     []string `json:"servers,omitempty"`
	Credentials string   `json:"credentials,omitempty"`
	Bucket      string   `json:"bucket,omitempty"`
}

// UpstreamFileConfig describes one upstream group and its peers.
type UpstreamFileConfig struct {
	Name string `json:"name"`

	// DelayMs enables checking for the group. Zero leaves the group
	// unchecked.
	DelayMs     int64    `json:"delayMs,omitempty"`
	TimeoutMs   int64    `json:"timeoutMs,omitempty"`
	FailCount   int      `json:"failcount,omitempty"`
	Send        []string `json:"send,omitempty"`
	Expected    *string  `json:"expected,omitempty"`
	BufferBytes int      `json:"bufferBytes,omitempty"`
	Peers       []string `json:"peers"`
}

// LoadConfigFromFile loads configuration from a JSON file.
func LoadConfigFromFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// WriteConfigToFile writes the configuration to a JSON file.
func WriteConfigToFile(cfg *FileConfig, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate validates the configuration.
func (c *FileConfig) Validate() error {
	if c.WorkerID == "" {
		return fmt.Errorf("workerId is required")
	}
	if len(c.Upstreams) == 0 {
		return fmt.Errorf("at least one upstream is required")
	}

	seen := make(map[string]bool, len(c.Upstreams))
	for i := range c.Upstreams {
		u := &c.Upstreams[i]
		if u.Name == "" {
			return fmt.Errorf("upstream %d: name is required", i)
		}
		if seen[u.Name] {
			return fmt.Errorf("upstream %q: duplicate name", u.Name)
		}
		seen[u.Name] = true
		if u.DelayMs < 0 {
			return fmt.Errorf("upstream %q: delayMs must not be negative", u.Name)
		}
		if u.TimeoutMs < 0 {
			return fmt.Errorf("upstream %q: timeoutMs must not be negative", u.Name)
		}
		if u.FailCount < 0 {
			return fmt.Errorf("upstream %q: failcount must not be negative", u.Name)
		}
		if u.BufferBytes < 0 {
			return fmt.Errorf("upstream %q: bufferBytes must not be negative", u.Name)
		}
		if len(u.Peers) == 0 {
			return fmt.Errorf("upstream %q: at least one peer is required", u.Name)
		}
		for _, addr := range u.Peers {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				return fmt.Errorf("upstream %q: peer %q is not a host:port address: %w", u.Name, addr, err)
			}
		}
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *FileConfig) ApplyDefaults() {
	if c.WorkerID == "" {
		if host, err := os.Hostname(); err == nil {
			c.WorkerID = host
		}
	}
	for i := range c.Upstreams {
		u := &c.Upstreams[i]
		if u.DelayMs == 0 {
			// No delay means the group stays unchecked; nothing else
			// to default.
			continue
		}
		if u.TimeoutMs == 0 {
			u.TimeoutMs = int64(DefaultTimeout / time.Millisecond)
		}
		if u.FailCount == 0 {
			u.FailCount = DefaultFailCount
		}
		if len(u.Send) == 0 {
			u.Send = append([]string(nil), DefaultSend...)
		}
		if u.BufferBytes == 0 {
			u.BufferBytes = DefaultBufferSize
		}
	}
}

// ToUpstreamConfig converts one upstream's file settings to the
// immutable form the registry holds.
func (u *UpstreamFileConfig) ToUpstreamConfig() *UpstreamConfig {
	cfg := &UpstreamConfig{
		Name:       u.Name,
		Enabled:    u.DelayMs > 0,
		Delay:      time.Duration(u.DelayMs) * time.Millisecond,
		Timeout:    time.Duration(u.TimeoutMs) * time.Millisecond,
		FailCount:  u.FailCount,
		BufferSize: u.BufferBytes,
	}
	if cfg.Enabled {
		cfg.Send = buildSend(u.Send)
	}
	if u.Expected != nil {
		cfg.Expected = []byte(*u.Expected)
	}
	return cfg
}

// NewDefaultFileConfig creates a new FileConfig for the given worker ID
// with default values applied.
func NewDefaultFileConfig(workerID string) *FileConfig {
	cfg := &FileConfig{WorkerID: workerID}
	cfg.ApplyDefaults()
	return cfg
}

// loggerOrDefault returns l, or slog.Default when l is nil.
func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
