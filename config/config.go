package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// UnmarshalJSON parses duration strings when configuration arrives via CUE.
func (d *Duration) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// JournalMode selects the journaling strategy of the underlying store.
//
// The value is forwarded verbatim to the engine; the bridge itself attaches
// no semantics to it beyond verifying that a file-backed store actually
// reports the requested mode after opening.
type JournalMode string

const (
	// JournalDelete is the engine default rollback journal.
	JournalDelete JournalMode = "delete"
	// JournalTruncate truncates the rollback journal instead of deleting it.
	JournalTruncate JournalMode = "truncate"
	// JournalPersist keeps the rollback journal file allocated.
	JournalPersist JournalMode = "persist"
	// JournalMemory keeps the rollback journal in memory.
	JournalMemory JournalMode = "memory"
	// JournalWAL enables the write-ahead log. This is the mode that lets
	// readers observe a consistent snapshot while the writer commits.
	JournalWAL JournalMode = "wal"
	// JournalOff disables journaling entirely.
	JournalOff JournalMode = "off"
)

// Valid reports whether the journal mode is one of the known values.
func (m JournalMode) Valid() bool {
	switch JournalMode(strings.ToLower(string(m))) {
	case "", JournalDelete, JournalTruncate, JournalPersist, JournalMemory, JournalWAL, JournalOff:
		return true
	}
	return false
}

// Connection describes how a single engine session is opened.
//
// All fields are forwarded into the engine layer; the bridge does not
// reinterpret them. An empty Path opens a private in-memory store.
type Connection struct {
	Path        string      `yaml:"path,omitempty" json:"path,omitempty"`
	JournalMode JournalMode `yaml:"journal_mode,omitempty" json:"journal_mode,omitempty"`
	BusyTimeout Duration    `yaml:"busy_timeout,omitempty" json:"busy_timeout,omitempty"`
	ReadOnly    bool        `yaml:"read_only,omitempty" json:"read_only,omitempty"`
	NoCreate    bool        `yaml:"no_create,omitempty" json:"no_create,omitempty"`
	ForeignKeys bool        `yaml:"foreign_keys,omitempty" json:"foreign_keys,omitempty"`
	CacheShared bool        `yaml:"cache_shared,omitempty" json:"cache_shared,omitempty"`
	Pragmas     []string    `yaml:"pragmas,omitempty" json:"pragmas,omitempty"`

	// QueueDepth bounds the per-connection job queue. Zero selects the
	// default depth. A full queue suspends the submitting goroutine until
	// the worker catches up.
	QueueDepth int `yaml:"queue_depth,omitempty" json:"queue_depth,omitempty"`
}

// Memory reports whether the connection targets an in-memory store.
func (c Connection) Memory() bool {
	return c.Path == "" || c.Path == ":memory:"
}

// Validate checks the connection settings for internal consistency.
func (c Connection) Validate() error {
	if !c.JournalMode.Valid() {
		return fmt.Errorf("unknown journal mode %q", c.JournalMode)
	}
	if c.BusyTimeout.Duration < 0 {
		return fmt.Errorf("busy timeout must not be negative")
	}
	if c.QueueDepth < 0 {
		return fmt.Errorf("queue depth must not be negative")
	}
	if c.ReadOnly && c.Memory() {
		return fmt.Errorf("read_only requires a file-backed store")
	}
	for i, pragma := range c.Pragmas {
		if strings.TrimSpace(pragma) == "" {
			return fmt.Errorf("pragma %d is empty", i)
		}
	}
	return nil
}

// Pool describes a writer/reader connection pool over one storage target.
type Pool struct {
	Connection `yaml:",inline"`

	// PoolSize is the total number of connections. One of them is the
	// dedicated writer; the remainder serve read traffic. A size of one
	// collapses both roles onto a single connection.
	PoolSize int `yaml:"pool_size,omitempty" json:"pool_size,omitempty"`
}

// Validate checks the pool settings including the embedded connection.
func (p Pool) Validate() error {
	if err := p.Connection.Validate(); err != nil {
		return err
	}
	if p.PoolSize < 1 {
		return fmt.Errorf("pool size must be at least 1, got %d", p.PoolSize)
	}
	if p.PoolSize > 1 && p.Memory() && !p.CacheShared {
		return fmt.Errorf("pool over an in-memory store requires cache_shared")
	}
	return nil
}

// LokiConfig configures optional shipping of log entries to a Loki endpoint.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	Labels  map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// LoggingConfig configures the logger used by the command line tool.
type LoggingConfig struct {
	Level  string     `yaml:"level,omitempty" json:"level,omitempty"`
	Format string     `yaml:"format,omitempty" json:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki,omitempty" json:"loki,omitempty"`
}

// File is the top-level configuration document consumed by cmd/litepool.
type File struct {
	Pool    Pool          `yaml:"pool" json:"pool"`
	Logging LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty"`
}

// Validate checks the whole document.
func (f *File) Validate() error {
	if f == nil {
		return fmt.Errorf("configuration is nil")
	}
	if err := f.Pool.Validate(); err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	return nil
}
