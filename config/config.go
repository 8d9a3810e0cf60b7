// Package config loads connkit configuration from TOML files.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	ckerrors "github.com/vinayprograms/connkit/errors"
	"github.com/vinayprograms/connkit/heartbeat"
	"github.com/vinayprograms/connkit/logging"
)

// Transport kinds accepted in [transport].
const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
	TransportPipe      = "pipe"
)

// Config is the top-level configuration.
type Config struct {
	Heartbeat HeartbeatConfig `toml:"heartbeat"`
	Transport TransportConfig `toml:"transport"`
	Logging   LoggingConfig   `toml:"logging"`
}

// HeartbeatConfig configures the liveness monitor. Both fields are
// mandatory: there is no safe default for another system's latency.
type HeartbeatConfig struct {
	// IntervalMS is the heartbeat interval in milliseconds.
	IntervalMS int `toml:"interval_ms"`

	// Tolerance is the maximum number of unanswered heartbeats.
	Tolerance int `toml:"tolerance"`
}

// Interval returns the heartbeat interval as a duration.
func (h HeartbeatConfig) Interval() time.Duration {
	return time.Duration(h.IntervalMS) * time.Millisecond
}

// TransportConfig selects and configures the underlying connection.
type TransportConfig struct {
	// Kind is one of "websocket", "nats" or "pipe".
	Kind string `toml:"kind"`

	// Name identifies the connection in logs and errors. Optional.
	Name string `toml:"name"`

	// URL is the server URL (ws:// or nats://, depending on Kind).
	URL string `toml:"url"`

	// Subject and PeerSubject are the NATS subject pair. NATS only.
	Subject     string `toml:"subject"`
	PeerSubject string `toml:"peer_subject"`

	// Buffer sizes the incoming stream. Optional.
	Buffer int `toml:"buffer"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string `toml:"level"`
}

// Default returns a configuration with transport and logging defaults
// filled in. Heartbeat settings stay zero: they must come from the
// file or the caller.
func Default() Config {
	return Config{
		Transport: TransportConfig{Kind: TransportWebSocket},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// StandardPaths returns the configuration file locations in order of
// priority.
func StandardPaths() []string {
	paths := []string{"connkit.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "connkit", "config.toml"))
	}
	return paths
}

// Load reads configuration from the first standard location that
// exists. A missing file is not an error; the defaults are returned
// with an empty path.
func Load() (Config, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			return cfg, path, err
		}
	}
	return Default(), "", nil
}

// LoadFile reads and validates configuration from path.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, ckerrors.WrapWithCode(err, ckerrors.ErrCodeInvalidInput, "parse config")
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cfg, ckerrors.Newf(ckerrors.ErrCodeInvalidInput,
			"unknown config key %q", undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Heartbeat.IntervalMS <= 0 {
		return ckerrors.InvalidInput("heartbeat.interval_ms must be positive")
	}
	if c.Heartbeat.Tolerance <= 0 {
		return ckerrors.InvalidInput("heartbeat.tolerance must be positive")
	}

	switch c.Transport.Kind {
	case TransportWebSocket:
		if c.Transport.URL == "" {
			return ckerrors.InvalidInput("transport.url is required for websocket")
		}
	case TransportNATS:
		if c.Transport.Subject == "" || c.Transport.PeerSubject == "" {
			return ckerrors.InvalidInput("transport.subject and transport.peer_subject are required for nats")
		}
		if c.Transport.Subject == c.Transport.PeerSubject {
			return ckerrors.InvalidInput("transport.subject and transport.peer_subject must differ")
		}
	case TransportPipe:
	default:
		return ckerrors.Newf(ckerrors.ErrCodeInvalidInput,
			"unknown transport kind %q", c.Transport.Kind)
	}

	return nil
}

// HeartbeatOptions converts the file settings into the heartbeat
// package's configuration.
func (c *Config) HeartbeatOptions(logger *logging.Logger) heartbeat.Config {
	return heartbeat.Config{
		Interval:  c.Heartbeat.Interval(),
		Tolerance: c.Heartbeat.Tolerance,
		Logger:    logger,
		Buffer:    c.Transport.Buffer,
	}
}

// Logger builds a logger at the configured level.
func (c *Config) Logger() *logging.Logger {
	l := logging.New()
	l.SetLevel(logging.ParseLevel(c.Logging.Level))
	return l
}
