// Package config reads and writes the global ~/.courier/config.toml.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.courier/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`

	// ViewerID and ViewerName identify the local account; messages the
	// viewer sends carry them as sender fields.
	ViewerID   string `toml:"viewer_id"`
	ViewerName string `toml:"viewer_name"`

	// SendTimeout bounds a single transport send attempt. Zero means
	// no deadline.
	SendTimeout duration `toml:"send_timeout"`

	// DeliveryDelay is the simulated latency of the loopback transport.
	DeliveryDelay duration `toml:"delivery_delay"`

	LogLevel string `toml:"log_level"`
}

// Default returns the configuration used when config.toml is absent.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		ViewerID:       "me",
		ViewerName:     "Me",
		SendTimeout:    duration{10 * time.Second},
		DeliveryDelay:  duration{500 * time.Millisecond},
		LogLevel:       "info",
	}
}

// Load reads config from the given path. Returns an error if the file
// is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads config from path, falling back to defaults when
// the file does not exist.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	base := Default()
	if cfg.DefaultSession == "" {
		cfg.DefaultSession = base.DefaultSession
	}
	if cfg.ViewerID == "" {
		cfg.ViewerID = base.ViewerID
	}
	if cfg.ViewerName == "" {
		cfg.ViewerName = base.ViewerName
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = base.LogLevel
	}
	// A zero duration means the key was absent. An unset send_timeout
	// must not disable the send deadline.
	if cfg.SendTimeout.Duration == 0 {
		cfg.SendTimeout = base.SendTimeout
	}
	if cfg.DeliveryDelay.Duration == 0 {
		cfg.DeliveryDelay = base.DeliveryDelay
	}
	return cfg
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// duration lets TOML carry values like "10s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// SendTimeoutValue returns the configured send timeout.
func (c *Config) SendTimeoutValue() time.Duration { return c.SendTimeout.Duration }

// DeliveryDelayValue returns the configured loopback latency.
func (c *Config) DeliveryDelayValue() time.Duration { return c.DeliveryDelay.Duration }
