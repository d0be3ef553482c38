package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultRelayURL is used when relay_url is not configured.
const DefaultRelayURL = "ws://127.0.0.1:7420"

// Config represents the global ~/.duochat/config.toml.
type Config struct {
	// DefaultSession is the session (and user) name used without --session.
	DefaultSession string `toml:"default_session"`
	// RelayURL is the websocket base URL of the push relay.
	RelayURL string `toml:"relay_url,omitempty"`
	// DBPath overrides the location of the shared conversation database.
	DBPath string `toml:"db_path,omitempty"`
}

// Load reads config from the given path. Returns nil and an error if the file
// is missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
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

// Relay returns the configured relay URL or DefaultRelayURL.
func (c *Config) Relay() string {
	if c == nil || c.RelayURL == "" {
		return DefaultRelayURL
	}
	return c.RelayURL
}
