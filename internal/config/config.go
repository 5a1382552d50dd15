// Package config holds the demo entry point's listener/dialer
// configuration. The protocol core itself takes no configuration; this
// package only serves cmd/sroecho.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sro-proto/session/internal/protocolstate"
)

// Echo holds all configuration for the demo echo listener/dialer.
type Echo struct {
	// Network
	ListenAddress string `yaml:"listen_address"`
	DialAddress   string `yaml:"dial_address"`

	// Handshake options requested by the Responder side.
	RequireEncryption     bool `yaml:"require_encryption"`
	RequireErrorDetection bool `yaml:"require_error_detection"`
	RequireKeyExchange    bool `yaml:"require_key_exchange"`
	RequireKeyChallenge   bool `yaml:"require_key_challenge"`

	// Buffering
	ReadBufferSize int `yaml:"read_buffer_size"`
}

// Options translates the boolean config fields into a ProtocolOption
// bitset for handshake.RunResponder.
func (e Echo) Options() protocolstate.Option {
	var opts protocolstate.Option
	if e.RequireEncryption {
		opts |= protocolstate.OptionEncryption
	}
	if e.RequireErrorDetection {
		opts |= protocolstate.OptionErrorDetection
	}
	if e.RequireKeyExchange {
		opts |= protocolstate.OptionKeyExchange
	}
	if e.RequireKeyChallenge {
		opts |= protocolstate.OptionKeyChallenge
	}
	return opts
}

// DefaultEcho returns sensible defaults for running the demo locally.
func DefaultEcho() Echo {
	return Echo{
		ListenAddress:         "127.0.0.1:9360",
		DialAddress:           "127.0.0.1:9360",
		RequireEncryption:     true,
		RequireErrorDetection: true,
		RequireKeyExchange:    true,
		RequireKeyChallenge:   true,
		ReadBufferSize:        4096,
	}
}

// LoadEcho loads the demo config from a YAML file, falling back to
// DefaultEcho when the file does not exist.
func LoadEcho(path string) (Echo, error) {
	cfg := DefaultEcho()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
