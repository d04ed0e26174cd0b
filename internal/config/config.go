// Package config provides configuration management for the ThingWorx debug adapter.
//
// Configuration controls:
//   - Serving mode (dap vs mcp): which frontend protocol the adapter speaks
//   - Listen address: stdio when empty, otherwise a TCP address for DAP clients
//   - Timeouts: per-request deadline and the push channel handshake deadline
//   - Channel loss policy: what happens when the push channel drops after attach
//   - Path style: how file paths are normalized before they reach the target
//
// Configuration can be loaded from a JSON or YAML file or use sensible defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServeMode selects the frontend protocol
type ServeMode string

const (
	ModeDAP ServeMode = "dap" // Debug Adapter Protocol over stdio or TCP
	ModeMCP ServeMode = "mcp" // Model Context Protocol tools over stdio
)

// ChannelLossPolicy decides how a session reacts when the push channel drops
type ChannelLossPolicy string

const (
	// ChannelLossIgnore logs the loss and keeps the session attached; remote calls
	// still work but no further stopped/continued/output events arrive.
	ChannelLossIgnore ChannelLossPolicy = "ignore"
	// ChannelLossTerminate emits a terminated event and tears the connection down.
	ChannelLossTerminate ChannelLossPolicy = "terminate"
)

// PathStyle selects the path normalization applied to breakpoint paths
type PathStyle string

const (
	PathStyleAuto    PathStyle = "auto" // derived from the host operating system
	PathStyleWindows PathStyle = "windows"
	PathStylePosix   PathStyle = "posix"
)

// Duration is a time.Duration that decodes from "30s" style strings or nanoseconds
type Duration time.Duration

// UnmarshalJSON accepts either a duration string or an integer
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", string(data))
	}
	*d = Duration(n)
	return nil
}

// UnmarshalYAML accepts either a duration string or an integer
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if parsed, err := time.ParseDuration(s); err == nil {
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(n)
	return nil
}

// Config holds the adapter configuration
type Config struct {
	Mode     ServeMode `json:"mode" yaml:"mode"`
	Listen   string    `json:"listen" yaml:"listen"`
	LogLevel string    `json:"logLevel" yaml:"logLevel"`

	RequestTimeout   Duration `json:"requestTimeout" yaml:"requestTimeout"`
	HandshakeTimeout Duration `json:"handshakeTimeout" yaml:"handshakeTimeout"`

	OnChannelLoss      ChannelLossPolicy `json:"onChannelLoss" yaml:"onChannelLoss"`
	PathStyle          PathStyle         `json:"pathStyle" yaml:"pathStyle"`
	InsecureSkipVerify bool              `json:"insecureSkipVerify" yaml:"insecureSkipVerify"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:             ModeDAP,
		LogLevel:         "info",
		RequestTimeout:   Duration(30 * time.Second),
		HandshakeTimeout: Duration(10 * time.Second),
		OnChannelLoss:    ChannelLossIgnore,
		PathStyle:        PathStyleAuto,
	}
}

// LoadConfig loads configuration from a JSON or YAML file.
// An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks enumerated fields and timeouts
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeDAP, ModeMCP:
	default:
		return fmt.Errorf("invalid mode %q: expected %q or %q", c.Mode, ModeDAP, ModeMCP)
	}
	switch c.OnChannelLoss {
	case ChannelLossIgnore, ChannelLossTerminate:
	default:
		return fmt.Errorf("invalid onChannelLoss %q: expected %q or %q", c.OnChannelLoss, ChannelLossIgnore, ChannelLossTerminate)
	}
	switch c.PathStyle {
	case PathStyleAuto, PathStyleWindows, PathStylePosix:
	default:
		return fmt.Errorf("invalid pathStyle %q", c.PathStyle)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("requestTimeout must be positive")
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshakeTimeout must be positive")
	}
	return nil
}

// RequestDeadline returns the per-request deadline as a time.Duration
func (c *Config) RequestDeadline() time.Duration {
	return time.Duration(c.RequestTimeout)
}

// HandshakeDeadline returns the handshake deadline as a time.Duration
func (c *Config) HandshakeDeadline() time.Duration {
	return time.Duration(c.HandshakeTimeout)
}

// TerminateOnChannelLoss returns true if channel loss should end the session
func (c *Config) TerminateOnChannelLoss() bool {
	return c.OnChannelLoss == ChannelLossTerminate
}
