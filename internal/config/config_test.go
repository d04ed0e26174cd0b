package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestDefaultConfig verifies that DefaultConfig returns sensible defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mode != ModeDAP {
		t.Errorf("expected mode %s, got %s", ModeDAP, cfg.Mode)
	}
	if cfg.Listen != "" {
		t.Errorf("expected stdio by default, got listen %q", cfg.Listen)
	}
	if cfg.RequestDeadline() != 30*time.Second {
		t.Errorf("expected request timeout 30s, got %v", cfg.RequestDeadline())
	}
	if cfg.HandshakeDeadline() != 10*time.Second {
		t.Errorf("expected handshake timeout 10s, got %v", cfg.HandshakeDeadline())
	}
	if cfg.TerminateOnChannelLoss() {
		t.Error("expected channel loss to be ignored by default")
	}
	if cfg.PathStyle != PathStyleAuto {
		t.Errorf("expected path style auto, got %s", cfg.PathStyle)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

// TestLoadConfig_EmptyPath verifies that empty path returns defaults.
func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

// TestLoadConfig_JSON verifies loading configuration from a JSON file.
func TestLoadConfig_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"mode": "mcp",
		"logLevel": "debug",
		"requestTimeout": "5s",
		"handshakeTimeout": 2000000000,
		"onChannelLoss": "terminate",
		"pathStyle": "windows",
		"insecureSkipVerify": true
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, ModeMCP, cfg.Mode)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 5*time.Second, cfg.RequestDeadline())
	require.Equal(t, 2*time.Second, cfg.HandshakeDeadline())
	require.True(t, cfg.TerminateOnChannelLoss())
	require.Equal(t, PathStyleWindows, cfg.PathStyle)
	require.True(t, cfg.InsecureSkipVerify)
}

// TestLoadConfig_YAML verifies loading configuration from a YAML file.
// Fields missing from the file keep their defaults.
func TestLoadConfig_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
listen: 127.0.0.1:4711
requestTimeout: 1m
onChannelLoss: ignore
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, ModeDAP, cfg.Mode)
	require.Equal(t, "127.0.0.1:4711", cfg.Listen)
	require.Equal(t, time.Minute, cfg.RequestDeadline())
	require.Equal(t, 10*time.Second, cfg.HandshakeDeadline())
	require.Equal(t, PathStyleAuto, cfg.PathStyle)
}

// TestLoadConfig_Invalid verifies that malformed or out-of-range values are rejected.
func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]struct {
		name    string
		content string
	}{
		"bad json":           {"config.json", `{"mode": `},
		"unknown mode":       {"config.json", `{"mode": "grpc"}`},
		"unknown policy":     {"config.yml", "onChannelLoss: retry\n"},
		"unknown style":      {"config.yml", "pathStyle: dos\n"},
		"bad duration":       {"config.json", `{"requestTimeout": "soon"}`},
		"zero timeout":       {"config.json", `{"requestTimeout": "0s"}`},
		"negative handshake": {"config.yaml", "handshakeTimeout: -1s\n"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, tc.name, tc.content))
			require.Error(t, err)
		})
	}
}

// TestLoadConfig_MissingFile verifies that a missing file is an error.
func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
