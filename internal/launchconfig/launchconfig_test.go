package launchconfig_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctagard/twx-dap/internal/launchconfig"
)

const sampleLaunchJSON = `{
	"version": "0.2.0",
	"configurations": [
		{
			"type": "thingworx",
			"request": "attach",
			"name": "Dev server",
			"thingworxDomain": "twx.dev.local",
			"thingworxPort": 8443,
			"thingworxAppKey": "${env:TWX_APP_KEY}",
			"useSSL": true
		},
		{
			"type": "thingworx",
			"request": "attach",
			"name": "Prompted",
			"thingworxDomain": "${input:host}",
			"thingworxPort": "${env:TWX_PORT}",
			"thingworxAppKey": "${input:appKey}",
			"useSSL": false
		},
		{
			"type": "node",
			"request": "launch",
			"name": "Node: Tests",
			"program": "${workspaceFolder}/index.js"
		}
	],
	"inputs": [
		{"id": "host", "type": "promptString", "description": "ThingWorx host"}
	]
}`

func writeLaunchJSON(t *testing.T, dir, content string) string {
	t.Helper()
	vscodeDir := filepath.Join(dir, ".vscode")
	if err := os.MkdirAll(vscodeDir, 0755); err != nil {
		t.Fatalf("failed to create .vscode dir: %v", err)
	}
	path := filepath.Join(vscodeDir, "launch.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write launch.json: %v", err)
	}
	return path
}

// TestLoadFromPath verifies that launch.json files can be loaded and parsed correctly.
func TestLoadFromPath(t *testing.T) {
	path := writeLaunchJSON(t, t.TempDir(), sampleLaunchJSON)

	lj, err := launchconfig.LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if len(lj.Configurations) != 3 {
		t.Fatalf("expected 3 configurations, got %d", len(lj.Configurations))
	}
	if got := lj.Configurations[0].ThingworxPort; got != "8443" {
		t.Errorf("expected numeric port to decode as 8443, got %q", got)
	}
	if got := lj.Configurations[1].ThingworxPort; got != "${env:TWX_PORT}" {
		t.Errorf("expected string port to be kept, got %q", got)
	}
	if len(lj.Inputs) != 1 || lj.Inputs[0].ID != "host" {
		t.Errorf("unexpected inputs: %+v", lj.Inputs)
	}
}

// TestLoadFromPath_InvalidJSON verifies error handling for malformed JSON.
func TestLoadFromPath_InvalidJSON(t *testing.T) {
	path := writeLaunchJSON(t, t.TempDir(), `{invalid json`)

	if _, err := launchconfig.LoadFromPath(path); err == nil {
		t.Error("expected error for invalid JSON, got nil")
	}
}

// TestParse_Comments verifies that VS Code style comments and trailing commas are accepted.
func TestParse_Comments(t *testing.T) {
	lj, err := launchconfig.Parse([]byte(`{
		// Use IntelliSense to learn about possible attributes.
		"version": "0.2.0",
		"configurations": [
			/* local server */
			{
				"type": "thingworx",
				"request": "attach",
				"name": "Local",
				"thingworxDomain": "localhost",
				"thingworxPort": 8080,
			},
		],
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(lj.Configurations) != 1 || lj.Configurations[0].Name != "Local" {
		t.Errorf("unexpected configurations: %+v", lj.Configurations)
	}
}

// TestDiscover verifies that launch.json files can be discovered in parent directories.
func TestDiscover(t *testing.T) {
	tmpDir := t.TempDir()
	launchPath := writeLaunchJSON(t, tmpDir, sampleLaunchJSON)
	nestedDir := filepath.Join(tmpDir, "Things", "PumpController")
	if err := os.MkdirAll(nestedDir, 0755); err != nil {
		t.Fatalf("failed to create nested dir: %v", err)
	}

	lj, foundPath, err := launchconfig.LoadAndDiscover(nestedDir)
	if err != nil {
		t.Fatalf("LoadAndDiscover failed: %v", err)
	}
	if foundPath != launchPath {
		t.Errorf("expected %s, got %s", launchPath, foundPath)
	}
	if len(lj.Configurations) != 3 {
		t.Errorf("expected 3 configurations, got %d", len(lj.Configurations))
	}
	if got := launchconfig.GetWorkspaceFolder(foundPath); got != filepath.ToSlash(tmpDir) {
		t.Errorf("expected workspace %s, got %s", filepath.ToSlash(tmpDir), got)
	}
}

// TestFindConfiguration verifies lookup by name only returns ThingWorx attach configurations.
func TestFindConfiguration(t *testing.T) {
	lj, err := launchconfig.LoadFromPath(writeLaunchJSON(t, t.TempDir(), sampleLaunchJSON))
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	cfg, err := launchconfig.FindConfiguration(lj, "Dev server")
	if err != nil {
		t.Fatalf("FindConfiguration failed: %v", err)
	}
	if cfg.ThingworxDomain != "twx.dev.local" {
		t.Errorf("unexpected domain %q", cfg.ThingworxDomain)
	}

	if _, err := launchconfig.FindConfiguration(lj, "Node: Tests"); err == nil {
		t.Error("expected error for a non-ThingWorx configuration")
	}
	if _, err := launchconfig.FindConfiguration(lj, "missing"); err == nil {
		t.Error("expected error for an unknown configuration")
	}
}

// TestListConfigurations verifies only attach targets are listed, unresolved.
func TestListConfigurations(t *testing.T) {
	lj, err := launchconfig.LoadFromPath(writeLaunchJSON(t, t.TempDir(), sampleLaunchJSON))
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	expected := []launchconfig.ConfigurationInfo{
		{Name: "Dev server", Target: "twx.dev.local:8443"},
		{Name: "Prompted", Target: "${input:host}:${env:TWX_PORT}"},
	}
	if got := launchconfig.ListConfigurations(lj); !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %+v, got %+v", expected, got)
	}
}

// TestResolveVariables verifies the supported variable forms.
func TestResolveVariables(t *testing.T) {
	ctx := &launchconfig.ResolutionContext{
		WorkspaceFolder: "/work/pumps",
		InputValues:     map[string]string{"host": "twx.example.com"},
		EnvOverrides:    map[string]string{"TWX_APP_KEY": "abc"},
	}

	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"${workspaceFolder}/Things", "/work/pumps/Things", false},
		{"${workspaceFolderBasename}", "pumps", false},
		{"key=${env:TWX_APP_KEY}", "key=abc", false},
		{"${input:host}", "twx.example.com", false},
		{"${input:other}", "${input:other}", true},
		{"${command:pickProcess}", "${command:pickProcess}", true},
		{"no variables", "no variables", false},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := launchconfig.ResolveVariables(tc.input, ctx)
			if (err != nil) != tc.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

// TestResolveAttachArguments verifies the conversion to attach arguments.
func TestResolveAttachArguments(t *testing.T) {
	lj, err := launchconfig.LoadFromPath(writeLaunchJSON(t, t.TempDir(), sampleLaunchJSON))
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	cfg, _ := launchconfig.FindConfiguration(lj, "Dev server")
	args, err := launchconfig.ResolveAttachArguments(cfg, &launchconfig.ResolutionContext{
		EnvOverrides: map[string]string{"TWX_APP_KEY": "k-1"},
	})
	if err != nil {
		t.Fatalf("ResolveAttachArguments failed: %v", err)
	}
	if missing := args.MissingFields(); len(missing) != 0 {
		t.Fatalf("unexpected missing fields %v", missing)
	}
	target := args.Target()
	if target.Domain != "twx.dev.local" || target.Port != 8443 || !target.UseSSL || target.AppKey != "k-1" {
		t.Errorf("unexpected target %+v", target)
	}

	// An unset variable leaves the field absent rather than empty.
	args, err = launchconfig.ResolveAttachArguments(cfg, &launchconfig.ResolutionContext{
		EnvOverrides: map[string]string{"TWX_APP_KEY": ""},
	})
	if err != nil {
		t.Fatalf("ResolveAttachArguments failed: %v", err)
	}
	if missing := args.MissingFields(); !reflect.DeepEqual(missing, []string{"thingworxAppKey"}) {
		t.Errorf("expected thingworxAppKey to be missing, got %v", missing)
	}
}

// TestResolveAttachArguments_Inputs verifies missing inputs and bad ports.
func TestResolveAttachArguments_Inputs(t *testing.T) {
	lj, err := launchconfig.LoadFromPath(writeLaunchJSON(t, t.TempDir(), sampleLaunchJSON))
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	cfg, _ := launchconfig.FindConfiguration(lj, "Prompted")

	_, err = launchconfig.ResolveAttachArguments(cfg, &launchconfig.ResolutionContext{
		InputValues: map[string]string{"host": "twx"},
	})
	missing, ok := launchconfig.IsMissingInputsError(err)
	if !ok {
		t.Fatalf("expected MissingInputsError, got %v", err)
	}
	if !reflect.DeepEqual(missing.Inputs, []string{"appKey"}) {
		t.Errorf("unexpected missing inputs %v", missing.Inputs)
	}

	_, err = launchconfig.ResolveAttachArguments(cfg, &launchconfig.ResolutionContext{
		InputValues:  map[string]string{"host": "twx", "appKey": "k"},
		EnvOverrides: map[string]string{"TWX_PORT": "eighty"},
	})
	if err == nil {
		t.Error("expected an error for a non-numeric port")
	}
}
