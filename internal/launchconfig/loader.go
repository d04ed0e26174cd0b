package launchconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

const (
	// LaunchJSONFileName is the standard name for VS Code launch configuration file.
	LaunchJSONFileName = "launch.json"
	// VSCodeDirName is the VS Code configuration directory name.
	VSCodeDirName = ".vscode"
)

// Parse decodes launch.json content. VS Code writes these files as JSON with
// comments and trailing commas, so both are accepted.
func Parse(data []byte) (*LaunchJSON, error) {
	var lj LaunchJSON
	if err := json.Unmarshal(jsonc.ToJSON(data), &lj); err != nil {
		return nil, fmt.Errorf("failed to parse launch.json: %w", err)
	}
	return &lj, nil
}

// LoadFromPath loads a launch.json file from an explicit path.
func LoadFromPath(path string) (*LaunchJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read launch.json: %w", err)
	}
	return Parse(data)
}

// Discover returns the nearest .vscode/launch.json at or above startPath.
// An empty startPath means the working directory; a file means its directory.
func Discover(startPath string) (string, error) {
	dir, err := searchRoot(startPath)
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, VSCodeDirName, LaunchJSONFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s/%s found in %s or parent directories", VSCodeDirName, LaunchJSONFileName, startPath)
		}
		dir = parent
	}
}

func searchRoot(startPath string) (string, error) {
	if startPath == "" {
		startPath = "."
	}
	abs, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", startPath, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return filepath.Dir(abs), nil
	}
	return abs, nil
}

// LoadAndDiscover finds a launch.json from the start path and loads it.
func LoadAndDiscover(startPath string) (*LaunchJSON, string, error) {
	path, err := Discover(startPath)
	if err != nil {
		return nil, "", err
	}
	lj, err := LoadFromPath(path)
	if err != nil {
		return nil, "", err
	}
	return lj, path, nil
}

// FindConfiguration finds a ThingWorx attach configuration by name.
func FindConfiguration(lj *LaunchJSON, name string) (*DebugConfiguration, error) {
	for i := range lj.Configurations {
		cfg := &lj.Configurations[i]
		if cfg.Name != name {
			continue
		}
		if !cfg.IsThingworxAttach() {
			return nil, fmt.Errorf("configuration %q is a %s %s configuration, not a %s attach configuration",
				name, cfg.Type, cfg.Request, DebugType)
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("configuration %q not found", name)
}

// ConfigurationInfo summarizes an attach configuration
type ConfigurationInfo struct {
	Name   string `json:"name"`
	Target string `json:"target"`
}

// ListConfigurations returns the ThingWorx attach configurations in launch.json.
// Targets are shown unresolved so that credentials never leave the file.
func ListConfigurations(lj *LaunchJSON) []ConfigurationInfo {
	infos := []ConfigurationInfo{}
	for _, cfg := range lj.Configurations {
		if cfg.IsThingworxAttach() {
			infos = append(infos, ConfigurationInfo{
				Name:   cfg.Name,
				Target: fmt.Sprintf("%s:%s", cfg.ThingworxDomain, cfg.ThingworxPort),
			})
		}
	}
	return infos
}

// GetWorkspaceFolder returns the folder holding the .vscode directory of launchJSONPath
func GetWorkspaceFolder(launchJSONPath string) string {
	return filepath.ToSlash(filepath.Dir(filepath.Dir(launchJSONPath)))
}
