// Package launchconfig reads ThingWorx attach configurations from VS Code launch.json files.
package launchconfig

import (
	"encoding/json"
	"strconv"
)

// DebugType is the launch.json "type" of a ThingWorx configuration
const DebugType = "thingworx"

// LaunchJSON represents a VS Code launch.json file structure.
type LaunchJSON struct {
	Version        string               `json:"version"`
	Configurations []DebugConfiguration `json:"configurations"`
	Inputs         []InputConfig        `json:"inputs,omitempty"`
}

// DebugConfiguration represents a single debug configuration in launch.json.
// Only the attach fields of ThingWorx configurations are decoded; other
// configurations keep their type, request and name so they can be listed.
type DebugConfiguration struct {
	Type    string `json:"type"`
	Request string `json:"request"`
	Name    string `json:"name"`

	ThingworxDomain string      `json:"thingworxDomain,omitempty"`
	ThingworxPort   StringOrNum `json:"thingworxPort,omitempty"`
	ThingworxAppKey string      `json:"thingworxAppKey,omitempty"`
	UseSSL          *bool       `json:"useSSL,omitempty"`
}

// IsThingworxAttach reports whether c attaches to a ThingWorx debug server
func (c *DebugConfiguration) IsThingworxAttach() bool {
	return c.Type == DebugType && c.Request == "attach"
}

// InputConfig represents a user input variable definition.
type InputConfig struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Default     string `json:"default,omitempty"`
}

// ResolutionContext provides context for variable resolution.
type ResolutionContext struct {
	WorkspaceFolder string            // Root folder of the workspace
	InputValues     map[string]string // Pre-provided values for ${input:} variables
	EnvOverrides    map[string]string // Override environment variables
}

// StringOrNum holds a JSON number or string. Ports are often written as
// "${env:TWX_PORT}" so both forms must decode.
type StringOrNum string

// UnmarshalJSON implements json.Unmarshaler
func (s *StringOrNum) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = StringOrNum(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = StringOrNum(num.String())
	return nil
}

// MarshalJSON implements json.Marshaler; numeric values are written as numbers
func (s StringOrNum) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseFloat(string(s), 64); err == nil {
		return []byte(s), nil
	}
	return json.Marshal(string(s))
}
