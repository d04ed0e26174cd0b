// Package types defines shared data types used across the ThingWorx debug adapter.
//
// This package provides type definitions for:
//   - SessionStatus: connection states of a debug session
//   - Target: the address and credential of a ThingWorx debug server
//   - AttachArguments: the attach configuration sent by the frontend
//   - SessionInfo: a snapshot of a session for status reporting
//
// These types are shared by the remote client, the push channel, the DAP session
// and the MCP surface so that each of them agrees on one definition of a target.
package types

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// SessionStatus represents the connection state of a debug session
type SessionStatus string

const (
	SessionStatusDisconnected   SessionStatus = "disconnected"
	SessionStatusAuthenticating SessionStatus = "authenticating"
	SessionStatusAttached       SessionStatus = "attached"
	SessionStatusTerminating    SessionStatus = "terminating"
)

// Target identifies a ThingWorx server running the BMDebugServer extension
type Target struct {
	Domain string `json:"thingworxDomain"`
	Port   int    `json:"thingworxPort"`
	UseSSL bool   `json:"useSSL"`
	AppKey string `json:"-"`
}

// Address returns host:port for the target
func (t Target) Address() string {
	return net.JoinHostPort(t.Domain, strconv.Itoa(t.Port))
}

// HTTPScheme returns the scheme used for remote service calls
func (t Target) HTTPScheme() string {
	if t.UseSSL {
		return "https"
	}
	return "http"
}

// WebSocketScheme returns the scheme used for the push channel
func (t Target) WebSocketScheme() string {
	if t.UseSSL {
		return "wss"
	}
	return "ws"
}

// String renders the target without its credential
func (t Target) String() string {
	return fmt.Sprintf("%s://%s", t.HTTPScheme(), t.Address())
}

// AttachArguments is the attach configuration sent by the frontend.
// All fields are required; pointers distinguish "absent" from zero values.
type AttachArguments struct {
	ThingworxDomain *string  `json:"thingworxDomain"`
	ThingworxPort   *float64 `json:"thingworxPort"`
	ThingworxAppKey *string  `json:"thingworxAppKey"`
	UseSSL          *bool    `json:"useSSL"`
}

// MissingFields returns the names of required attach fields that were not provided
func (a AttachArguments) MissingFields() []string {
	var missing []string
	if a.ThingworxDomain == nil || *a.ThingworxDomain == "" {
		missing = append(missing, "thingworxDomain")
	}
	if a.ThingworxPort == nil {
		missing = append(missing, "thingworxPort")
	}
	if a.ThingworxAppKey == nil || *a.ThingworxAppKey == "" {
		missing = append(missing, "thingworxAppKey")
	}
	if a.UseSSL == nil {
		missing = append(missing, "useSSL")
	}
	return missing
}

// Target converts validated attach arguments into a Target.
// Callers must check MissingFields first.
func (a AttachArguments) Target() Target {
	return Target{
		Domain: *a.ThingworxDomain,
		Port:   int(*a.ThingworxPort),
		UseSSL: *a.UseSSL,
		AppKey: *a.ThingworxAppKey,
	}
}

// SessionInfo represents information about a debug session
type SessionInfo struct {
	SessionID   string        `json:"sessionId"`
	Status      SessionStatus `json:"status"`
	Target      string        `json:"target,omitempty"`
	AttachedAt  time.Time     `json:"attachedAt,omitempty"`
	KnownFrames int           `json:"knownFrames"`
}
