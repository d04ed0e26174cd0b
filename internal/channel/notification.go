package channel

import (
	"encoding/json"
	"strings"
)

// Kind is the name of a push notification
type Kind string

const (
	KindSuspended Kind = "suspended"
	KindResumed   Kind = "resumed"
	KindLog       Kind = "log"
)

// Log levels carried by log notifications
const (
	LevelVerbose = "verbose"
	LevelInfo    = "info"
	LevelWarn    = "warn"
	LevelError   = "error"
)

// Notification is a typed push message from the target
type Notification struct {
	Kind      Kind
	ThreadID  int
	Reason    string
	Exception bool
	// ExceptionText is set when the target sends a description instead of a flag
	ExceptionText string
	Body          string
	Level         string
}

// frame is the wire shape of a push message
type frame struct {
	Name      string          `json:"name"`
	ThreadID  int             `json:"threadID"`
	Reason    string          `json:"reason"`
	Exception json.RawMessage `json:"exception"`
	Body      string          `json:"body"`
	Level     json.RawMessage `json:"level"`
}

func (f frame) notification() Notification {
	n := Notification{
		Kind:     Kind(f.Name),
		ThreadID: f.ThreadID,
		Reason:   f.Reason,
		Body:     f.Body,
		Level:    parseLevel(f.Level),
	}
	n.Exception, n.ExceptionText = parseException(f.Exception)
	return n
}

// parseException accepts a boolean flag or a description string
func parseException(raw json.RawMessage) (bool, string) {
	if len(raw) == 0 {
		return false, ""
	}
	var flag bool
	if err := json.Unmarshal(raw, &flag); err == nil {
		return flag, ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text != "", text
	}
	return false, ""
}

// parseLevel accepts the numeric levels of the target logger (0 verbose .. 3 error)
// or their names
func parseLevel(raw json.RawMessage) string {
	if len(raw) == 0 {
		return LevelInfo
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		switch {
		case n <= 0:
			return LevelVerbose
		case n == 1:
			return LevelInfo
		case n == 2:
			return LevelWarn
		default:
			return LevelError
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(s) {
		case "verbose", "debug", "trace":
			return LevelVerbose
		case "warn", "warning":
			return LevelWarn
		case "error", "fatal":
			return LevelError
		}
	}
	return LevelInfo
}
