package dap

import (
	"encoding/json"

	"github.com/google/go-dap"

	"github.com/ctagard/twx-dap/internal/channel"
)

// outputData is attached to output events so the severity survives the category mapping
type outputData struct {
	Level string `json:"level"`
}

// notificationEvent translates a push notification into the frontend event it
// stands for. Kinds without an event mapping return nil.
func notificationEvent(n channel.Notification) dap.Message {
	switch n.Kind {
	case channel.KindSuspended:
		reason := n.Reason
		if reason == "" && n.Exception {
			reason = "exception"
		}
		ev := &dap.StoppedEvent{Event: newEvent("stopped")}
		ev.Body = dap.StoppedEventBody{
			Reason:   reason,
			ThreadId: n.ThreadID,
			Text:     n.ExceptionText,
		}
		return ev

	case channel.KindResumed:
		ev := &dap.ContinuedEvent{Event: newEvent("continued")}
		ev.Body = dap.ContinuedEventBody{
			ThreadId:            n.ThreadID,
			AllThreadsContinued: false,
		}
		return ev

	case channel.KindLog:
		category := "console"
		if n.Level == channel.LevelError {
			category = "stderr"
		}
		data, _ := json.Marshal(outputData{Level: n.Level})
		ev := &dap.OutputEvent{Event: newEvent("output")}
		ev.Body = dap.OutputEventBody{
			Category: category,
			Output:   n.Body + "\n",
			Data:     data,
		}
		return ev
	}
	return nil
}
