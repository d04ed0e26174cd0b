package mcp

import (
	"strings"
	"sync"

	"github.com/google/go-dap"
)

// defaultOutputLines is how many output lines twx_status keeps
const defaultOutputLines = 200

// eventRecorder stands in for an editor: it keeps the events a session emits so
// tools can report them later
type eventRecorder struct {
	mu          sync.Mutex
	lastStopped *dap.StoppedEventBody
	running     bool
	terminated  bool
	output      []string
	maxOutput   int
}

func newEventRecorder(maxOutput int) *eventRecorder {
	return &eventRecorder{maxOutput: maxOutput}
}

// Send implements dap.Sender
func (r *eventRecorder) Send(msg dap.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch m := msg.(type) {
	case *dap.StoppedEvent:
		body := m.Body
		r.lastStopped = &body
		r.running = false
	case *dap.ContinuedEvent:
		r.running = true
	case *dap.OutputEvent:
		r.output = append(r.output, strings.TrimSuffix(m.Body.Output, "\n"))
		if over := len(r.output) - r.maxOutput; over > 0 {
			r.output = append(r.output[:0:0], r.output[over:]...)
		}
	case *dap.TerminatedEvent:
		r.terminated = true
		r.running = false
	}
	return nil
}

// snapshot is the event part of twx_status
type snapshot struct {
	LastStopped *dap.StoppedEventBody `json:"lastStopped,omitempty"`
	Running     bool                  `json:"running"`
	Terminated  bool                  `json:"terminated"`
	Output      []string              `json:"output"`
}

func (r *eventRecorder) snapshot(outputLines int) snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.output
	if outputLines >= 0 && len(out) > outputLines {
		out = out[len(out)-outputLines:]
	}
	s := snapshot{
		Running:    r.running,
		Terminated: r.terminated,
		Output:     append([]string{}, out...),
	}
	if r.lastStopped != nil {
		stopped := *r.lastStopped
		s.LastStopped = &stopped
	}
	return s
}

// reset forgets everything recorded for the previous attachment
func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastStopped = nil
	r.running = false
	r.terminated = false
	r.output = nil
}
