package dap

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/twx-dap/internal/channel"
	"github.com/ctagard/twx-dap/internal/config"
	"github.com/ctagard/twx-dap/internal/remote"
	"github.com/ctagard/twx-dap/pkg/types"
)

// remoteCall is one recorded service invocation
type remoteCall struct {
	service string
	args    remote.Args
}

// fakeRemote answers service calls from canned replies and records them
type fakeRemote struct {
	mu      sync.Mutex
	calls   []remoteCall
	replies map[string]func(remote.Args) (*remote.Result, error)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{replies: make(map[string]func(remote.Args) (*remote.Result, error))}
}

func (f *fakeRemote) Invoke(_ context.Context, service string, args remote.Args) (*remote.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, remoteCall{service: service, args: args})
	reply := f.replies[service]
	f.mu.Unlock()

	if reply == nil {
		return &remote.Result{Service: service}, nil
	}
	return reply(args)
}

// rows makes service answer with the given JSON rows
func (f *fakeRemote) rows(service string, rows ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[service] = func(remote.Args) (*remote.Result, error) {
		res := &remote.Result{Service: service}
		for _, row := range rows {
			res.Rows = append(res.Rows, json.RawMessage(row))
		}
		return res, nil
	}
}

// fail makes service answer with err
func (f *fakeRemote) fail(service string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[service] = func(remote.Args) (*remote.Result, error) {
		return nil, err
	}
}

// block holds calls to service until the returned channel is closed
func (f *fakeRemote) block(service string) chan struct{} {
	release := make(chan struct{})
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[service] = func(remote.Args) (*remote.Result, error) {
		<-release
		return &remote.Result{Service: service}, nil
	}
	return release
}

func (f *fakeRemote) services() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.service)
	}
	return out
}

// last returns the most recent call of service
func (f *fakeRemote) last(t *testing.T, service string) remoteCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].service == service {
			return f.calls[i]
		}
	}
	t.Fatalf("no call to %s in %v", service, f.calls)
	return remoteCall{}
}

// fakePush is a push channel driven by the test
type fakePush struct {
	ch     chan channel.Notification
	err    error
	closed atomic.Bool
	once   sync.Once
}

func newFakePush() *fakePush {
	return &fakePush{ch: make(chan channel.Notification, 16)}
}

func (p *fakePush) Notifications() <-chan channel.Notification {
	return p.ch
}

func (p *fakePush) Err() error {
	return p.err
}

func (p *fakePush) Close() error {
	p.closed.Store(true)
	p.once.Do(func() { close(p.ch) })
	return nil
}

// drop ends the channel as if the socket was lost
func (p *fakePush) drop(err error) {
	p.err = err
	p.once.Do(func() { close(p.ch) })
}

// recorder is a Sender that keeps everything the session emits
type recorder struct {
	mu   sync.Mutex
	msgs []dap.Message
	seen chan dap.Message
}

func newRecorder() *recorder {
	return &recorder{seen: make(chan dap.Message, 64)}
}

func (r *recorder) Send(msg dap.Message) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	select {
	case r.seen <- msg:
	default:
	}
	return nil
}

// next waits for the next emitted message
func (r *recorder) next(t *testing.T) dap.Message {
	t.Helper()
	select {
	case msg := <-r.seen:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message from the session")
	}
	return nil
}

// none asserts that nothing is emitted for a short while
func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case msg := <-r.seen:
		t.Fatalf("unexpected message %T", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

// harness wires a session to fakes
type harness struct {
	session *Session
	remote  *fakeRemote
	events  *recorder

	mu      sync.Mutex
	push    *fakePush
	dialErr error
	target  types.Target
	seq     int
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.PathStyle = config.PathStylePosix
	for _, m := range mutate {
		m(cfg)
	}

	h := &harness{remote: newFakeRemote(), events: newRecorder()}
	connect := func(_ context.Context, target types.Target) (remote.Invoker, PushChannel, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.dialErr != nil {
			return nil, nil, h.dialErr
		}
		h.target = target
		h.push = newFakePush()
		return h.remote, h.push, nil
	}
	h.session = NewSession(cfg, h.events, WithConnector(connect))
	t.Cleanup(h.session.Close)
	return h
}

func (h *harness) currentPush() *fakePush {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.push
}

func (h *harness) request(command string) dap.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: h.seq, Type: "request"},
		Command:         command,
	}
}

func (h *harness) handle(req dap.RequestMessage) dap.Message {
	return h.session.Handle(context.Background(), req)
}

func (h *harness) attachRequest(args string) *dap.AttachRequest {
	return &dap.AttachRequest{Request: h.request("attach"), Arguments: json.RawMessage(args)}
}

const validAttach = `{"thingworxDomain":"twx.local","thingworxPort":8443,"thingworxAppKey":"k-1","useSSL":true}`

// attach attaches successfully
func (h *harness) attach(t *testing.T) {
	t.Helper()
	resp := h.handle(h.attachRequest(validAttach))
	requireSuccess(t, resp)
	require.Equal(t, types.SessionStatusAttached, h.session.Status())
}

func requireSuccess(t *testing.T, msg dap.Message) {
	t.Helper()
	if errResp, ok := msg.(*dap.ErrorResponse); ok {
		t.Fatalf("unexpected error response: %s / %s", errResp.Message, errResp.Body.Error.Format)
	}
	resp, ok := msg.(dap.ResponseMessage)
	require.True(t, ok, "expected a response, got %T", msg)
	require.True(t, resp.GetResponse().Success)
}

func requireError(t *testing.T, msg dap.Message, short string) *dap.ErrorResponse {
	t.Helper()
	errResp, ok := msg.(*dap.ErrorResponse)
	require.True(t, ok, "expected an error response, got %T", msg)
	require.False(t, errResp.Success)
	require.Equal(t, short, errResp.Message)
	require.NotNil(t, errResp.Body.Error)
	require.Equal(t, 0, errResp.Body.Error.Id)
	return errResp
}
