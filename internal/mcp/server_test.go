package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/twx-dap/internal/channel"
	"github.com/ctagard/twx-dap/internal/config"
	"github.com/ctagard/twx-dap/internal/dap"
	"github.com/ctagard/twx-dap/internal/remote"
	"github.com/ctagard/twx-dap/pkg/types"
)

// stubRemote answers every service with the configured rows
type stubRemote struct {
	mu    sync.Mutex
	rows  map[string][]string
	calls map[string]remote.Args
}

func (r *stubRemote) Invoke(_ context.Context, service string, args remote.Args) (*remote.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[service] = args
	res := &remote.Result{Service: service}
	for _, row := range r.rows[service] {
		res.Rows = append(res.Rows, json.RawMessage(row))
	}
	return res, nil
}

func (r *stubRemote) argsOf(service string) (remote.Args, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	args, ok := r.calls[service]
	return args, ok
}

// stubPush is a push channel the test feeds by hand
type stubPush struct {
	ch   chan channel.Notification
	once sync.Once
}

func (p *stubPush) Notifications() <-chan channel.Notification { return p.ch }

func (p *stubPush) Err() error { return nil }

func (p *stubPush) Close() error {
	p.once.Do(func() { close(p.ch) })
	return nil
}

type fixture struct {
	server *Server
	remote *stubRemote
	target types.Target
	push   *stubPush
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{remote: &stubRemote{rows: map[string][]string{}, calls: map[string]remote.Args{}}}
	connect := func(_ context.Context, target types.Target) (remote.Invoker, dap.PushChannel, error) {
		f.target = target
		f.push = &stubPush{ch: make(chan channel.Notification, 8)}
		return f.remote, f.push, nil
	}

	cfg := config.DefaultConfig()
	cfg.PathStyle = config.PathStylePosix
	f.server = NewServer(cfg, WithConnector(connect))
	t.Cleanup(f.server.Close)
	return f
}

func toolRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func (f *fixture) attach(t *testing.T) {
	t.Helper()
	res, err := f.server.handleAttach(context.Background(), toolRequest(map[string]any{
		"thingworxDomain": "twx.local",
		"thingworxPort":   float64(8443),
		"thingworxAppKey": "k-1",
		"useSSL":          true,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
}

// TestNewServer_RegistersTools verifies the full tool surface is registered.
func TestNewServer_RegistersTools(t *testing.T) {
	f := newFixture(t)

	var names []string
	for name := range f.server.mcpServer.ListTools() {
		names = append(names, name)
	}
	sort.Strings(names)

	require.Equal(t, []string{
		"twx_attach",
		"twx_breakpoints",
		"twx_continue",
		"twx_disconnect",
		"twx_evaluate",
		"twx_exception_breakpoints",
		"twx_list_configs",
		"twx_pause",
		"twx_scopes",
		"twx_set_variable",
		"twx_stack",
		"twx_status",
		"twx_step",
		"twx_threads",
		"twx_variables",
	}, names)
}

// TestAttach verifies the tool arguments become the session target.
func TestAttach(t *testing.T) {
	f := newFixture(t)
	f.attach(t)

	require.Equal(t, types.Target{Domain: "twx.local", Port: 8443, UseSSL: true, AppKey: "k-1"}, f.target)
	require.Equal(t, types.SessionStatusAttached, f.server.Session().Status())
	_, called := f.remote.argsOf(remote.ServiceConnectDebugger)
	require.True(t, called)
}

// TestAttach_MissingParameter verifies required arguments are checked before attaching.
func TestAttach_MissingParameter(t *testing.T) {
	f := newFixture(t)

	res, err := f.server.handleAttach(context.Background(), toolRequest(map[string]any{
		"thingworxDomain": "twx.local",
		"thingworxPort":   float64(8443),
		"useSSL":          true,
	}))
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, resultText(t, res), "thingworxAppKey")
	require.Equal(t, types.SessionStatusDisconnected, f.server.Session().Status())
}

// TestThreads_NotAttached verifies session errors surface as tool errors.
func TestThreads_NotAttached(t *testing.T) {
	f := newFixture(t)

	res, err := f.server.handleThreads(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, resultText(t, res), "threads failed")
	require.Contains(t, resultText(t, res), "notAttached")
}

// TestInspectionChain verifies threads, stack, scopes and variables through the tools.
func TestInspectionChain(t *testing.T) {
	f := newFixture(t)
	f.remote.rows[remote.ServiceGetThreads] = []string{`{"id":7}`}
	f.remote.rows[remote.ServiceGetStackTraceInThread] = []string{`{"id":100,"name":"run","path":"/things/run.js","line":3}`}
	f.remote.rows[remote.ServiceGetScopesInThread] = []string{`{"name":"Local","variablesReference":11}`}
	f.remote.rows[remote.ServiceGetVariableContents] = []string{`{"name":"x","value":"42","type":"number"}`}
	f.attach(t)
	ctx := context.Background()

	res, err := f.server.handleThreads(ctx, toolRequest(nil))
	require.NoError(t, err)
	require.JSONEq(t, `{"threads":[{"id":7,"name":"Thread 7"}]}`, resultText(t, res))

	res, err = f.server.handleStack(ctx, toolRequest(map[string]any{"threadId": float64(7)}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	require.Contains(t, resultText(t, res), `"id":100`)

	res, err = f.server.handleScopes(ctx, toolRequest(map[string]any{"frameId": float64(100)}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	args, _ := f.remote.argsOf(remote.ServiceGetScopesInThread)
	require.Equal(t, 7, args["threadID"])

	res, err = f.server.handleVariables(ctx, toolRequest(map[string]any{"variablesReference": float64(11)}))
	require.NoError(t, err)
	require.Contains(t, resultText(t, res), `"value":"42"`)
}

// TestBreakpoints verifies the JSON breakpoint argument.
func TestBreakpoints(t *testing.T) {
	f := newFixture(t)
	f.remote.rows[remote.ServiceSetBreakpointsForFile] = []string{`{"id":1,"verified":true,"line":12}`}
	f.attach(t)

	res, err := f.server.handleBreakpoints(context.Background(), toolRequest(map[string]any{
		"path":        "/things/run.js",
		"breakpoints": `[{"line":12,"condition":"x > 1"}]`,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	require.Contains(t, resultText(t, res), `"verified":true`)

	res, err = f.server.handleBreakpoints(context.Background(), toolRequest(map[string]any{
		"path":        "/things/run.js",
		"breakpoints": `{"line":12}`,
	}))
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, resultText(t, res), "breakpoints")
}

// TestStep verifies the step type picks the remote service.
func TestStep(t *testing.T) {
	tests := []struct {
		stepType string
		service  string
	}{
		{"over", remote.ServiceStepOverThread},
		{"into", remote.ServiceStepInThread},
		{"out", remote.ServiceStepOutThread},
	}

	for _, tc := range tests {
		t.Run(tc.stepType, func(t *testing.T) {
			f := newFixture(t)
			f.attach(t)

			res, err := f.server.handleStep(context.Background(), toolRequest(map[string]any{
				"threadId": float64(4),
				"type":     tc.stepType,
			}))
			require.NoError(t, err)
			require.False(t, res.IsError, resultText(t, res))
			args, called := f.remote.argsOf(tc.service)
			require.True(t, called)
			require.Equal(t, 4, args["threadID"])
		})
	}

	f := newFixture(t)
	res, err := f.server.handleStep(context.Background(), toolRequest(map[string]any{
		"threadId": float64(4),
		"type":     "sideways",
	}))
	require.NoError(t, err)
	require.True(t, res.IsError)
}

// TestStatus verifies pushed events are reported by twx_status.
func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.attach(t)

	f.push.ch <- channel.Notification{Kind: channel.KindLog, Body: "hello", Level: channel.LevelInfo}
	f.push.ch <- channel.Notification{Kind: channel.KindSuspended, ThreadID: 3, Reason: "breakpoint"}

	var status struct {
		Session     types.SessionInfo `json:"session"`
		LastStopped *struct {
			Reason   string `json:"reason"`
			ThreadID int    `json:"threadId"`
		} `json:"lastStopped"`
		Output []string `json:"output"`
	}
	require.Eventually(t, func() bool {
		res, err := f.server.handleStatus(context.Background(), toolRequest(nil))
		if err != nil || res.IsError {
			return false
		}
		if err := json.Unmarshal([]byte(resultText(t, res)), &status); err != nil {
			return false
		}
		return status.LastStopped != nil
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, types.SessionStatusAttached, status.Session.Status)
	require.Equal(t, 3, status.LastStopped.ThreadID)
	require.Equal(t, []string{"hello"}, status.Output)
}

// TestDisconnect verifies detaching through the tool.
func TestDisconnect(t *testing.T) {
	f := newFixture(t)
	f.attach(t)

	res, err := f.server.handleDisconnect(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	require.Equal(t, types.SessionStatusDisconnected, f.server.Session().Status())
}

// TestAttach_LaunchConfig verifies attaching from a launch.json configuration.
func TestAttach_LaunchConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".vscode"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".vscode", "launch.json"), []byte(`{
		"version": "0.2.0",
		"configurations": [{
			"type": "thingworx",
			"request": "attach",
			"name": "Dev",
			"thingworxDomain": "twx.dev",
			"thingworxPort": 8080,
			"thingworxAppKey": "${input:appKey}",
			"useSSL": false
		}]
	}`), 0644))

	f := newFixture(t)
	ctx := context.Background()

	res, err := f.server.handleListConfigs(ctx, toolRequest(map[string]any{"workspace": dir}))
	require.NoError(t, err)
	require.Contains(t, resultText(t, res), `"name":"Dev"`)

	res, err = f.server.handleAttach(ctx, toolRequest(map[string]any{"configName": "Dev", "workspace": dir}))
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, resultText(t, res), "appKey")

	res, err = f.server.handleAttach(ctx, toolRequest(map[string]any{
		"configName":  "Dev",
		"workspace":   dir,
		"inputValues": `{"appKey":"k-9"}`,
		"useSSL":      true,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	require.Equal(t, types.Target{Domain: "twx.dev", Port: 8080, UseSSL: true, AppKey: "k-9"}, f.target)
}
