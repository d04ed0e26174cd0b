// Package mcp exposes the ThingWorx debug adapter as Model Context Protocol tools.
//
// Every tool builds the same DAP request an editor would send and runs it through
// the session's request dispatch, so tools and editors share one translation path:
//
// Session:
//   - twx_attach: Attach to a BMDebugServer
//   - twx_disconnect: Detach from the server
//   - twx_status: Connection state, last stop and recent output
//   - twx_list_configs: ThingWorx attach configurations in .vscode/launch.json
//
// Inspection:
//   - twx_threads, twx_stack, twx_scopes, twx_variables, twx_evaluate
//
// Control:
//   - twx_breakpoints, twx_exception_breakpoints, twx_continue, twx_step,
//     twx_pause, twx_set_variable
package mcp

import (
	"sync/atomic"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ctagard/twx-dap/internal/config"
	"github.com/ctagard/twx-dap/internal/dap"
	"github.com/ctagard/twx-dap/internal/version"
)

// Server wraps the MCP server around a single debug session
type Server struct {
	mcpServer *server.MCPServer
	session   *dap.Session
	events    *eventRecorder
	config    *config.Config
	logger    *zap.Logger
	seq       atomic.Int64
}

// Option configures a Server
type Option func(*options)

type options struct {
	logger  *zap.Logger
	connect dap.Connector
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithConnector replaces the connector used when attaching
func WithConnector(connect dap.Connector) Option {
	return func(o *options) {
		o.connect = connect
	}
}

// NewServer creates an MCP server with all tools registered
func NewServer(cfg *config.Config, opts ...Option) *Server {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	mcpServer := server.NewMCPServer(
		"twx-dap",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	events := newEventRecorder(defaultOutputLines)
	sessionOpts := []dap.SessionOption{dap.WithLogger(o.logger)}
	if o.connect != nil {
		sessionOpts = append(sessionOpts, dap.WithConnector(o.connect))
	}

	s := &Server{
		mcpServer: mcpServer,
		session:   dap.NewSession(cfg, events, sessionOpts...),
		events:    events,
		config:    cfg,
		logger:    o.logger,
	}

	s.registerTools()

	return s
}

// ServeStdio starts the server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Close detaches the session if it is still attached
func (s *Server) Close() {
	s.session.Close()
}

// Session returns the debug session driven by the tools
func (s *Server) Session() *dap.Session {
	return s.session
}

// nextSeq numbers the synthetic requests issued by tools
func (s *Server) nextSeq() int {
	return int(s.seq.Add(1))
}
