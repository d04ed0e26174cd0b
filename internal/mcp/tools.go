package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the twx_* tool set
func (s *Server) registerTools() {
	// Session
	s.registerAttach()
	s.registerDisconnect()
	s.registerStatus()
	s.registerListConfigs()

	// Inspection
	s.registerThreads()
	s.registerStack()
	s.registerScopes()
	s.registerVariables()
	s.registerEvaluate()

	// Control
	s.registerBreakpoints()
	s.registerExceptionBreakpoints()
	s.registerContinue()
	s.registerStep()
	s.registerPause()
	s.registerSetVariable()
}

// Session Tools

func (s *Server) registerAttach() {
	tool := mcp.NewTool("twx_attach",
		mcp.WithDescription("Attach to the BMDebugServer of a ThingWorx instance. Opens the authenticated debugger socket and enables debugging. Set breakpoints after attaching. Either pass the connection fields or name a 'thingworx' attach configuration from .vscode/launch.json with configName; explicit fields override the configuration."),
		mcp.WithString("thingworxDomain",
			mcp.Description("Host name of the ThingWorx server, e.g. 'twx.example.com'"),
		),
		mcp.WithNumber("thingworxPort",
			mcp.Description("Port of the ThingWorx server, e.g. 8443"),
		),
		mcp.WithString("thingworxAppKey",
			mcp.Description("Application key with access to the BMDebugServer thing"),
		),
		mcp.WithBoolean("useSSL",
			mcp.Description("Use https and wss instead of http and ws"),
		),
		mcp.WithString("configName",
			mcp.Description("Name of a launch.json configuration to attach with"),
		),
		mcp.WithString("workspace",
			mcp.Description("Directory to search for .vscode/launch.json (default: current directory)"),
		),
		mcp.WithString("configPath",
			mcp.Description("Explicit path to a launch.json file"),
		),
		mcp.WithString("inputValues",
			mcp.Description("JSON object of values for ${input:...} variables, e.g. '{\"appKey\": \"...\"}'"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleAttach)
}

func (s *Server) registerListConfigs() {
	tool := mcp.NewTool("twx_list_configs",
		mcp.WithDescription("List the ThingWorx attach configurations of a .vscode/launch.json file. Variables are shown unresolved."),
		mcp.WithString("workspace",
			mcp.Description("Directory to search for .vscode/launch.json (default: current directory)"),
		),
		mcp.WithString("configPath",
			mcp.Description("Explicit path to a launch.json file"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleListConfigs)
}

func (s *Server) registerDisconnect() {
	tool := mcp.NewTool("twx_disconnect",
		mcp.WithDescription("Detach from the ThingWorx debug server. Suspended threads are released by the server."),
	)
	s.mcpServer.AddTool(tool, s.handleDisconnect)
}

func (s *Server) registerStatus() {
	tool := mcp.NewTool("twx_status",
		mcp.WithDescription("Report the connection state, the last stop (reason and thread) and recent script log output."),
		mcp.WithNumber("outputLines",
			mcp.Description("Number of recent output lines to include (default: 50)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleStatus)
}

// Inspection Tools

func (s *Server) registerThreads() {
	tool := mcp.NewTool("twx_threads",
		mcp.WithDescription("List the script threads known to the debug server."),
	)
	s.mcpServer.AddTool(tool, s.handleThreads)
}

func (s *Server) registerStack() {
	tool := mcp.NewTool("twx_stack",
		mcp.WithDescription("Get the stack trace of a suspended thread. Frame ids returned here are needed by twx_scopes and twx_evaluate."),
		mcp.WithNumber("threadId",
			mcp.Required(),
			mcp.Description("The thread ID (from twx_threads or twx_status)"),
		),
		mcp.WithNumber("startFrame",
			mcp.Description("Index of the first frame to return (default: 0)"),
		),
		mcp.WithNumber("levels",
			mcp.Description("Maximum number of frames to return (default: all)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleStack)
}

func (s *Server) registerScopes() {
	tool := mcp.NewTool("twx_scopes",
		mcp.WithDescription("List the variable scopes of a stack frame. Use the variablesReference of a scope with twx_variables."),
		mcp.WithNumber("frameId",
			mcp.Required(),
			mcp.Description("The frame ID (from twx_stack)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleScopes)
}

func (s *Server) registerVariables() {
	tool := mcp.NewTool("twx_variables",
		mcp.WithDescription("List the variables of a scope or of a structured variable."),
		mcp.WithNumber("variablesReference",
			mcp.Required(),
			mcp.Description("The variables reference (from twx_scopes or a previous twx_variables)"),
		),
		mcp.WithString("filter",
			mcp.Description("Restrict to 'indexed' or 'named' children"),
		),
		mcp.WithNumber("start",
			mcp.Description("Index of the first child to return"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of children to return"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleVariables)
}

func (s *Server) registerEvaluate() {
	tool := mcp.NewTool("twx_evaluate",
		mcp.WithDescription("Evaluate a JavaScript expression in a stack frame, or globally when no frame is given."),
		mcp.WithString("expression",
			mcp.Required(),
			mcp.Description("The expression to evaluate, e.g. 'me.name' or 'result.length'"),
		),
		mcp.WithNumber("frameId",
			mcp.Description("Stack frame ID for context (default: global)"),
		),
		mcp.WithString("context",
			mcp.Description("Evaluation context: 'watch', 'hover', or 'repl' (default: 'repl')"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleEvaluate)
}

// Control Tools

func (s *Server) registerBreakpoints() {
	tool := mcp.NewTool("twx_breakpoints",
		mcp.WithDescription("Set breakpoints in a service script. This REPLACES all breakpoints in the file - include all desired breakpoints in each call. Works before attaching; the call waits for the attach."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("The script path as the server indexes it"),
		),
		mcp.WithString("breakpoints",
			mcp.Required(),
			mcp.Description("JSON array of breakpoints: [{line: number, column?: number, condition?: string, hitCondition?: string, logMessage?: string}]"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleBreakpoints)
}

func (s *Server) registerExceptionBreakpoints() {
	tool := mcp.NewTool("twx_exception_breakpoints",
		mcp.WithDescription("Choose when to break on exceptions. Omitted filters are disabled."),
		mcp.WithBoolean("exceptions",
			mcp.Description("Break on every exception (default: false)"),
		),
		mcp.WithBoolean("caughtExceptions",
			mcp.Description("Break on exceptions handled by a catch block (default: false)"),
		),
		mcp.WithBoolean("uncaughtExceptions",
			mcp.Description("Break on exceptions that escape the service (default: false)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleExceptionBreakpoints)
}

func (s *Server) registerContinue() {
	tool := mcp.NewTool("twx_continue",
		mcp.WithDescription("Resume execution. Resumes every thread unless singleThread is true. Returns immediately - use twx_status to see the next stop."),
		mcp.WithNumber("threadId",
			mcp.Required(),
			mcp.Description("The thread ID to continue"),
		),
		mcp.WithBoolean("singleThread",
			mcp.Description("Resume only the given thread (default: false)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleContinue)
}

func (s *Server) registerStep() {
	tool := mcp.NewTool("twx_step",
		mcp.WithDescription("Step a suspended thread. Use type='over' for the next line, 'into' to enter a call, 'out' to leave the current function. Follow with twx_status to see where it stopped."),
		mcp.WithNumber("threadId",
			mcp.Required(),
			mcp.Description("The thread ID to step"),
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Step type: 'over', 'into' or 'out'"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleStep)
}

func (s *Server) registerPause() {
	tool := mcp.NewTool("twx_pause",
		mcp.WithDescription("Suspend a running script thread."),
		mcp.WithNumber("threadId",
			mcp.Required(),
			mcp.Description("The thread ID to pause"),
		),
	)
	s.mcpServer.AddTool(tool, s.handlePause)
}

func (s *Server) registerSetVariable() {
	tool := mcp.NewTool("twx_set_variable",
		mcp.WithDescription("Modify the value of a variable in a suspended thread."),
		mcp.WithNumber("variablesReference",
			mcp.Required(),
			mcp.Description("The variables reference containing the variable (from twx_scopes or twx_variables)"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("The variable name to modify"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("The new value, as a JavaScript expression"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleSetVariable)
}
