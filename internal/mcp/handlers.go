package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/go-dap"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ctagard/twx-dap/internal/errors"
	"github.com/ctagard/twx-dap/internal/launchconfig"
	"github.com/ctagard/twx-dap/pkg/types"
)

// Session Handlers

// attachHints explains each attach field when it is missing
var attachHints = map[string]string{
	"thingworxDomain": "Specify the host name of the ThingWorx server, e.g. 'twx.example.com', or use configName",
	"thingworxPort":   "Specify the port of the ThingWorx server, e.g. 8443, or use configName",
	"thingworxAppKey": "Specify an application key that can call BMDebugServer services, or use configName",
	"useSSL":          "Specify true for https/wss or false for http/ws, or use configName",
}

func (s *Server) handleAttach(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	attachArgs := &types.AttachArguments{}
	if configName := request.GetString("configName", ""); configName != "" {
		resolved, failed := s.attachArgsFromConfig(request, configName)
		if failed != nil {
			return failed, nil
		}
		attachArgs = resolved
	}

	// Explicit fields win over the launch configuration.
	if domain, err := request.RequireString("thingworxDomain"); err == nil {
		attachArgs.ThingworxDomain = &domain
	}
	if port, err := request.RequireFloat("thingworxPort"); err == nil {
		attachArgs.ThingworxPort = &port
	}
	if appKey, err := request.RequireString("thingworxAppKey"); err == nil {
		attachArgs.ThingworxAppKey = &appKey
	}
	if useSSL, err := request.RequireBool("useSSL"); err == nil {
		attachArgs.UseSSL = &useSSL
	}

	if missing := attachArgs.MissingFields(); len(missing) > 0 {
		return mcp.NewToolResultError(errors.MissingParameter(missing[0], attachHints[missing[0]]).Error()), nil
	}

	args, err := json.Marshal(attachArgs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode attach arguments: %v", err)), nil
	}

	s.events.reset()
	req := &dap.AttachRequest{Request: s.newRequest("attach"), Arguments: args}
	if _, failed := s.call(ctx, req); failed != nil {
		return failed, nil
	}

	return jsonResult(s.session.Info())
}

// attachArgsFromConfig resolves a named launch.json configuration
func (s *Server) attachArgsFromConfig(request mcp.CallToolRequest, configName string) (*types.AttachArguments, *mcp.CallToolResult) {
	lj, configPath, err := loadLaunchJSON(request)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("failed to load launch.json: %v", err))
	}

	cfg, err := launchconfig.FindConfiguration(lj, configName)
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}

	resCtx := &launchconfig.ResolutionContext{
		WorkspaceFolder: launchconfig.GetWorkspaceFolder(configPath),
	}
	if inputValuesJSON := request.GetString("inputValues", ""); inputValuesJSON != "" {
		if err := json.Unmarshal([]byte(inputValuesJSON), &resCtx.InputValues); err != nil {
			return nil, mcp.NewToolResultError(errors.InvalidParameter("inputValues", inputValuesJSON,
				"a JSON object of strings").Error())
		}
	}

	resolved, err := launchconfig.ResolveAttachArguments(cfg, resCtx)
	if err != nil {
		if missingErr, ok := launchconfig.IsMissingInputsError(err); ok {
			return nil, mcp.NewToolResultError(fmt.Sprintf("missing input values: %v. Provide them via the inputValues parameter.", missingErr.Inputs))
		}
		return nil, mcp.NewToolResultError(fmt.Sprintf("failed to resolve configuration %q: %v", configName, err))
	}

	s.logger.Debug("resolved launch configuration",
		zap.String("config", configName), zap.String("path", configPath))
	return resolved, nil
}

func (s *Server) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lj, configPath, err := loadLaunchJSON(request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load launch.json: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{
		"path":           configPath,
		"configurations": launchconfig.ListConfigurations(lj),
	})
}

// loadLaunchJSON loads configPath when given, otherwise searches from workspace
func loadLaunchJSON(request mcp.CallToolRequest) (*launchconfig.LaunchJSON, string, error) {
	if configPath := request.GetString("configPath", ""); configPath != "" {
		lj, err := launchconfig.LoadFromPath(configPath)
		return lj, configPath, err
	}
	return launchconfig.LoadAndDiscover(request.GetString("workspace", ""))
}

func (s *Server) handleDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := &dap.DisconnectRequest{Request: s.newRequest("disconnect")}
	if _, failed := s.call(ctx, req); failed != nil {
		return failed, nil
	}
	return mcp.NewToolResultText("Detached from the ThingWorx debug server"), nil
}

// statusResult is the payload of twx_status
type statusResult struct {
	Session types.SessionInfo `json:"session"`
	snapshot
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lines := int(request.GetFloat("outputLines", 50))
	return jsonResult(statusResult{
		Session:  s.session.Info(),
		snapshot: s.events.snapshot(lines),
	})
}

// Inspection Handlers

func (s *Server) handleThreads(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, failed := s.call(ctx, &dap.ThreadsRequest{Request: s.newRequest("threads")})
	if failed != nil {
		return failed, nil
	}
	return jsonResult(resp.(*dap.ThreadsResponse).Body)
}

func (s *Server) handleStack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID, err := request.RequireFloat("threadId")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("threadId",
			"Use twx_threads or twx_status to find the suspended thread").Error()), nil
	}

	req := &dap.StackTraceRequest{Request: s.newRequest("stackTrace")}
	req.Arguments = dap.StackTraceArguments{
		ThreadId:   int(threadID),
		StartFrame: int(request.GetFloat("startFrame", 0)),
		Levels:     int(request.GetFloat("levels", 0)),
	}
	resp, failed := s.call(ctx, req)
	if failed != nil {
		return failed, nil
	}
	return jsonResult(resp.(*dap.StackTraceResponse).Body)
}

func (s *Server) handleScopes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	frameID, err := request.RequireFloat("frameId")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("frameId",
			"Use twx_stack to list the frames of a suspended thread").Error()), nil
	}

	req := &dap.ScopesRequest{Request: s.newRequest("scopes")}
	req.Arguments.FrameId = int(frameID)
	resp, failed := s.call(ctx, req)
	if failed != nil {
		return failed, nil
	}
	return jsonResult(resp.(*dap.ScopesResponse).Body)
}

func (s *Server) handleVariables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireFloat("variablesReference")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("variablesReference",
			"Use twx_scopes to find the reference of a scope").Error()), nil
	}

	req := &dap.VariablesRequest{Request: s.newRequest("variables")}
	req.Arguments = dap.VariablesArguments{
		VariablesReference: int(ref),
		Filter:             request.GetString("filter", ""),
		Start:              int(request.GetFloat("start", 0)),
		Count:              int(request.GetFloat("count", 0)),
	}
	resp, failed := s.call(ctx, req)
	if failed != nil {
		return failed, nil
	}
	return jsonResult(resp.(*dap.VariablesResponse).Body)
}

func (s *Server) handleEvaluate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expression, err := request.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("expression",
			"Provide a JavaScript expression, e.g. 'me.name'").Error()), nil
	}

	req := &dap.EvaluateRequest{Request: s.newRequest("evaluate")}
	req.Arguments = dap.EvaluateArguments{
		Expression: expression,
		FrameId:    int(request.GetFloat("frameId", 0)),
		Context:    request.GetString("context", "repl"),
	}
	resp, failed := s.call(ctx, req)
	if failed != nil {
		return failed, nil
	}
	return jsonResult(resp.(*dap.EvaluateResponse).Body)
}

// Control Handlers

func (s *Server) handleBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("path",
			"Specify the script path the breakpoints belong to").Error()), nil
	}
	raw, err := request.RequireString("breakpoints")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("breakpoints",
			"Provide a JSON array such as [{\"line\": 12}]; use [] to clear the file").Error()), nil
	}

	var breakpoints []dap.SourceBreakpoint
	if err := json.Unmarshal([]byte(raw), &breakpoints); err != nil {
		return mcp.NewToolResultError(errors.InvalidParameter("breakpoints", raw,
			"a JSON array of {line, column?, condition?, hitCondition?, logMessage?}").Error()), nil
	}

	req := &dap.SetBreakpointsRequest{Request: s.newRequest("setBreakpoints")}
	req.Arguments = dap.SetBreakpointsArguments{
		Source:      dap.Source{Path: path},
		Breakpoints: breakpoints,
	}
	resp, failed := s.call(ctx, req)
	if failed != nil {
		return failed, nil
	}
	return jsonResult(resp.(*dap.SetBreakpointsResponse).Body)
}

func (s *Server) handleExceptionBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filters := []string{}
	for _, id := range []string{"exceptions", "caughtExceptions", "uncaughtExceptions"} {
		if request.GetBool(id, false) {
			filters = append(filters, id)
		}
	}

	req := &dap.SetExceptionBreakpointsRequest{Request: s.newRequest("setExceptionBreakpoints")}
	req.Arguments.Filters = filters
	if _, failed := s.call(ctx, req); failed != nil {
		return failed, nil
	}
	return jsonResult(map[string]interface{}{"enabled": filters})
}

func (s *Server) handleContinue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID, err := request.RequireFloat("threadId")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("threadId", "Specify the thread to continue").Error()), nil
	}

	req := &dap.ContinueRequest{Request: s.newRequest("continue")}
	req.Arguments = dap.ContinueArguments{
		ThreadId:     int(threadID),
		SingleThread: request.GetBool("singleThread", false),
	}
	resp, failed := s.call(ctx, req)
	if failed != nil {
		return failed, nil
	}
	return jsonResult(resp.(*dap.ContinueResponse).Body)
}

func (s *Server) handleStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID, err := request.RequireFloat("threadId")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("threadId", "Specify the suspended thread to step").Error()), nil
	}
	stepType, err := request.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("type", "Use 'over', 'into' or 'out'").Error()), nil
	}

	var req dap.RequestMessage
	switch stepType {
	case "over":
		r := &dap.NextRequest{Request: s.newRequest("next")}
		r.Arguments.ThreadId = int(threadID)
		req = r
	case "into":
		r := &dap.StepInRequest{Request: s.newRequest("stepIn")}
		r.Arguments.ThreadId = int(threadID)
		req = r
	case "out":
		r := &dap.StepOutRequest{Request: s.newRequest("stepOut")}
		r.Arguments.ThreadId = int(threadID)
		req = r
	default:
		return mcp.NewToolResultError(errors.InvalidParameter("type", stepType, "'over', 'into' or 'out'").Error()), nil
	}

	if _, failed := s.call(ctx, req); failed != nil {
		return failed, nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Stepped %s on thread %d", stepType, int(threadID))), nil
}

func (s *Server) handlePause(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID, err := request.RequireFloat("threadId")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("threadId", "Specify the thread to pause").Error()), nil
	}

	req := &dap.PauseRequest{Request: s.newRequest("pause")}
	req.Arguments.ThreadId = int(threadID)
	if _, failed := s.call(ctx, req); failed != nil {
		return failed, nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Pause requested for thread %d", int(threadID))), nil
}

func (s *Server) handleSetVariable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireFloat("variablesReference")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("variablesReference",
			"Use twx_scopes or twx_variables to find the container").Error()), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("name", "Specify the variable to modify").Error()), nil
	}
	value, err := request.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("value", "Specify the new value").Error()), nil
	}

	req := &dap.SetVariableRequest{Request: s.newRequest("setVariable")}
	req.Arguments = dap.SetVariableArguments{
		VariablesReference: int(ref),
		Name:               name,
		Value:              value,
	}
	resp, failed := s.call(ctx, req)
	if failed != nil {
		return failed, nil
	}
	return jsonResult(resp.(*dap.SetVariableResponse).Body)
}

// Helpers

func (s *Server) newRequest(command string) dap.Request {
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: s.nextSeq(), Type: "request"},
		Command:         command,
	}
}

// call runs a request through the session. A failed request yields a tool error.
func (s *Server) call(ctx context.Context, req dap.RequestMessage) (dap.Message, *mcp.CallToolResult) {
	resp := s.session.Handle(ctx, req)
	if errResp, ok := resp.(*dap.ErrorResponse); ok {
		msg := fmt.Sprintf("%s failed: %s (%s)", req.GetRequest().Command, errResp.Body.Error.Format, errResp.Message)
		return nil, mcp.NewToolResultError(msg)
	}
	return resp, nil
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
