package dap

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/go-dap"
	"go.uber.org/zap"

	twxerrors "github.com/ctagard/twx-dap/internal/errors"
	"github.com/ctagard/twx-dap/internal/remote"
	"github.com/ctagard/twx-dap/pkg/types"
)

// Error formats shown to the user. Details stay in the adapter log.
const (
	formatUnableToProcess = "Unable to process request"
	formatUnsupported     = "Operation not supported"
)

// Serve handles a request and sends its response. After a successful initialize
// response the initialized event follows so the frontend starts configuration.
func (s *Session) Serve(ctx context.Context, req dap.RequestMessage) {
	resp := s.Handle(ctx, req)
	s.emit(resp)

	if _, ok := req.(*dap.InitializeRequest); ok {
		if r, ok := resp.(dap.ResponseMessage); ok && r.GetResponse().Success {
			s.emit(&dap.InitializedEvent{Event: newEvent("initialized")})
		}
	}
}

// Handle produces exactly one response for a request. Failures of any kind,
// including a panic in translation code, become an error response.
func (s *Session) Handle(ctx context.Context, req dap.RequestMessage) (resp dap.Message) {
	r := req.GetRequest()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestDeadline())
	defer cancel()

	s.cancels.Begin(r.Seq)
	defer s.cancels.End(r.Seq)

	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("panic while handling request",
				zap.String("command", r.Command), zap.Int("seq", r.Seq), zap.Any("panic", p))
			resp = s.errorResponse(r, fmt.Errorf("panic: %v", p))
		}
	}()

	return s.dispatch(ctx, req)
}

func (s *Session) dispatch(ctx context.Context, req dap.RequestMessage) dap.Message {
	switch r := req.(type) {
	case *dap.InitializeRequest:
		return s.onInitialize(r)
	case *dap.ConfigurationDoneRequest:
		return &dap.ConfigurationDoneResponse{Response: newResponse(&r.Request)}
	case *dap.AttachRequest:
		return s.onAttach(ctx, r)
	case *dap.DisconnectRequest:
		return s.onDisconnect(ctx, r)
	case *dap.SetBreakpointsRequest:
		return s.onSetBreakpoints(ctx, r)
	case *dap.BreakpointLocationsRequest:
		return s.onBreakpointLocations(ctx, r)
	case *dap.SetExceptionBreakpointsRequest:
		return s.onSetExceptionBreakpoints(ctx, r)
	case *dap.ExceptionInfoRequest:
		return s.onExceptionInfo(ctx, r)
	case *dap.ThreadsRequest:
		return s.onThreads(ctx, r)
	case *dap.StackTraceRequest:
		return s.onStackTrace(ctx, r)
	case *dap.ScopesRequest:
		return s.onScopes(ctx, r)
	case *dap.VariablesRequest:
		return s.onVariables(ctx, r)
	case *dap.SetVariableRequest:
		return s.onSetVariable(ctx, r)
	case *dap.PauseRequest:
		return s.onPause(ctx, r)
	case *dap.ContinueRequest:
		return s.onContinue(ctx, r)
	case *dap.NextRequest:
		return s.onStep(ctx, &r.Request, remote.ServiceStepOverThread, r.Arguments.ThreadId, &dap.NextResponse{})
	case *dap.StepInRequest:
		return s.onStep(ctx, &r.Request, remote.ServiceStepInThread, r.Arguments.ThreadId, &dap.StepInResponse{})
	case *dap.StepOutRequest:
		return s.onStep(ctx, &r.Request, remote.ServiceStepOutThread, r.Arguments.ThreadId, &dap.StepOutResponse{})
	case *dap.EvaluateRequest:
		return s.onEvaluate(ctx, r)
	case *dap.CompletionsRequest:
		resp := &dap.CompletionsResponse{Response: newResponse(&r.Request)}
		resp.Body.Targets = []dap.CompletionItem{}
		return resp
	case *dap.CancelRequest:
		return s.onCancel(r)
	default:
		// launch, reverseContinue, stepBack, stepInTargets, setExpression,
		// dataBreakpointInfo, setDataBreakpoints, disassemble,
		// setInstructionBreakpoints and everything else
		return s.errorResponse(req.GetRequest(), twxerrors.Unsupported(req.GetRequest().Command))
	}
}

// RejectUnknown answers a request whose command could not be decoded
func (s *Session) RejectUnknown(seq int, command string) dap.Message {
	return s.errorResponse(&dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "request"},
		Command:         command,
	}, twxerrors.Unsupported(command))
}

// invoke runs one remote call on behalf of a request
func (s *Session) invoke(ctx context.Context, r *dap.Request, queueable bool, service string, args remote.Args) (*remote.Result, error) {
	invoker, err := s.remoteFor(ctx, r.Command, queueable)
	if err != nil {
		return nil, err
	}
	if s.cancels.IsCancelled(r.Seq) {
		return nil, twxerrors.Cancelled(r.Seq)
	}
	return invoker.Invoke(ctx, service, args)
}

// --- session lifecycle ---

func (s *Session) onInitialize(r *dap.InitializeRequest) dap.Message {
	s.logger.Info("frontend connected",
		zap.String("clientID", r.Arguments.ClientID),
		zap.String("adapterID", r.Arguments.AdapterID))

	return &dap.InitializeResponse{
		Response: newResponse(&r.Request),
		Body:     Capabilities(),
	}
}

func (s *Session) onAttach(ctx context.Context, r *dap.AttachRequest) dap.Message {
	var args types.AttachArguments
	if err := json.Unmarshal(r.Arguments, &args); err != nil {
		return s.errorResponse(&r.Request, twxerrors.InvalidParameter("arguments", string(r.Arguments), "an attach configuration object"))
	}
	if missing := args.MissingFields(); len(missing) > 0 {
		return s.errorResponse(&r.Request, twxerrors.MissingParameter(missing[0],
			"thingworxDomain, thingworxPort, thingworxAppKey and useSSL are all required"))
	}

	if err := s.attach(ctx, args.Target()); err != nil {
		// A socket that never opened is reported with the transport's own message.
		if twxerrors.Is(err, twxerrors.CodeSocketDial) {
			if cause := twxerrors.FromError(err).Cause; cause != nil {
				return s.errorResponseFormat(&r.Request, err, cause.Error())
			}
		}
		return s.errorResponse(&r.Request, err)
	}
	return &dap.AttachResponse{Response: newResponse(&r.Request)}
}

func (s *Session) onDisconnect(ctx context.Context, r *dap.DisconnectRequest) dap.Message {
	if err := s.disconnect(ctx); err != nil {
		return s.errorResponse(&r.Request, err)
	}
	return &dap.DisconnectResponse{Response: newResponse(&r.Request)}
}

func (s *Session) onCancel(r *dap.CancelRequest) dap.Message {
	if r.Arguments != nil && r.Arguments.RequestId != 0 {
		if !s.cancels.Cancel(r.Arguments.RequestId) {
			s.logger.Debug("cancel for request not in flight", zap.Int("requestSeq", r.Arguments.RequestId))
		}
	}
	return &dap.CancelResponse{Response: newResponse(&r.Request)}
}

// --- breakpoints ---

// breakpointSpec is the wire shape of one requested breakpoint
type breakpointSpec struct {
	Line         int    `json:"line"`
	Column       int    `json:"column,omitempty"`
	Condition    string `json:"condition,omitempty"`
	HitCondition string `json:"hitCondition,omitempty"`
	LogMessage   string `json:"logMessage,omitempty"`
}

func (s *Session) onSetBreakpoints(ctx context.Context, r *dap.SetBreakpointsRequest) dap.Message {
	source := r.Arguments.Source
	path := NormalizePath(source.Path, s.pathStyle)

	specs := make([]breakpointSpec, 0, len(r.Arguments.Breakpoints))
	for _, bp := range r.Arguments.Breakpoints {
		specs = append(specs, breakpointSpec{
			Line:         bp.Line,
			Column:       bp.Column,
			Condition:    bp.Condition,
			HitCondition: bp.HitCondition,
			LogMessage:   bp.LogMessage,
		})
	}
	// Older clients send bare line numbers.
	if len(specs) == 0 {
		for _, line := range r.Arguments.Lines {
			specs = append(specs, breakpointSpec{Line: line})
		}
	}

	res, err := s.invoke(ctx, &r.Request, true, remote.ServiceSetBreakpointsForFile, remote.Args{
		"path":        path,
		"breakpoints": specs,
	})
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}
	rows, err := remote.DecodeRows[remote.BreakpointRow](res)
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}

	resp := &dap.SetBreakpointsResponse{Response: newResponse(&r.Request)}
	resp.Body.Breakpoints = make([]dap.Breakpoint, 0, len(rows))
	for _, row := range rows {
		resp.Body.Breakpoints = append(resp.Body.Breakpoints, dap.Breakpoint{
			Id:        row.ID,
			Verified:  *row.Verified,
			Message:   row.Message,
			Source:    &dap.Source{Name: baseName(source.Path), Path: source.Path},
			Line:      row.Line,
			Column:    row.Column,
			EndLine:   row.EndLine,
			EndColumn: row.EndColumn,
		})
	}
	return resp
}

func (s *Session) onBreakpointLocations(ctx context.Context, r *dap.BreakpointLocationsRequest) dap.Message {
	resp := &dap.BreakpointLocationsResponse{Response: newResponse(&r.Request)}
	resp.Body.Breakpoints = []dap.BreakpointLocation{}

	if r.Arguments == nil || r.Arguments.Source.Path == "" {
		return resp
	}
	args := r.Arguments

	res, err := s.invoke(ctx, &r.Request, true, remote.ServiceGetBreakpointLocationsInFile, remote.Args{
		"path":      NormalizePath(args.Source.Path, s.pathStyle),
		"line":      args.Line,
		"column":    args.Column,
		"endLine":   args.EndLine,
		"endColumn": args.EndColumn,
	})
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}
	rows, err := remote.DecodeRows[remote.LocationRow](res)
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}

	for _, row := range rows {
		resp.Body.Breakpoints = append(resp.Body.Breakpoints, dap.BreakpointLocation{
			Line:      *row.Line,
			Column:    row.Column,
			EndLine:   row.EndLine,
			EndColumn: row.EndColumn,
		})
	}
	return resp
}

func (s *Session) onSetExceptionBreakpoints(ctx context.Context, r *dap.SetExceptionBreakpointsRequest) dap.Message {
	filters := newExceptionFilterSet(r.Arguments)

	_, err := s.invoke(ctx, &r.Request, true, remote.ServiceSetBreakOnExceptions, remote.Args{
		FilterExceptions:         filters.All,
		FilterCaughtExceptions:   filters.Caught,
		FilterUncaughtExceptions: filters.Uncaught,
	})
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}
	return &dap.SetExceptionBreakpointsResponse{Response: newResponse(&r.Request)}
}

func (s *Session) onExceptionInfo(ctx context.Context, r *dap.ExceptionInfoRequest) dap.Message {
	res, err := s.invoke(ctx, &r.Request, false, remote.ServiceGetExceptionDetails, remote.Args{
		"threadID": r.Arguments.ThreadId,
	})
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}
	raw, err := remote.FirstRaw(res)
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}

	resp := &dap.ExceptionInfoResponse{Response: newResponse(&r.Request)}
	if err := json.Unmarshal(raw, &resp.Body); err != nil {
		return s.errorResponse(&r.Request, twxerrors.Protocol(res.Service, err.Error()))
	}
	return resp
}

// --- threads, stacks and variables ---

func (s *Session) onThreads(ctx context.Context, r *dap.ThreadsRequest) dap.Message {
	res, err := s.invoke(ctx, &r.Request, false, remote.ServiceGetThreads, remote.Args{})
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}
	rows, err := remote.DecodeRows[remote.ThreadRow](res)
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}

	resp := &dap.ThreadsResponse{Response: newResponse(&r.Request)}
	resp.Body.Threads = make([]dap.Thread, 0, len(rows))
	for _, row := range rows {
		resp.Body.Threads = append(resp.Body.Threads, dap.Thread{
			Id:   *row.ID,
			Name: fmt.Sprintf("Thread %d", *row.ID),
		})
	}
	return resp
}

func (s *Session) onStackTrace(ctx context.Context, r *dap.StackTraceRequest) dap.Message {
	threadID := r.Arguments.ThreadId
	res, err := s.invoke(ctx, &r.Request, false, remote.ServiceGetStackTraceInThread, remote.Args{
		"threadID":   threadID,
		"startFrame": r.Arguments.StartFrame,
		"levels":     r.Arguments.Levels,
	})
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}
	rows, err := remote.DecodeRows[remote.FrameRow](res)
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}

	resp := &dap.StackTraceResponse{Response: newResponse(&r.Request)}
	resp.Body.StackFrames = make([]dap.StackFrame, 0, len(rows))
	for _, row := range rows {
		frame := dap.StackFrame{
			Id:        *row.ID,
			Name:      row.Name,
			Line:      row.Line,
			Column:    row.Column,
			EndLine:   row.EndLine,
			EndColumn: row.EndColumn,
		}
		if row.Path != "" {
			frame.Source = &dap.Source{Name: baseName(row.Path), Path: row.Path}
		}
		resp.Body.StackFrames = append(resp.Body.StackFrames, frame)
		s.frames.Record(frame.Id, threadID)
	}
	return resp
}

// threadForFrame resolves the thread that produced a frame
func (s *Session) threadForFrame(frameID int) (int, error) {
	threadID, ok := s.frames.Lookup(frameID)
	if !ok {
		return 0, twxerrors.Correlation(frameID)
	}
	return threadID, nil
}

func (s *Session) onScopes(ctx context.Context, r *dap.ScopesRequest) dap.Message {
	frameID := r.Arguments.FrameId
	threadID, err := s.threadForFrame(frameID)
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}

	res, err := s.invoke(ctx, &r.Request, false, remote.ServiceGetScopesInThread, remote.Args{
		"threadID": threadID,
		"frameID":  frameID,
	})
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}
	rows, err := remote.DecodeRows[remote.ScopeRow](res)
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}

	resp := &dap.ScopesResponse{Response: newResponse(&r.Request)}
	resp.Body.Scopes = make([]dap.Scope, 0, len(rows))
	for _, row := range rows {
		resp.Body.Scopes = append(resp.Body.Scopes, dap.Scope{
			Name:               row.Name,
			VariablesReference: *row.VariablesReference,
			NamedVariables:     row.NamedVariables,
			IndexedVariables:   row.IndexedVariables,
			Expensive:          false,
		})
	}
	return resp
}

func (s *Session) onVariables(ctx context.Context, r *dap.VariablesRequest) dap.Message {
	res, err := s.invoke(ctx, &r.Request, false, remote.ServiceGetVariableContents, remote.Args{
		"variablesReference": r.Arguments.VariablesReference,
		"filter":             r.Arguments.Filter,
		"start":              r.Arguments.Start,
		"count":              r.Arguments.Count,
	})
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}
	rows, err := remote.DecodeRows[remote.VariableRow](res)
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}

	resp := &dap.VariablesResponse{Response: newResponse(&r.Request)}
	resp.Body.Variables = make([]dap.Variable, 0, len(rows))
	for _, row := range rows {
		resp.Body.Variables = append(resp.Body.Variables, dap.Variable{
			Name:               *row.Name,
			Value:              row.Value,
			Type:               row.Type,
			EvaluateName:       row.EvaluateName,
			VariablesReference: row.VariablesReference,
			NamedVariables:     row.NamedVariables,
			IndexedVariables:   row.IndexedVariables,
		})
	}
	return resp
}

func (s *Session) onSetVariable(ctx context.Context, r *dap.SetVariableRequest) dap.Message {
	res, err := s.invoke(ctx, &r.Request, false, remote.ServiceSetVariable, remote.Args{
		"variablesReference": r.Arguments.VariablesReference,
		"name":               r.Arguments.Name,
		"value":              r.Arguments.Value,
	})
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}
	row, err := remote.FirstRow[remote.ValueRow](res)
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}

	resp := &dap.SetVariableResponse{Response: newResponse(&r.Request)}
	resp.Body = dap.SetVariableResponseBody{
		Value:              row.Text(),
		Type:               row.Type,
		VariablesReference: row.VariablesReference,
		NamedVariables:     row.NamedVariables,
		IndexedVariables:   row.IndexedVariables,
	}
	return resp
}

func (s *Session) onEvaluate(ctx context.Context, r *dap.EvaluateRequest) dap.Message {
	args := r.Arguments
	service := remote.ServiceEvaluateGlobally
	callArgs := remote.Args{
		"expression": args.Expression,
		"context":    args.Context,
	}

	// go-dap cannot tell frameId 0 from an absent frame; both evaluate globally.
	if args.FrameId != 0 {
		threadID, err := s.threadForFrame(args.FrameId)
		if err != nil {
			return s.errorResponse(&r.Request, err)
		}
		service = remote.ServiceEvaluate
		callArgs["threadID"] = threadID
		callArgs["frameID"] = args.FrameId
	}

	res, err := s.invoke(ctx, &r.Request, false, service, callArgs)
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}
	row, err := remote.FirstRow[remote.ValueRow](res)
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}

	resp := &dap.EvaluateResponse{Response: newResponse(&r.Request)}
	resp.Body = dap.EvaluateResponseBody{
		Result:             row.Text(),
		Type:               row.Type,
		VariablesReference: row.VariablesReference,
		NamedVariables:     row.NamedVariables,
		IndexedVariables:   row.IndexedVariables,
	}
	return resp
}

// --- execution control ---

func (s *Session) onPause(ctx context.Context, r *dap.PauseRequest) dap.Message {
	_, err := s.invoke(ctx, &r.Request, false, remote.ServiceSuspendThread, remote.Args{
		"threadID": r.Arguments.ThreadId,
	})
	if err != nil {
		return s.errorResponse(&r.Request, err)
	}
	return &dap.PauseResponse{Response: newResponse(&r.Request)}
}

func (s *Session) onContinue(ctx context.Context, r *dap.ContinueRequest) dap.Message {
	service, args := remote.ServiceResumeAllThreads, remote.Args{}
	if r.Arguments.SingleThread {
		service, args = remote.ServiceResumeThread, remote.Args{"threadID": r.Arguments.ThreadId}
	}

	if _, err := s.invoke(ctx, &r.Request, false, service, args); err != nil {
		return s.errorResponse(&r.Request, err)
	}

	resp := &dap.ContinueResponse{Response: newResponse(&r.Request)}
	resp.Body.AllThreadsContinued = !r.Arguments.SingleThread
	return resp
}

// onStep issues a step call. The singleThread flag does not change the service:
// the target only steps the given thread.
func (s *Session) onStep(ctx context.Context, r *dap.Request, service string, threadID int, resp dap.ResponseMessage) dap.Message {
	if _, err := s.invoke(ctx, r, false, service, remote.Args{"threadID": threadID}); err != nil {
		return s.errorResponse(r, err)
	}
	*resp.GetResponse() = newResponse(r)
	return resp
}

// --- message construction ---

func newResponse(r *dap.Request) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		Command:         r.Command,
		RequestSeq:      r.Seq,
		Success:         true,
	}
}

func newEvent(name string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Type: "event"},
		Event:           name,
	}
}

// shortMessage maps an error code onto the machine-readable response message
func shortMessage(code twxerrors.ErrorCode) string {
	switch code {
	case twxerrors.CodeNotAttached:
		return "notAttached"
	case twxerrors.CodeUnsupported:
		return "unsupported"
	case twxerrors.CodeCancelled:
		return "cancelled"
	default:
		return "unableToProcess"
	}
}

func (s *Session) errorResponse(r *dap.Request, err error) *dap.ErrorResponse {
	format := formatUnableToProcess
	if twxerrors.Is(err, twxerrors.CodeUnsupported) {
		format = formatUnsupported
	}
	return s.errorResponseFormat(r, err, format)
}

func (s *Session) errorResponseFormat(r *dap.Request, err error, format string) *dap.ErrorResponse {
	code := twxerrors.CodeOf(err)
	s.logger.Warn("request failed",
		zap.String("command", r.Command),
		zap.Int("seq", r.Seq),
		zap.String("code", string(code)),
		zap.Error(err))

	resp := &dap.ErrorResponse{Response: newResponse(r)}
	resp.Success = false
	resp.Message = shortMessage(code)
	resp.Body.Error = &dap.ErrorMessage{
		Id:       0,
		Format:   format,
		ShowUser: true,
	}
	return resp
}
