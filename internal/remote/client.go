// Package remote implements the client for the BMDebugServer services exposed by a
// ThingWorx server.
//
// Each logical debug operation is one HTTP POST to
// {scheme}://{domain}:{port}/Thingworx/Things/BMDebugServer/Services/{service}
// with a JSON argument object. ThingWorx answers with an infotable: a JSON object
// whose "rows" array holds the result records. Rows are decoded into typed structs
// (see rows.go) that fail closed when the target returns an unexpected shape.
package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	twxerrors "github.com/ctagard/twx-dap/internal/errors"
	"github.com/ctagard/twx-dap/pkg/types"
)

const (
	// ServicePathTemplate is the path of a BMDebugServer service on the target
	ServicePathTemplate = "/Thingworx/Things/BMDebugServer/Services/%s"

	// xsrfToken is the constant anti-forgery value ThingWorx accepts from API clients
	xsrfToken = "TWX-XSRF-TOKEN-VALUE"

	// maxErrorBody bounds how much of a failed response is kept for diagnostics
	maxErrorBody = 512
)

// Service names of the BMDebugServer thing
const (
	ServiceConnectDebugger              = "connectDebugger"
	ServiceDisconnectDebugger           = "disconnectDebugger"
	ServiceSetBreakpointsForFile        = "setBreakpointsForFile"
	ServiceGetBreakpointLocationsInFile = "getBreakpointLocationsInFile"
	ServiceSetBreakOnExceptions         = "setBreakOnExceptions"
	ServiceGetExceptionDetails          = "getExceptionDetails"
	ServiceGetThreads                   = "getThreads"
	ServiceGetStackTraceInThread        = "getStackTraceInThread"
	ServiceGetScopesInThread            = "getScopesInThread"
	ServiceGetVariableContents          = "getVariableContents"
	ServiceSetVariable                  = "setVariable"
	ServiceSuspendThread                = "suspendThread"
	ServiceResumeThread                 = "resumeThread"
	ServiceResumeAllThreads             = "resumeAllThreads"
	ServiceStepOverThread               = "stepOverThread"
	ServiceStepInThread                 = "stepInThread"
	ServiceStepOutThread                = "stepOutThread"
	ServiceEvaluate                     = "evaluate"
	ServiceEvaluateGlobally             = "evaluateGlobally"
)

// Args is the JSON argument object of a remote call
type Args map[string]interface{}

// Result is the decoded infotable of a remote call
type Result struct {
	Service string
	Rows    []json.RawMessage
}

// Len returns the number of rows
func (r *Result) Len() int {
	return len(r.Rows)
}

// Invoker is the subset of Client used by the session; tests substitute it.
type Invoker interface {
	Invoke(ctx context.Context, service string, args Args) (*Result, error)
}

// Client issues BMDebugServer service calls against one target
type Client struct {
	target     types.Target
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client (used by tests and custom transports)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithInsecureSkipVerify disables TLS verification for self-signed development servers
func WithInsecureSkipVerify() Option {
	return func(c *Client) {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				//nolint:gosec // G402: opt-in for self-signed ThingWorx development servers
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}
}

// WithLogger sets the logger used for call tracing
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the given target
func NewClient(target types.Target, opts ...Option) *Client {
	c := &Client{
		target:     target,
		httpClient: http.DefaultClient,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Target returns the target this client talks to
func (c *Client) Target() types.Target {
	return c.target
}

// ServiceURL returns the URL of a service on the target
func (c *Client) ServiceURL(service string) string {
	u := url.URL{
		Scheme: c.target.HTTPScheme(),
		Host:   c.target.Address(),
		Path:   fmt.Sprintf(ServicePathTemplate, service),
	}
	return u.String()
}

// Invoke calls a service and returns its rows.
// Transport failures, non-200 statuses and malformed bodies are all errors.
func (c *Client) Invoke(ctx context.Context, service string, args Args) (*Result, error) {
	if args == nil {
		args = Args{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, twxerrors.Wrap(twxerrors.CodeInvalidParameter,
			fmt.Sprintf("failed to encode arguments for %s", service), "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ServiceURL(service), bytes.NewReader(body))
	if err != nil {
		return nil, twxerrors.Transport(service, errors.Wrap(err, "build request"))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("appKey", c.target.AppKey)
	req.Header.Set("X-XSRF-TOKEN", xsrfToken)
	req.Header.Set("x-thingworx-session", "true")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, twxerrors.Timeout(service, ctxErr)
		}
		return nil, twxerrors.Transport(service, errors.Wrapf(err, "POST %s", service))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, twxerrors.Transport(service, errors.Wrap(err, "read response body"))
	}

	c.logger.Debug("remote call",
		zap.String("service", service),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, twxerrors.Remote(service, resp.StatusCode, string(data))
	}

	return parseResult(service, data)
}

// voidServices have no output and may answer without a rows array
var voidServices = map[string]bool{
	ServiceConnectDebugger:      true,
	ServiceDisconnectDebugger:   true,
	ServiceSetBreakOnExceptions: true,
	ServiceSuspendThread:        true,
	ServiceResumeThread:         true,
	ServiceResumeAllThreads:     true,
	ServiceStepOverThread:       true,
	ServiceStepInThread:         true,
	ServiceStepOutThread:        true,
}

// parseResult extracts the rows of an infotable response.
// The body must be JSON; only void services may omit the rows array.
func parseResult(service string, data []byte) (*Result, error) {
	if len(bytes.TrimSpace(data)) == 0 || !gjson.ValidBytes(data) {
		return nil, twxerrors.Protocol(service, "response body is not valid JSON")
	}

	result := &Result{Service: service}
	rows := gjson.GetBytes(data, "rows")
	if !rows.Exists() {
		if voidServices[service] {
			return result, nil
		}
		return nil, twxerrors.Protocol(service, "response has no rows")
	}
	if !rows.IsArray() {
		return nil, twxerrors.Protocol(service, "rows is not an array")
	}

	for _, row := range rows.Array() {
		if !row.IsObject() {
			return nil, twxerrors.Protocol(service, "row is not an object")
		}
		result.Rows = append(result.Rows, json.RawMessage(row.Raw))
	}
	return result, nil
}
