// ABOUTME: Transport-independent JSON-RPC method dispatch for one MCP session.
// ABOUTME: Turns every tool failure into an isError result and audits each tools/call.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"
	"time"

	"github.com/2389/qbo-gateway/internal/auth"
	"github.com/2389/qbo-gateway/internal/credentials"
	"github.com/2389/qbo-gateway/internal/navigation"
	"github.com/2389/qbo-gateway/internal/packs"
	"github.com/2389/qbo-gateway/internal/qbo"
	"github.com/2389/qbo-gateway/internal/store"
)

// Error kinds recorded in the audit log.
const (
	kindUnknownOperation   = "unknown_operation"
	kindMissingCredentials = "missing_credentials"
	kindInvalidArguments   = "invalid_arguments"
	kindUpstream           = "upstream"
	kindTransport          = "transport"
	kindCanceled           = "canceled"
	kindInternal           = "internal"
)

// errPanic marks a tool call whose handler panicked.
var errPanic = errors.New("internal error")

// dispatch handles one request for sess. It returns nil for notifications.
// listChanged reports whether the call moved the session's navigation state.
func (s *Server) dispatch(ctx context.Context, sess *session, req JSONRPCRequest) (resp *JSONRPCResponse, listChanged bool) {
	if req.isNotification() {
		s.logger.Debug("accepted MCP notification", "method", req.Method)
		return nil, false
	}

	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, s.initializeResult(sess.protocolVersion)), false
	case "ping":
		return resultResponse(req.ID, struct{}{}), false
	case "tools/list":
		return resultResponse(req.ID, s.listTools(sess)), false
	case "tools/call":
		return s.handleToolsCall(ctx, sess, req)
	default:
		return errorResponse(req.ID, JSONRPCMethodNotFound, "method not found"), false
	}
}

func (s *Server) initializeResult(protocolVersion string) map[string]any {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": true},
		},
		"serverInfo": map[string]any{
			"name":    s.name,
			"version": s.version,
		},
	}
}

func (s *Server) listTools(sess *session) MCPListToolsResult {
	defs := s.router.ListTools(sess.nav)
	result := MCPListToolsResult{Tools: make([]MCPToolInfo, len(defs))}
	for i, d := range defs {
		result.Tools[i] = MCPToolInfo{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		}
	}

	s.logger.Debug("tools/list",
		"session_id", sess.id,
		"domain", sess.nav.Current(),
		"count", len(result.Tools),
	)
	return result
}

func (s *Server) handleToolsCall(ctx context.Context, sess *session, req JSONRPCRequest) (*JSONRPCResponse, bool) {
	var params MCPCallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, JSONRPCInvalidParams, "invalid params"), false
		}
	}
	if params.Name == "" {
		return errorResponse(req.ID, JSONRPCInvalidParams, "tool name is required"), false
	}

	s.logger.Debug("tools/call", "tool_name", params.Name, "session_id", sess.id)

	start := time.Now()
	resp, err := s.callTool(ctx, sess, params)
	elapsed := time.Since(start)

	s.audit(ctx, sess, params.Name, resp, err, elapsed)

	if err != nil {
		return resultResponse(req.ID, textResult(err.Error(), true)), false
	}
	return resultResponse(req.ID, textResult(resp.Text, false)), isNavigation(params.Name)
}

// callTool runs the router under a recover. A panic means an invariant no
// longer holds, so it is logged and the process exits.
func (s *Server) callTool(ctx context.Context, sess *session, params MCPCallToolParams) (resp packs.Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic during tool call",
				"tool_name", params.Name,
				"session_id", sess.id,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			s.exit(1)
			err = errPanic
		}
	}()
	return s.router.Call(ctx, sess.nav, params.Name, params.Arguments)
}

func (s *Server) audit(ctx context.Context, sess *session, tool string, resp packs.Response, err error, elapsed time.Duration) {
	outcome, kind := store.OutcomeOK, ""
	if err != nil {
		outcome, kind = store.OutcomeError, errorKind(err)
	}
	domain := ""
	if !isNavigation(tool) {
		domain = string(resp.Domain)
	}
	s.observer.ObserveToolCall(domain, outcome, elapsed)

	if s.recorder == nil {
		return
	}
	var subject string
	if caller := auth.FromContext(ctx); caller != nil {
		subject = caller.Subject
	}
	call := &store.ToolCall{
		SessionID:  sess.id,
		Subject:    subject,
		Tool:       tool,
		Domain:     domain,
		Tenant:     resp.Tenant,
		Outcome:    outcome,
		ErrorKind:  kind,
		DurationMS: elapsed.Milliseconds(),
	}
	// The audit row is written even when the caller has gone away.
	if recErr := s.recorder.AppendToolCall(context.WithoutCancel(ctx), call); recErr != nil {
		s.logger.Warn("failed to record tool call", "tool_name", tool, "error", recErr)
	}
}

func errorKind(err error) string {
	var (
		unknown  *packs.UnknownOperationError
		missing  *credentials.MissingCredentialsError
		invalid  *packs.InvalidArgumentsError
		upstream *qbo.UpstreamError
		netErr   *qbo.TransportError
	)
	switch {
	case errors.As(err, &unknown):
		return kindUnknownOperation
	case errors.As(err, &missing):
		return kindMissingCredentials
	case errors.As(err, &invalid):
		return kindInvalidArguments
	case errors.As(err, &upstream):
		return kindUpstream
	case errors.Is(err, context.Canceled):
		return kindCanceled
	case errors.As(err, &netErr):
		return kindTransport
	default:
		return kindInternal
	}
}

func isNavigation(name string) bool {
	return name == navigation.SelectToolName || name == navigation.BackToolName
}
