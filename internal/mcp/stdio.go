// ABOUTME: Newline-delimited JSON-RPC transport over stdin/stdout for a single MCP session.
// ABOUTME: Domain calls run concurrently and can be cancelled with notifications/cancelled.

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/2389/qbo-gateway/internal/credentials"
)

const methodListChanged = "notifications/tools/list_changed"

// lineWriter serializes whole JSON messages, one per line.
type lineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (lw *lineWriter) write(v any) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.enc.Encode(v)
}

// inflight tracks running tool calls by JSON-RPC id so they can be cancelled.
type inflight struct {
	mu    sync.Mutex
	calls map[string]context.CancelFunc
}

func (f *inflight) add(id string, cancel context.CancelFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id] = cancel
}

// done removes id and reports whether it was still registered, that is, not cancelled.
func (f *inflight) done(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.calls[id]
	delete(f.calls, id)
	return ok
}

func (f *inflight) cancel(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	cancel, ok := f.calls[id]
	if ok {
		delete(f.calls, id)
		cancel()
	}
	return ok
}

// ServeStdio serves one session over in/out until in reaches EOF or ctx is
// done. Only the fixed credential policy is usable here since stdio carries
// no per-request headers.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	if policy := s.router.CredentialPolicy(); policy != credentials.PolicyFixed {
		return fmt.Errorf("stdio transport requires the %s credential policy, got %s", credentials.PolicyFixed, policy)
	}

	ctx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	sess := newSession(latestProtocolVersion, "", time.Now())
	w := &lineWriter{enc: json.NewEncoder(out)}
	running := &inflight{calls: make(map[string]context.CancelFunc)}
	var wg sync.WaitGroup
	defer wg.Wait()

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), MaxRequestBodySize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	s.logger.Info("MCP stdio session started", "session_id", sess.id)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("MCP stdio session stopped", "session_id", sess.id)
			return nil
		case err := <-scanErr:
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			s.logger.Info("MCP stdio session closed by client", "session_id", sess.id)
			return nil
		case line := <-lines:
			if len(line) == 0 {
				continue
			}
			s.handleLine(ctx, sess, line, w, running, &wg)
		}
	}
}

func (s *Server) handleLine(ctx context.Context, sess *session, line []byte, w *lineWriter, running *inflight, wg *sync.WaitGroup) {
	var req JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		s.send(w, errorResponse(nil, JSONRPCParseError, "invalid JSON"))
		return
	}
	if req.JSONRPC != "2.0" {
		s.send(w, errorResponse(req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version"))
		return
	}

	switch {
	case req.Method == "notifications/cancelled":
		var params MCPCancelledParams
		if err := json.Unmarshal(req.Params, &params); err == nil && running.cancel(string(params.RequestID)) {
			s.logger.Debug("tool call cancelled", "request_id", string(params.RequestID), "reason", params.Reason)
		}
		return

	case req.Method == "initialize" && !req.isNotification():
		var params MCPInitializeParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				s.send(w, errorResponse(req.ID, JSONRPCInvalidParams, "invalid params"))
				return
			}
		}
		s.logger.Info("MCP stdio initialize", "client", params.ClientInfo.Name)
		s.send(w, resultResponse(req.ID, s.initializeResult(negotiateVersion(params.ProtocolVersion))))
		return

	case req.Method == "tools/call" && !req.isNotification() && !isNavigationCall(req):
		id := string(req.ID)
		callCtx, cancel := context.WithCancel(ctx)
		running.add(id, cancel)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			resp, _ := s.dispatch(callCtx, sess, req)
			if running.done(id) {
				s.send(w, resp)
			}
		}()
		return
	}

	// Navigation and listing run in arrival order.
	resp, listChanged := s.dispatch(ctx, sess, req)
	if resp != nil {
		s.send(w, resp)
	}
	if listChanged {
		s.send(w, JSONRPCNotification{JSONRPC: "2.0", Method: methodListChanged})
	}
}

func (s *Server) send(w *lineWriter, msg any) {
	if err := w.write(msg); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		s.logger.Warn("failed to write stdio message", "error", err)
	}
}

func isNavigationCall(req JSONRPCRequest) bool {
	var params MCPCallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return false
	}
	return isNavigation(params.Name)
}
