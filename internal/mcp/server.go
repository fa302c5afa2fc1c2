// ABOUTME: MCP server for QuickBooks operations over Streamable HTTP.
// ABOUTME: Owns session lifecycle, owner binding and the POST/DELETE /mcp endpoint.

package mcp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/2389/qbo-gateway/internal/auth"
	"github.com/2389/qbo-gateway/internal/credentials"
	"github.com/2389/qbo-gateway/internal/packs"
	"github.com/2389/qbo-gateway/internal/store"
)

// DefaultSessionTTL is used when Config.SessionTTL is zero.
const DefaultSessionTTL = 30 * time.Minute

// CallRecorder persists the audit record of a tool call.
type CallRecorder interface {
	AppendToolCall(ctx context.Context, c *store.ToolCall) error
}

// Observer receives call and session metrics.
type Observer interface {
	ObserveToolCall(domain, outcome string, elapsed time.Duration)
	SetActiveSessions(n int)
}

type noopObserver struct{}

func (noopObserver) ObserveToolCall(string, string, time.Duration) {}
func (noopObserver) SetActiveSessions(int)                         {}

// Config holds configuration for the MCP server.
type Config struct {
	Router        *packs.Router
	Logger        *slog.Logger
	TokenVerifier auth.TokenVerifier
	RequireAuth   bool // If true, /mcp requires a valid bearer JWT
	Recorder      CallRecorder
	Observer      Observer
	SessionTTL    time.Duration
	ServerName    string
	ServerVersion string
	// Exit terminates the process after a panic in a tool call. Defaults to os.Exit.
	Exit func(code int)
}

// Server implements the MCP tool protocol over HTTP and stdio.
type Server struct {
	router      *packs.Router
	logger      *slog.Logger
	verifier    auth.TokenVerifier
	requireAuth bool
	recorder    CallRecorder
	observer    Observer
	name        string
	version     string
	exit        func(int)
	sessions    *sessionStore
}

// NewServer creates a new MCP server with the given configuration and starts
// its session sweeper. Call Close to stop it.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Router == nil {
		return nil, errors.New("router is required")
	}
	if cfg.RequireAuth && cfg.TokenVerifier == nil {
		return nil, errors.New("token verifier required when auth is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	name := cfg.ServerName
	if name == "" {
		name = "qbo-gateway"
	}
	version := cfg.ServerVersion
	if version == "" {
		version = "dev"
	}
	exit := cfg.Exit
	if exit == nil {
		exit = os.Exit
	}

	s := &Server{
		router:      cfg.Router,
		logger:      logger,
		verifier:    cfg.TokenVerifier,
		requireAuth: cfg.RequireAuth,
		recorder:    cfg.Recorder,
		observer:    observer,
		name:        name,
		version:     version,
		exit:        exit,
		sessions:    newSessionStore(ttl, observer.SetActiveSessions),
	}
	go s.sessions.run(func(removed int) {
		s.logger.Info("expired idle MCP sessions", "count", removed, "active", s.sessions.count())
	})
	return s, nil
}

// Close stops the session sweeper.
func (s *Server) Close() {
	s.sessions.close()
}

// SessionCount returns the number of live HTTP sessions.
func (s *Server) SessionCount() int {
	return s.sessions.count()
}

// Handler returns the /mcp handler, wrapped in bearer auth when required.
func (s *Server) Handler() http.Handler {
	var h http.Handler = http.HandlerFunc(s.handleMCP)
	if s.requireAuth {
		h = auth.HTTPAuthMiddleware(s.verifier, s.logger)(h)
	}
	return h
}

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/mcp", s.Handler())
}

// handleMCP is the single MCP endpoint. Server-initiated SSE streams are not
// offered, so GET is refused.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handleDelete terminates a session. Only its owner may do so.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	s.sessions.delete(sess.id)
	s.logger.Info("MCP session terminated", "session_id", sess.id)
	w.WriteHeader(http.StatusNoContent)
}

// sessionFor looks up the request's session and checks its owner. It writes
// the HTTP error itself when the session can't be used.
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) (*session, bool) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return nil, false
	}
	sess, ok := s.sessions.get(sessionID)
	if !ok {
		// Expired or never existed: the client must re-initialize.
		http.Error(w, "Not Found", http.StatusNotFound)
		return nil, false
	}
	if !ownerMatches(sess.ownerHash, ownerHash(r)) {
		s.logger.Warn("MCP session owner mismatch", "session_id", sessionID, "remote_addr", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return nil, false
	}
	return sess, true
}

// handlePost processes one JSON-RPC message sent via HTTP POST.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.writeResponse(w, errorResponse(nil, JSONRPCParseError, "failed to read request body"))
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.writeResponse(w, errorResponse(nil, JSONRPCInvalidRequest, "request body too large"))
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeResponse(w, errorResponse(nil, JSONRPCParseError, "invalid JSON"))
		return
	}
	if req.JSONRPC != "2.0" {
		s.writeResponse(w, errorResponse(req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version"))
		return
	}

	if req.Method == "initialize" && !req.isNotification() {
		s.handleInitialize(w, r, req)
		return
	}

	// Per the transport rules a missing header means 2025-03-26, which we accept.
	if v := r.Header.Get("Mcp-Protocol-Version"); v != "" && !supportedProtocolVersions[v] {
		http.Error(w, "Bad Request: unsupported MCP-Protocol-Version", http.StatusBadRequest)
		return
	}

	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}

	s.logger.Debug("MCP request",
		"method", req.Method,
		"is_notification", req.isNotification(),
		"session_id", sess.id,
	)

	ctx := credentials.WithHeaders(r.Context(), r.Header)
	resp, _ := s.dispatch(ctx, sess, req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	s.writeResponse(w, resp)
}

// handleInitialize creates a session bound to the caller's bearer token.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) {
	var params MCPInitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.writeResponse(w, errorResponse(req.ID, JSONRPCInvalidParams, "invalid params"))
			return
		}
	}

	sess := s.sessions.create(negotiateVersion(params.ProtocolVersion), ownerHash(r))

	s.logger.Info("MCP session created",
		"session_id", sess.id,
		"protocol_version", sess.protocolVersion,
		"client", params.ClientInfo.Name,
	)

	w.Header().Set("Mcp-Session-Id", sess.id)
	resp, _ := s.dispatch(r.Context(), sess, req)
	s.writeResponse(w, resp)
}

func (s *Server) writeResponse(w http.ResponseWriter, resp *JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}

// ownerHash identifies the caller by a hash of its bearer token; the raw token
// is never stored. With auth on, the hash of the verified token is used.
func ownerHash(r *http.Request) string {
	if caller := auth.FromContext(r.Context()); caller != nil {
		return caller.TokenHash
	}
	return auth.HashToken(auth.BearerToken(r))
}

func ownerMatches(owner, caller string) bool {
	return subtle.ConstantTimeCompare([]byte(owner), []byte(caller)) == 1
}
