// ABOUTME: Gateway orchestrator that wires config, audit store, metrics, domain packs and the MCP server
// ABOUTME: Serves the tool protocol over HTTP (TCP or tailnet) or stdio and manages shutdown

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/qbo-gateway/internal/auth"
	"github.com/2389/qbo-gateway/internal/config"
	"github.com/2389/qbo-gateway/internal/credentials"
	"github.com/2389/qbo-gateway/internal/domains"
	"github.com/2389/qbo-gateway/internal/mcp"
	"github.com/2389/qbo-gateway/internal/metrics"
	"github.com/2389/qbo-gateway/internal/packs"
	"github.com/2389/qbo-gateway/internal/qbo"
	"github.com/2389/qbo-gateway/internal/store"
)

// Version is reported in the MCP serverInfo. Set at build time with -ldflags.
var Version = "dev"

// EnvDBPath overrides database.path.
const EnvDBPath = "QBO_GATEWAY_DB_PATH"

// Gateway orchestrates the qbo-gateway server components.
type Gateway struct {
	config      *config.Config
	store       store.Store
	metrics     *metrics.Metrics
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// packRegistry holds the five domain packs
	packRegistry *packs.Registry

	// packRouter dispatches navigation and domain calls
	packRouter *packs.Router

	// mcpServer speaks the tool protocol on /mcp or stdio
	mcpServer *mcp.Server

	// mcpEndpoint is the URL clients should use (e.g., "http://localhost:8080/mcp")
	mcpEndpoint string
}

// OpenStore opens the audit store from config, honoring the environment override.
func OpenStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv(EnvDBPath); envPath != "" {
		dbPath = envPath
	}
	if dbPath != store.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// newClientFactory returns the per-call upstream client constructor. Only
// tenant-independent settings are shared; every call gets its own Client.
func newClientFactory(cfg *config.Config, observer qbo.Observer, logger *slog.Logger) packs.ClientFactory {
	opts := qbo.Options{
		BaseURL:      cfg.QuickBooks.ResolvedBaseURL(),
		MinorVersion: cfg.QuickBooks.MinorVersion,
		HTTPClient:   &http.Client{},
		Limiter:      qbo.NewRealmLimiter(cfg.QuickBooks.RateLimit, cfg.QuickBooks.RateBurst),
		Observer:     observer,
		Logger:       logger,
	}
	return func(cred credentials.Credential) (qbo.API, error) {
		return qbo.New(cred, opts)
	}
}

// determineMCPEndpoint resolves the advertised MCP URL from config.
func determineMCPEndpoint(cfg *config.Config) string {
	if !cfg.Tailscale.Enabled {
		return "http://" + cfg.Server.HTTPAddr + "/mcp"
	}
	if cfg.Tailscale.HTTPS || cfg.Tailscale.Funnel {
		return "https://" + cfg.Tailscale.Hostname + "/mcp"
	}
	return "http://" + cfg.Tailscale.Hostname + "/mcp"
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	gw, err := newGateway(cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

// NewRouter builds the domain registry and router for cfg. observer may be
// nil; New passes the gateway's metrics.
func NewRouter(cfg *config.Config, observer qbo.Observer, logger *slog.Logger) (*packs.Router, error) {
	resolver, err := credentials.NewResolver(cfg.Policy(),
		credentials.ConfigLoader(cfg.QuickBooks.AccessToken, cfg.QuickBooks.RealmID, os.Getenv))
	if err != nil {
		return nil, fmt.Errorf("creating credential resolver: %w", err)
	}

	packRegistry := packs.NewRegistry(logger.With("component", "pack-registry"))
	if err := domains.Register(packRegistry, domains.Options{}); err != nil {
		return nil, fmt.Errorf("registering domain packs: %w", err)
	}

	packRouter, err := packs.NewRouter(packs.RouterConfig{
		Registry:  packRegistry,
		Resolver:  resolver,
		NewClient: newClientFactory(cfg, observer, logger.With("component", "qbo")),
		Logger:    logger.With("component", "pack-router"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}
	return packRouter, nil
}

func newGateway(cfg *config.Config, s store.Store, logger *slog.Logger) (*Gateway, error) {
	m := metrics.New()

	packRouter, err := NewRouter(cfg, m, logger)
	if err != nil {
		return nil, err
	}

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	} else if cfg.Server.Transport == config.TransportHTTP {
		logger.Warn("auth.jwt_secret not set, /mcp is unauthenticated")
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Router:        packRouter,
		Logger:        logger.With("component", "mcp"),
		TokenVerifier: verifier,
		RequireAuth:   verifier != nil,
		Recorder:      s,
		Observer:      m,
		SessionTTL:    cfg.Server.SessionTTL,
		ServerName:    "qbo-gateway",
		ServerVersion: Version,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	gw := &Gateway{
		config:       cfg,
		store:        s,
		metrics:      m,
		logger:       logger.With("component", "gateway"),
		packRegistry: packRouter.Registry(),
		packRouter:   packRouter,
		mcpServer:    mcpServer,
		mcpEndpoint:  determineMCPEndpoint(cfg),
	}

	mux := http.NewServeMux()

	// Side-channel endpoints - no auth required
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /health/ready", gw.handleReady)
	mux.HandleFunc("GET /docs", gw.handleDocs)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, m.Handler())
	}

	mcpServer.RegisterRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the HTTP handler serving /mcp and the side-channel endpoints.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Store returns the audit store.
func (g *Gateway) Store() store.Store {
	return g.store
}

// Router returns the pack router.
func (g *Gateway) Router() *packs.Router {
	return g.packRouter
}

// setupTCPListener creates a standard TCP listener for HTTP.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the HTTP listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// Run serves HTTP until ctx is canceled or the server fails, then shuts down.
// Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		g.closeComponents()
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		g.logger.Info("HTTP server listening",
			"addr", ln.Addr().String(),
			"mcp_endpoint", g.mcpEndpoint,
			"credential_policy", g.packRouter.CredentialPolicy(),
		)
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		g.logger.Info("context canceled, initiating shutdown")
		return g.gracefulShutdown()
	})
	return eg.Wait()
}

// RunStdio serves a single session over in/out until in closes or ctx is canceled.
func (g *Gateway) RunStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	defer g.closeComponents()

	g.logger.Info("serving MCP over stdio", "credential_policy", g.packRouter.CredentialPolicy())
	return g.mcpServer.ServeStdio(ctx, in, out)
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "qbo-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable (get one at https://login.tailscale.com/admin/settings/keys)")
	}
	return authKey, nil
}

// setupTailscaleListener starts a tsnet node and returns its HTTP listener.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	g.logTailscaleStatus(tsCfg.Hostname, status)
	g.updateMCPEndpointFromStatus(status)

	return g.createTailscaleHTTPListener(tsCfg)
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// updateMCPEndpointFromStatus switches the advertised endpoint to the tailnet DNS name.
func (g *Gateway) updateMCPEndpointFromStatus(status *ipnstate.Status) {
	if status.Self == nil || status.Self.DNSName == "" {
		return
	}
	scheme := "http://"
	if g.config.Tailscale.HTTPS || g.config.Tailscale.Funnel {
		scheme = "https://"
	}
	newEndpoint := scheme + strings.TrimSuffix(status.Self.DNSName, ".") + "/mcp"
	if newEndpoint != g.mcpEndpoint {
		g.logger.Info("updated MCP endpoint to use Tailscale DNS name", "old", g.mcpEndpoint, "new", newEndpoint)
		g.mcpEndpoint = newEndpoint
	}
}

// createTailscaleHTTPListener creates the appropriate HTTP listener based on config.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return g.createTailscaleTLSListener()
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener() (net.Listener, error) {
	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// closeComponents stops the session sweeper and closes the store.
func (g *Gateway) closeComponents() []error {
	g.mcpServer.Close()
	return appendCloseError(nil, "store close", g.store.Close())
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = append(errs, g.closeComponents()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}
