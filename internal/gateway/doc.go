// Package gateway assembles and runs qbo-gateway.
//
// # Overview
//
// New builds every component from a config.Config:
//
//   - the SQLite audit store (database.path, overridable by QBO_GATEWAY_DB_PATH)
//   - Prometheus metrics, also used as the upstream client's observer
//   - the credential resolver for the configured policy
//   - the five domain packs, the pack registry and the router
//   - a per-call QuickBooks client factory sharing one HTTP client and the
//     per-realm rate limiter
//   - the MCP server
//
// # Serving
//
// Run serves HTTP on server.http_addr, or on a tsnet node when tailscale is
// enabled (plain :80, TLS on :443 with https, or public Funnel). RunStdio
// serves one session on stdin/stdout instead.
//
// # HTTP endpoints
//
//	POST/DELETE /mcp   MCP Streamable HTTP (bearer JWT when auth.jwt_secret is set)
//	GET /health        liveness plus credential policy
//	GET /health/ready  200 once all five domains are registered
//	GET /docs          HTML operation catalog
//	GET /metrics       Prometheus exposition (metrics.enabled)
package gateway
