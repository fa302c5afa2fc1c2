// Package mcp implements the Model Context Protocol server that exposes the
// QuickBooks operations to tool-calling clients.
//
// # Transports
//
// Two transports share one dispatcher:
//
//   - Streamable HTTP: POST /mcp carries one JSON-RPC message; DELETE /mcp
//     ends a session. initialize returns an Mcp-Session-Id header that every
//     later request must echo.
//   - stdio: newline-delimited JSON-RPC on stdin/stdout for a single session.
//     Logs must go to stderr.
//
// # Sessions and navigation
//
// Every session owns a navigation state. tools/list shows qbo_select_domain at
// the root and qbo_back plus the selected domain's operations after a
// selection. initialize advertises tools.listChanged; over stdio a
// notifications/tools/list_changed message follows every navigation call.
//
// HTTP sessions idle for longer than the configured TTL are dropped. A session
// is bound to a BLAKE2b hash of the bearer token that created it and refuses
// requests carrying any other token.
//
// # Errors
//
// Tool failures never become JSON-RPC errors. They are returned as
//
//	{"content":[{"type":"text","text":"..."}],"isError":true}
//
// and recorded in the call audit log with their kind. A panic inside a tool
// call is logged and ends the process.
//
// # Authentication
//
// When auth is required, /mcp accepts only requests carrying
//
//	Authorization: Bearer <HS256 JWT>
//
// This gates access to the gateway itself. QuickBooks credentials travel
// separately in the X-QBO-Access-Token and X-QBO-Realm-Id headers under the
// per_request policy.
package mcp
