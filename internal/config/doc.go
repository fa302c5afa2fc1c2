// Package config handles configuration loading for qbo-gateway.
//
// # Configuration File
//
// The file is chosen in this order:
//
//  1. --config flag
//  2. QBO_GATEWAY_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/qbo-gateway/gateway.yaml (~/.config when unset)
//
// Files ending in .toml are read as TOML; everything else as YAML. When the
// default file does not exist, built-in defaults are used and QuickBooks
// credentials come from QBO_ACCESS_TOKEN and QBO_REALM_ID.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	quickbooks:
//	  access_token: "${QBO_ACCESS_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  transport: "http"          # http or stdio
//	  http_addr: "127.0.0.1:8080"
//	  session_ttl: "30m"         # idle HTTP sessions are dropped after this
//
//	tailscale:
//	  enabled: false
//	  hostname: "qbo-gateway"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//
//	database:
//	  path: "~/.local/share/qbo-gateway/gateway.db"
//
//	auth:
//	  jwt_secret: "${QBO_GATEWAY_JWT_SECRET}"   # optional, at least 32 bytes
//
//	quickbooks:
//	  credential_policy: "fixed"  # fixed or per_request (http only)
//	  environment: "production"   # production or sandbox
//	  minor_version: "75"
//	  rate_limit: 8               # requests/second per realm, 0 disables
//	  rate_burst: 10
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
package config
