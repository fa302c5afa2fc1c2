// Package auth authenticates MCP clients to the gateway.
//
// Gateway authentication is optional and independent of QuickBooks
// credentials. When a secret is configured, every /mcp request must carry
// "Authorization: Bearer <jwt>" signed with HS256 and issued by qbo-gateway.
// Tokens are minted with JWTVerifier.Generate (the "token" command).
//
// HashToken is used wherever a token must be remembered, such as binding an
// MCP session to the caller that opened it. Raw tokens are never stored.
package auth
