// ABOUTME: Store interface and data types for qbo-gateway persistence
// ABOUTME: Defines the ToolCall audit record and the filter used to list them

package store

import (
	"context"
	"time"
)

// Outcome of a recorded tool call.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// ToolCall is one audited operation call. It never holds credentials:
// Tenant is the realm fingerprint, not the realm id.
type ToolCall struct {
	ID         string // UUID v4
	SessionID  string
	Subject    string // verified gateway token subject; empty when auth is off
	Tool       string
	Domain     string // empty for navigation and unknown operations
	Tenant     string
	Outcome    string // OutcomeOK or OutcomeError
	ErrorKind  string // e.g. "unknown_operation", "upstream"; empty on success
	DurationMS int64
	CreatedAt  time.Time
}

// ToolCallFilter specifies filtering options for listing tool calls.
type ToolCallFilter struct {
	Since     *time.Time
	SessionID *string
	Tool      *string
	Outcome   *string
	Limit     int // max results (default 100, max 1000)
}

// Store persists the tool call audit log.
type Store interface {
	AppendToolCall(ctx context.Context, c *ToolCall) error
	ListToolCalls(ctx context.Context, f ToolCallFilter) ([]ToolCall, error)
	Close() error
}
