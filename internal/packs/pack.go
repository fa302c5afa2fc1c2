// ABOUTME: Domain packs: the operation descriptors and handlers one accounting domain exposes.
// ABOUTME: Handlers receive an upstream client already bound to the caller's tenant.

package packs

import (
	"context"
	"encoding/json"

	"github.com/2389/qbo-gateway/internal/navigation"
	"github.com/2389/qbo-gateway/internal/qbo"
)

// ToolDefinition is the advertised name, summary and parameter schema of an operation.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolHandler executes one operation against a tenant-bound upstream client.
// args is always a JSON object. The result is returned to the caller unmodified.
type ToolHandler func(ctx context.Context, api qbo.API, args json.RawMessage) (json.RawMessage, error)

// Tool pairs a definition with its handler.
type Tool struct {
	Definition ToolDefinition
	Handler    ToolHandler
}

// Pack is the operation set of one domain. Every tool name starts with Prefix.
type Pack struct {
	Domain  navigation.Domain
	Prefix  string
	Summary string
	Tools   []*Tool
}

// ToolNames returns the pack's tool names in declaration order.
func (p *Pack) ToolNames() []string {
	names := make([]string, len(p.Tools))
	for i, t := range p.Tools {
		names[i] = t.Definition.Name
	}
	return names
}
