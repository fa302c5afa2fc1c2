// ABOUTME: Thread-safe registry of domain packs keyed by domain and tool-name prefix.
// ABOUTME: Enforces globally unique tool names and pairwise-disjoint pack prefixes.

package packs

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/2389/qbo-gateway/internal/navigation"
)

// reservedNames are owned by the navigation machine and may not fall inside a pack prefix.
var reservedNames = []string{navigation.SelectToolName, navigation.BackToolName}

// Registry holds the registered domain packs.
type Registry struct {
	mu     sync.RWMutex
	packs  map[navigation.Domain]*Pack
	order  []navigation.Domain
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		packs:  make(map[navigation.Domain]*Pack),
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// RegisterPack validates and stores a pack. Its prefix must be disjoint from
// every registered prefix (neither may be a prefix of the other) and from the
// navigation operation names; each tool must live inside the prefix.
func (r *Registry) RegisterPack(p *Pack) error {
	if p == nil || p.Prefix == "" {
		return fmt.Errorf("pack requires a prefix")
	}
	if _, err := navigation.ParseDomain(string(p.Domain)); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.packs[p.Domain]; exists {
		return fmt.Errorf("%w: %s", ErrPackAlreadyRegistered, p.Domain)
	}

	for _, existing := range r.packs {
		if strings.HasPrefix(existing.Prefix, p.Prefix) || strings.HasPrefix(p.Prefix, existing.Prefix) {
			return fmt.Errorf("%w: %q and %q (domain %s)", ErrPrefixOverlap, p.Prefix, existing.Prefix, existing.Domain)
		}
	}
	for _, name := range reservedNames {
		if strings.HasPrefix(name, p.Prefix) {
			return fmt.Errorf("%w: %q covers navigation operation %q", ErrPrefixOverlap, p.Prefix, name)
		}
	}

	seen := make(map[string]struct{}, len(p.Tools))
	for _, tool := range p.Tools {
		name := tool.Definition.Name
		if !strings.HasPrefix(name, p.Prefix) || len(name) == len(p.Prefix) {
			return fmt.Errorf("%w: %q does not extend %q", ErrToolOutsidePrefix, name, p.Prefix)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %q declared twice in %s", ErrToolCollision, name, p.Domain)
		}
		if _, exists := r.tools[name]; exists {
			return fmt.Errorf("%w: %q already registered", ErrToolCollision, name)
		}
		seen[name] = struct{}{}
	}

	for _, tool := range p.Tools {
		r.tools[tool.Definition.Name] = tool
	}
	r.packs[p.Domain] = p
	r.order = append(r.order, p.Domain)

	r.logger.Info("domain pack registered",
		"domain", p.Domain,
		"prefix", p.Prefix,
		"tool_count", len(p.Tools),
		"total_tools", len(r.tools),
	)
	return nil
}

// Pack returns the pack for d, or nil.
func (r *Registry) Pack(d navigation.Domain) *Pack {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.packs[d]
}

// PackForTool returns the pack whose prefix owns name, or nil.
func (r *Registry) PackForTool(name string) *Pack {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.packs {
		if strings.HasPrefix(name, p.Prefix) {
			return p
		}
	}
	return nil
}

// Tool returns the tool registered as name and its owning pack.
func (r *Registry) Tool(name string) (*Tool, *Pack) {
	p := r.PackForTool(name)
	if p == nil {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, p
	}
	return tool, p
}

// Definitions returns d's tool definitions in declaration order.
func (r *Registry) Definitions(d navigation.Domain) []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.packs[d]
	if !ok {
		return nil
	}
	defs := make([]ToolDefinition, len(p.Tools))
	for i, t := range p.Tools {
		defs[i] = t.Definition
	}
	return defs
}

// ToolNames returns d's tool names in declaration order.
func (r *Registry) ToolNames(d navigation.Domain) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.packs[d]
	if !ok {
		return nil
	}
	return p.ToolNames()
}

// Domains returns registered domains in registration order.
func (r *Registry) Domains() []navigation.Domain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]navigation.Domain, len(r.order))
	copy(out, r.order)
	return out
}

// ToolCount returns the number of registered domain tools.
func (r *Registry) ToolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
