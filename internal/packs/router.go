// ABOUTME: Routes operation calls to navigation or to the owning domain pack.
// ABOUTME: Resolves the caller's credential and builds a tenant-bound client for every domain call.

package packs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/qbo-gateway/internal/credentials"
	"github.com/2389/qbo-gateway/internal/navigation"
	"github.com/2389/qbo-gateway/internal/qbo"
)

// ClientFactory builds an upstream client bound to one credential.
type ClientFactory func(cred credentials.Credential) (qbo.API, error)

// RouterConfig contains configuration options for the Router.
type RouterConfig struct {
	Registry  *Registry
	Resolver  credentials.Resolver
	NewClient ClientFactory
	Logger    *slog.Logger
}

// Router dispatches operation calls. It holds no per-call or per-tenant state.
type Router struct {
	registry  *Registry
	resolver  credentials.Resolver
	newClient ClientFactory
	logger    *slog.Logger
	navTools  map[string]ToolDefinition
}

// Response describes a completed call. Domain and Tenant are filled in as far
// as dispatch got, even when the call failed.
type Response struct {
	Text   string
	Domain navigation.Domain
	Tenant string // realm fingerprint, never the realm id itself
}

// NewRouter creates a Router with the given configuration.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("credential resolver is required")
	}
	if cfg.NewClient == nil {
		return nil, errors.New("client factory is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		registry:  cfg.Registry,
		resolver:  cfg.Resolver,
		newClient: cfg.NewClient,
		logger:    logger,
		navTools: map[string]ToolDefinition{
			navigation.SelectToolName: selectDefinition(),
			navigation.BackToolName:   backDefinition(),
		},
	}, nil
}

// Registry returns the router's pack registry.
func (r *Router) Registry() *Registry { return r.registry }

// CredentialPolicy reports the resolver's policy.
func (r *Router) CredentialPolicy() credentials.Policy { return r.resolver.Policy() }

// ListTools returns the operations visible in state: select at Root, otherwise
// back plus the selected domain's operations.
func (r *Router) ListTools(state *navigation.State) []ToolDefinition {
	current := state.Current()
	names := navigation.Listing(current, r.registry.ToolNames)

	defs := make([]ToolDefinition, 0, len(names))
	if current == navigation.Root {
		return append(defs, r.navTools[navigation.SelectToolName])
	}
	defs = append(defs, r.navTools[navigation.BackToolName])
	return append(defs, r.registry.Definitions(current)...)
}

// Call dispatches name. Navigation names match exactly; anything else is
// matched by pack prefix. The navigation state is not consulted for domain
// calls: it limits what is listed, not what is callable.
func (r *Router) Call(ctx context.Context, state *navigation.State, name string, args json.RawMessage) (Response, error) {
	switch name {
	case navigation.SelectToolName:
		return r.selectDomain(state, args)
	case navigation.BackToolName:
		return r.back(state), nil
	}

	tool, pack := r.registry.Tool(name)
	if tool == nil {
		r.logger.Debug("unknown operation", "tool_name", name)
		return Response{}, &UnknownOperationError{Name: name}
	}
	resp := Response{Domain: pack.Domain}

	args, err := normalizeArgs(args)
	if err != nil {
		return resp, err
	}

	cred, err := r.resolver.Resolve(ctx)
	if err != nil {
		r.logger.Warn("credential resolution failed", "tool_name", name, "policy", r.resolver.Policy(), "error", err)
		return resp, err
	}
	resp.Tenant = credentials.Fingerprint(cred.RealmID)

	api, err := r.newClient(cred)
	if err != nil {
		return resp, fmt.Errorf("building upstream client: %w", err)
	}

	r.logger.Info("→ dispatching to domain",
		"tool_name", name,
		"domain", pack.Domain,
		"realm", resp.Tenant,
	)

	out, err := tool.Handler(ctx, api, args)
	if err != nil {
		r.logger.Warn("domain operation failed", "tool_name", name, "domain", pack.Domain, "error", err)
		return resp, err
	}

	if out == nil {
		out = json.RawMessage("null")
	}
	resp.Text = string(out)

	r.logger.Info("← domain responded", "tool_name", name, "bytes", len(out))
	return resp, nil
}

func (r *Router) selectDomain(state *navigation.State, args json.RawMessage) (Response, error) {
	args, err := normalizeArgs(args)
	if err != nil {
		return Response{}, err
	}

	var in struct {
		Domain *string `json:"domain"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Response{}, &InvalidArgumentsError{Field: "domain", Reason: "must be a string"}
	}
	if in.Domain == nil || *in.Domain == "" {
		return Response{}, Missing("domain")
	}

	d, err := navigation.ParseDomain(*in.Domain)
	if err != nil {
		return Response{}, &InvalidArgumentsError{Field: "domain", Reason: err.Error()}
	}
	pack := r.registry.Pack(d)
	if pack == nil {
		return Response{}, &InvalidArgumentsError{Field: "domain", Reason: fmt.Sprintf("%q has no registered operations", d)}
	}
	if err := state.Select(d); err != nil {
		return Response{}, &InvalidArgumentsError{Field: "domain", Reason: err.Error()}
	}

	r.logger.Debug("domain selected", "domain", d)

	ops := append([]string{navigation.BackToolName}, pack.ToolNames()...)
	return Response{
		Domain: d,
		Text: fmt.Sprintf("Selected domain %q: %s. Available operations: %s. Refresh the tool list to use them.",
			d, pack.Summary, strings.Join(ops, ", ")),
	}, nil
}

func (r *Router) back(state *navigation.State) Response {
	if !state.Back() {
		return Response{Text: fmt.Sprintf("Already at the domain menu. Available operations: %s.", navigation.SelectToolName)}
	}
	r.logger.Debug("returned to domain menu")
	return Response{Text: fmt.Sprintf("Returned to the domain menu. Available operations: %s. Refresh the tool list.", navigation.SelectToolName)}
}

// normalizeArgs maps absent or null arguments to {} and rejects non-objects.
func normalizeArgs(args json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return json.RawMessage("{}"), nil
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, &InvalidArgumentsError{Field: "arguments", Reason: "must be a JSON object"}
	}
	return json.RawMessage(trimmed), nil
}

func selectDefinition() ToolDefinition {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"domain": map[string]any{
				"type":        "string",
				"enum":        navigation.DomainNames(),
				"description": "Accounting domain to work in",
			},
		},
		"required": []string{"domain"},
	})
	return ToolDefinition{
		Name:        navigation.SelectToolName,
		Description: "Choose an accounting domain (customers, invoices, expenses, payments, reports) to see its operations",
		InputSchema: schema,
	}
}

func backDefinition() ToolDefinition {
	return ToolDefinition{
		Name:        navigation.BackToolName,
		Description: "Leave the current domain and return to the domain menu",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
	}
}
