// ABOUTME: Renders the navigation and domain operations as a Markdown catalog.
// ABOUTME: Used by the docs page and the tools command.

package packs

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/2389/qbo-gateway/internal/navigation"
)

// WriteCatalog writes a Markdown description of every operation the router serves.
func (r *Router) WriteCatalog(w io.Writer) error {
	var b strings.Builder

	b.WriteString("# QuickBooks Online operations\n\n")
	b.WriteString("Start with `qbo_select_domain`, then refresh the tool list. `qbo_back` returns to the domain menu.\n\n")

	b.WriteString("## Navigation\n\n")
	for _, name := range []string{navigation.SelectToolName, navigation.BackToolName} {
		writeOperation(&b, r.navTools[name])
	}

	for _, d := range r.registry.Domains() {
		p := r.registry.Pack(d)
		fmt.Fprintf(&b, "## %s\n\n", d)
		if p.Summary != "" {
			fmt.Fprintf(&b, "%s. Operations are prefixed `%s`.\n\n", capitalize(p.Summary), p.Prefix)
		}
		for _, def := range r.registry.Definitions(d) {
			writeOperation(&b, def)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

type catalogSchema struct {
	Properties map[string]struct {
		Type        string   `json:"type"`
		Description string   `json:"description"`
		Enum        []string `json:"enum"`
		Format      string   `json:"format"`
	} `json:"properties"`
	Required []string `json:"required"`
}

func writeOperation(b *strings.Builder, def ToolDefinition) {
	fmt.Fprintf(b, "### `%s`\n\n%s\n\n", def.Name, def.Description)

	var s catalogSchema
	if len(def.InputSchema) == 0 || json.Unmarshal(def.InputSchema, &s) != nil || len(s.Properties) == 0 {
		return
	}

	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("| Argument | Type | Required | Description |\n|---|---|---|---|\n")
	for _, name := range names {
		p := s.Properties[name]
		typ := p.Type
		if p.Format != "" {
			typ += " (" + p.Format + ")"
		}
		desc := p.Description
		if len(p.Enum) > 0 {
			desc = strings.TrimSpace(desc + " One of: " + strings.Join(p.Enum, ", ") + ".")
		}
		req := ""
		if required[name] {
			req = "yes"
		}
		fmt.Fprintf(b, "| `%s` | %s | %s | %s |\n", name, typ, req, strings.ReplaceAll(desc, "|", `\|`))
	}
	b.WriteString("\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
