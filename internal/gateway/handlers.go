// ABOUTME: Side-channel HTTP endpoints: liveness, readiness and the rendered operation catalog
// ABOUTME: None of these are part of the tool protocol and none require auth

package gateway

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/qbo-gateway/internal/config"
	"github.com/2389/qbo-gateway/internal/navigation"
)

//go:embed templates/*.html
var templateFS embed.FS

var docsTemplate = template.Must(template.ParseFS(templateFS, "templates/docs.html"))

// markdown renders the catalog; tables need the GFM extension.
var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status           string `json:"status"`
	CredentialPolicy string `json:"credential_policy"`
	Transport        string `json:"transport"`
}

// ReadyResponse is the body of GET /health/ready.
type ReadyResponse struct {
	Status  string   `json:"status"`
	Domains []string `json:"domains"`
	Missing []string `json:"missing,omitempty"`
	Tools   int      `json:"tools"`
}

// handleHealth reports liveness and the active credential policy.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	g.sendJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		CredentialPolicy: string(g.packRouter.CredentialPolicy()),
		Transport:        config.TransportHTTP,
	})
}

// handleReady returns 200 once every domain has a registered pack.
func (g *Gateway) handleReady(w http.ResponseWriter, _ *http.Request) {
	registered := make(map[navigation.Domain]bool)
	resp := ReadyResponse{Status: "ready", Domains: []string{}, Tools: g.packRegistry.ToolCount()}
	for _, d := range g.packRegistry.Domains() {
		registered[d] = true
		resp.Domains = append(resp.Domains, string(d))
	}
	for _, d := range navigation.Domains {
		if !registered[d] {
			resp.Missing = append(resp.Missing, string(d))
		}
	}

	status := http.StatusOK
	if len(resp.Missing) > 0 {
		resp.Status = "not ready"
		status = http.StatusServiceUnavailable
	}
	g.sendJSON(w, status, resp)
}

// handleDocs renders the operation catalog as HTML.
func (g *Gateway) handleDocs(w http.ResponseWriter, _ *http.Request) {
	var md bytes.Buffer
	if err := g.packRouter.WriteCatalog(&md); err != nil {
		g.logger.Error("failed to write operation catalog", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var htmlBuf bytes.Buffer
	if err := markdown.Convert(md.Bytes(), &htmlBuf); err != nil {
		g.logger.Error("failed to convert markdown", "error", err)
		htmlBuf.Reset()
		htmlBuf.WriteString("<p>Failed to render operation catalog.</p>")
	}

	data := struct {
		Content  template.HTML
		Version  string
		Endpoint string
		Policy   string
	}{
		Content:  template.HTML(htmlBuf.String()),
		Version:  Version,
		Endpoint: g.mcpEndpoint,
		Policy:   string(g.packRouter.CredentialPolicy()),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := docsTemplate.Execute(w, data); err != nil {
		g.logger.Error("failed to render docs page", "error", err)
	}
}

// sendJSON writes v as a JSON response.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("failed to encode JSON response", "error", err)
	}
}
