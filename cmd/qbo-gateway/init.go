// ABOUTME: Interactive config file generator for qbo-gateway init
// ABOUTME: Prompts for each section and writes a commented YAML file

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/qbo-gateway/internal/config"
)

// initAnswers are the values collected by runInit.
type initAnswers struct {
	Transport        string
	HTTPAddr         string
	DatabasePath     string
	JWTSecret        string
	CredentialPolicy string
	Environment      string
	Tailscale        bool
	TSHostname       string
	TSEphemeral      bool
	TSFunnel         bool
	LogLevel         string
	LogFormat        string
	Metrics          bool
}

func runInit(args []string) error {
	fs, configFlag := newFlagSet("init")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Println("qbo-gateway configuration setup")
	fmt.Println("===============================")
	fmt.Println()

	defaultConfigPath, _ := config.ResolvePath(*configFlag)
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Println("\n--- Server Configuration ---")
	a.Transport = prompt(reader, "Transport (http/stdio)", config.TransportHTTP)
	if a.Transport == config.TransportHTTP {
		a.HTTPAddr = prompt(reader, "HTTP address", "127.0.0.1:8080")
		if isYes(prompt(reader, "Require a bearer token on /mcp?", "yes")) {
			secret, err := generateSecret()
			if err != nil {
				return err
			}
			a.JWTSecret = secret
		}
	}

	fmt.Println("\n--- QuickBooks Configuration ---")
	a.CredentialPolicy = "fixed"
	if a.Transport == config.TransportHTTP {
		a.CredentialPolicy = prompt(reader, "Credential policy (fixed/per_request)", a.CredentialPolicy)
	}
	a.Environment = prompt(reader, "Environment (production/sandbox)", config.EnvironmentProduction)

	fmt.Println("\n--- Database Configuration ---")
	a.DatabasePath = prompt(reader, "SQLite audit database path", config.DefaultDatabasePath())

	if a.Transport == config.TransportHTTP {
		fmt.Println("\n--- Tailscale Configuration ---")
		a.Tailscale = isYes(prompt(reader, "Enable Tailscale?", "no"))
		if a.Tailscale {
			a.TSHostname = prompt(reader, "Tailscale hostname", "qbo-gateway")
			a.TSEphemeral = isYes(prompt(reader, "Ephemeral node?", "no"))
			a.TSFunnel = isYes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
		}
	}

	fmt.Println("\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, "Log format (text/json)", "text")
	a.Metrics = a.Transport == config.TransportHTTP && isYes(prompt(reader, "Expose Prometheus metrics?", "no"))

	content := renderConfig(a)
	if _, err := config.Parse([]byte(content), false); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file holds the JWT secret.
	if err := os.WriteFile(outputFile, []byte(content), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	if a.CredentialPolicy == "fixed" {
		fmt.Println("\nSet QuickBooks credentials before serving:")
		fmt.Println("  export QBO_ACCESS_TOKEN=...")
		fmt.Println("  export QBO_REALM_ID=...")
	}
	fmt.Println("\nTo start the server:")
	if a.Transport == config.TransportStdio {
		fmt.Println("  qbo-gateway stdio")
	} else {
		fmt.Println("  qbo-gateway serve")
		if a.JWTSecret != "" {
			fmt.Println("  qbo-gateway token --subject my-client   # mint a client token")
		}
	}
	return nil
}

// renderConfig produces the YAML written by init.
func renderConfig(a initAnswers) string {
	var b strings.Builder
	b.WriteString("# qbo-gateway configuration\n")
	b.WriteString("# Generated by qbo-gateway init\n\n")

	b.WriteString("server:\n")
	fmt.Fprintf(&b, "  transport: %q\n", a.Transport)
	if a.HTTPAddr != "" {
		fmt.Fprintf(&b, "  http_addr: %q\n", a.HTTPAddr)
	}
	b.WriteString("  session_ttl: \"30m\"\n\n")

	b.WriteString("quickbooks:\n")
	fmt.Fprintf(&b, "  credential_policy: %q\n", a.CredentialPolicy)
	fmt.Fprintf(&b, "  environment: %q\n", a.Environment)
	if a.CredentialPolicy == "fixed" {
		b.WriteString("  # Expanded from the environment when the file is loaded.\n")
		b.WriteString("  access_token: \"${QBO_ACCESS_TOKEN}\"\n")
		b.WriteString("  realm_id: \"${QBO_REALM_ID}\"\n")
	}
	b.WriteString("  rate_limit: 8\n")
	b.WriteString("  rate_burst: 10\n\n")

	b.WriteString("database:\n")
	fmt.Fprintf(&b, "  path: %q\n\n", a.DatabasePath)

	if a.JWTSecret != "" {
		b.WriteString("auth:\n")
		fmt.Fprintf(&b, "  jwt_secret: %q\n\n", a.JWTSecret)
	}

	b.WriteString("tailscale:\n")
	fmt.Fprintf(&b, "  enabled: %t\n", a.Tailscale)
	if a.Tailscale {
		fmt.Fprintf(&b, "  hostname: %q\n", a.TSHostname)
		fmt.Fprintf(&b, "  ephemeral: %t\n", a.TSEphemeral)
		fmt.Fprintf(&b, "  funnel: %t\n", a.TSFunnel)
	}
	b.WriteString("\n")

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", a.LogLevel)
	fmt.Fprintf(&b, "  format: %q\n\n", a.LogFormat)

	b.WriteString("metrics:\n")
	fmt.Fprintf(&b, "  enabled: %t\n", a.Metrics)
	b.WriteString("  path: \"/metrics\"\n")
	return b.String()
}

func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
