// ABOUTME: Entry point for qbo-gateway, the MCP tool gateway for QuickBooks Online
// ABOUTME: Dispatches subcommands: serve, stdio, init, health, tools, calls, token

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/qbo-gateway/internal/config"
	"github.com/2389/qbo-gateway/internal/gateway"
)

// version is set by goreleaser at build time.
var version = "dev"

const banner = `
        _                             _
   __ _| |__   ___         __ _  __ _| |_ _____      ____ _ _   _
  / _' | '_ \ / _ \ _____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 | (_| | |_) | (_) |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
  \__, |_.__/ \___/       \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
     |_|                  |___/                             |___/
`

const usage = `Usage: qbo-gateway <command> [flags]

Commands:
  serve                  Serve MCP over HTTP (TCP or tailnet)
  stdio                  Serve one MCP session on stdin/stdout
  init                   Create a new config file interactively
  health                 Check a running gateway's health
  tools                  Print the operation catalog as Markdown
  calls [--limit N]      List recent tool calls from the audit log
  token [--subject S]    Mint a gateway bearer token

Every command accepts --config PATH (default: $QBO_GATEWAY_CONFIG or
$XDG_CONFIG_HOME/qbo-gateway/gateway.yaml).
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gateway.Version = version

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, args)
	case "stdio":
		err = runStdio(ctx, args)
	case "init":
		err = runInit(args)
	case "health":
		err = runHealth(ctx, args)
	case "tools":
		err = runTools(args)
	case "calls":
		err = runCalls(ctx, args)
	case "token":
		err = runToken(args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newFlagSet returns a flag set carrying the shared --config flag.
func newFlagSet(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to config file (.yaml or .toml)")
	return fs, configPath
}

// loadConfig resolves and loads the config named by flagValue.
func loadConfig(flagValue string) (*config.Config, string, error) {
	path, explicit := config.ResolvePath(flagValue)
	cfg, err := config.LoadOrDefault(path, explicit)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func runServe(ctx context.Context, args []string) error {
	fs, configFlag := newFlagSet("serve")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, configPath, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}
	if cfg.Server.Transport == config.TransportStdio {
		return fmt.Errorf("server.transport is %q: use qbo-gateway stdio", config.TransportStdio)
	}

	printBanner(os.Stdout)
	printStartup(os.Stdout, cfg, configPath)

	logger := setupLogger(cfg.Logging, os.Stdout)
	logger.Info("starting qbo-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"credential_policy", cfg.Policy(),
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

// runStdio serves on stdin/stdout. Everything else, logs included, goes to stderr.
func runStdio(ctx context.Context, args []string) error {
	fs, configFlag := newFlagSet("stdio")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, configPath, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}
	cfg.Server.Transport = config.TransportStdio
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stderr)
	logger.Info("starting qbo-gateway on stdio", "config", configPath, "version", version)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.RunStdio(ctx, os.Stdin, os.Stdout)
}

func printBanner(w io.Writer) {
	cyan := color.New(color.FgCyan)
	cyan.Fprint(w, banner)

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(w, "    version: %s\n\n", version)
}

func printStartup(w io.Writer, cfg *config.Config, configPath string) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "Config:      %s\n", configPath)
	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "HTTP:        %s\n", cfg.Server.HTTPAddr)
	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "Credentials: %s\n", cfg.Policy())
	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "Upstream:    %s\n", cfg.QuickBooks.ResolvedBaseURL())

	if cfg.Auth.JWTSecret == "" {
		yellow.Fprint(w, "    ! ")
		fmt.Fprintln(w, "Auth:        disabled (set auth.jwt_secret)")
	}

	if cfg.Tailscale.Enabled {
		green.Fprint(w, "    ▶ ")
		fmt.Fprint(w, "Tailscale:   ")
		cyan.Fprint(w, cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Fprint(w, " [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Fprint(w, " (ephemeral)")
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w)
}
