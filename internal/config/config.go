// ABOUTME: Configuration loading and parsing for qbo-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/qbo-gateway/internal/credentials"
	"github.com/2389/qbo-gateway/internal/qbo"
)

// Transports the gateway can serve the tool protocol over.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Upstream environments.
const (
	EnvironmentProduction = "production"
	EnvironmentSandbox    = "sandbox"
)

// MinJWTSecretLength is the shortest accepted auth.jwt_secret.
const MinJWTSecretLength = 32

// DefaultSessionTTL is how long an idle HTTP session is kept.
const DefaultSessionTTL = 30 * time.Minute

// Config represents the complete qbo-gateway configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Tailscale  TailscaleConfig  `yaml:"tailscale" toml:"tailscale"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth"`
	QuickBooks QuickBooksConfig `yaml:"quickbooks" toml:"quickbooks"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds the protocol transport configuration
type ServerConfig struct {
	Transport string `yaml:"transport" toml:"transport"`
	HTTPAddr  string `yaml:"http_addr" toml:"http_addr"`

	SessionTTL    time.Duration `yaml:"-" toml:"-"`
	SessionTTLRaw string        `yaml:"session_ttl" toml:"session_ttl"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve TLS on :443 with a tailnet certificate
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public Funnel (implies HTTPS)
}

// DatabaseConfig holds the audit database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds gateway authentication configuration.
// An empty secret leaves /mcp unauthenticated.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// QuickBooksConfig holds upstream and credential configuration
type QuickBooksConfig struct {
	CredentialPolicy string  `yaml:"credential_policy" toml:"credential_policy"`
	AccessToken      string  `yaml:"access_token" toml:"access_token"`
	RealmID          string  `yaml:"realm_id" toml:"realm_id"`
	Environment      string  `yaml:"environment" toml:"environment"`
	BaseURL          string  `yaml:"base_url" toml:"base_url"`
	MinorVersion     string  `yaml:"minor_version" toml:"minor_version"`
	RateLimit        float64 `yaml:"rate_limit" toml:"rate_limit"` // requests per second per realm, 0 disables
	RateBurst        int     `yaml:"rate_burst" toml:"rate_burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Default returns a configuration with every optional field set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Transport:     TransportHTTP,
			HTTPAddr:      "127.0.0.1:8080",
			SessionTTL:    DefaultSessionTTL,
			SessionTTLRaw: DefaultSessionTTL.String(),
		},
		Tailscale: TailscaleConfig{Hostname: "qbo-gateway"},
		Database:  DatabaseConfig{Path: DefaultDatabasePath()},
		QuickBooks: QuickBooksConfig{
			CredentialPolicy: string(credentials.PolicyFixed),
			Environment:      EnvironmentProduction,
			MinorVersion:     qbo.DefaultMinorVersion,
			RateLimit:        8,
			RateBurst:        10,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Path: "/metrics"},
	}
}

// DefaultDatabasePath returns $XDG_DATA_HOME/qbo-gateway/gateway.db,
// falling back to ~/.local/share.
func DefaultDatabasePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "qbo-gateway.db")
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "qbo-gateway", "gateway.db")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Parse decodes config data over the defaults without validating it.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if isTOML {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case TransportHTTP, TransportStdio:
	default:
		return fmt.Errorf("server.transport must be %q or %q, got %q", TransportHTTP, TransportStdio, c.Server.Transport)
	}

	if c.Server.Transport == TransportHTTP && !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}
	if c.Server.SessionTTL <= 0 {
		return fmt.Errorf("server.session_ttl must be positive")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLength)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	policy, err := credentials.ParsePolicy(c.QuickBooks.CredentialPolicy)
	if err != nil {
		return fmt.Errorf("quickbooks.credential_policy: %w", err)
	}
	if policy == credentials.PolicyPerRequest && c.Server.Transport != TransportHTTP {
		return fmt.Errorf("quickbooks.credential_policy %q requires the %s transport", policy, TransportHTTP)
	}

	switch c.QuickBooks.Environment {
	case "", EnvironmentProduction, EnvironmentSandbox:
	default:
		return fmt.Errorf("quickbooks.environment must be %q or %q", EnvironmentProduction, EnvironmentSandbox)
	}
	if c.QuickBooks.BaseURL != "" && !strings.Contains(c.QuickBooks.BaseURL, "{realmId}") {
		return fmt.Errorf("quickbooks.base_url must contain {realmId}")
	}
	if c.QuickBooks.RateLimit < 0 || c.QuickBooks.RateBurst < 0 {
		return fmt.Errorf("quickbooks.rate_limit and quickbooks.rate_burst must not be negative")
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// Policy returns the parsed credential policy. Call after Validate.
func (c *Config) Policy() credentials.Policy {
	p, _ := credentials.ParsePolicy(c.QuickBooks.CredentialPolicy)
	return p
}

// ResolvedBaseURL returns the upstream base template for the configured environment.
func (q QuickBooksConfig) ResolvedBaseURL() string {
	switch {
	case q.BaseURL != "":
		return q.BaseURL
	case q.Environment == EnvironmentSandbox:
		return qbo.SandboxBaseURL
	default:
		return qbo.ProductionBaseURL
	}
}

// ParseLevel maps a logging.level value to a slog level. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", level)
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Server.SessionTTLRaw != "" {
		d, err := time.ParseDuration(cfg.Server.SessionTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing session_ttl %q: %w", cfg.Server.SessionTTLRaw, err)
		}
		cfg.Server.SessionTTL = d
	}
	return nil
}
