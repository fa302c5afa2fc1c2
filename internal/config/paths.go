// ABOUTME: Config file path resolution shared by every command
// ABOUTME: Flag first, then QBO_GATEWAY_CONFIG, then the XDG config directory

package config

import (
	"os"
	"path/filepath"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "QBO_GATEWAY_CONFIG"

// ResolvePath picks the config file to use. explicit reports whether the
// path was chosen by the caller (flag or environment) rather than defaulted;
// a missing defaulted file is not an error.
func ResolvePath(flagValue string) (path string, explicit bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, true
	}
	return DefaultPath(), false
}

// DefaultPath returns $XDG_CONFIG_HOME/qbo-gateway/gateway.yaml, falling back to ~/.config.
func DefaultPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "qbo-gateway", "gateway.yaml")
}

// LoadOrDefault loads path. When path was defaulted and does not exist, the
// validated defaults are returned so env-only setups work without a file.
func LoadOrDefault(path string, explicit bool) (*Config, error) {
	if !explicit {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			cfg := Default()
			return cfg, cfg.Validate()
		}
	}
	return Load(path)
}
