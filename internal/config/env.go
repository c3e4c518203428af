package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Environment variable names.
const (
	EnvHome         = "ESTATELINK_HOME"
	EnvProvider     = "ESTATELINK_PROVIDER"
	EnvChain        = "ESTATELINK_CHAIN"
	EnvBridgeURL    = "ESTATELINK_BRIDGE_URL"
	EnvBridgeToken  = "ESTATELINK_BRIDGE_TOKEN" // #nosec G101 -- variable name, not a credential
	EnvKeystore     = "ESTATELINK_KEYSTORE"
	EnvOutputFormat = "ESTATELINK_OUTPUT_FORMAT"
	EnvVerbose      = "ESTATELINK_VERBOSE"
	EnvLogLevel     = "ESTATELINK_LOG_LEVEL"
	EnvNoColor      = "NO_COLOR"
)

// environment holds raw override values; empty means unset.
type environment struct {
	Home         string `env:"ESTATELINK_HOME"`
	Provider     string `env:"ESTATELINK_PROVIDER"`
	Chain        string `env:"ESTATELINK_CHAIN"`
	BridgeURL    string `env:"ESTATELINK_BRIDGE_URL"`
	BridgeToken  string `env:"ESTATELINK_BRIDGE_TOKEN"`
	Keystore     string `env:"ESTATELINK_KEYSTORE"`
	OutputFormat string `env:"ESTATELINK_OUTPUT_FORMAT"`
	Verbose      string `env:"ESTATELINK_VERBOSE"`
	LogLevel     string `env:"ESTATELINK_LOG_LEVEL"`
}

// ApplyEnvironment applies environment variable overrides to the configuration.
func ApplyEnvironment(cfg *Config) error {
	var raw environment
	if err := env.Parse(&raw); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if raw.Home != "" {
		cfg.Home = raw.Home
	}
	if raw.Provider != "" {
		cfg.Provider.Type = strings.ToLower(strings.TrimSpace(raw.Provider))
	}
	if raw.Chain != "" {
		cfg.Provider.Chain = strings.ToLower(strings.TrimSpace(raw.Chain))
	}
	if raw.BridgeURL != "" {
		cfg.Bridge.URL = strings.TrimSpace(raw.BridgeURL)
	}
	if raw.BridgeToken != "" {
		cfg.Bridge.Token = raw.BridgeToken
	}
	if raw.Keystore != "" {
		cfg.Keystore.Name = raw.Keystore
	}
	if raw.OutputFormat != "" {
		cfg.Output.DefaultFormat = strings.ToLower(raw.OutputFormat)
	}
	if raw.Verbose != "" {
		cfg.Output.Verbose = parseBool(raw.Verbose)
	}
	if raw.LogLevel != "" {
		cfg.Logging.Level = strings.ToLower(raw.LogLevel)
	}

	// NO_COLOR disables colored output even when set to an empty value.
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}

	return nil
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}
