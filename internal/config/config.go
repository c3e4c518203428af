// Package config provides configuration management for estatelink.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/estatelink/internal/fileutil"
	linkerr "github.com/mrz1836/estatelink/pkg/errors"
)

// Supported provider types.
const (
	ProviderBridge   = "bridge"
	ProviderKeystore = "keystore"
)

// Supported chains.
const (
	ChainSTX = "stx"
	ChainETH = "eth"
)

// Config represents the application configuration.
type Config struct {
	Version  int            `yaml:"version"`
	Home     string         `yaml:"home"`
	Provider ProviderConfig `yaml:"provider"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Keystore KeystoreConfig `yaml:"keystore"`
	Output   OutputConfig   `yaml:"output"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ProviderConfig selects the wallet provider and the chain the session authenticates on.
type ProviderConfig struct {
	Type    string `yaml:"type"`
	Chain   string `yaml:"chain"`
	AppName string `yaml:"app_name"`
}

// BridgeConfig configures the JSON-RPC wallet bridge provider.
type BridgeConfig struct {
	URL           string  `yaml:"url"`
	Token         string  `yaml:"token,omitempty"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// KeystoreConfig configures the local keystore provider.
type KeystoreConfig struct {
	Name    string `yaml:"name"`
	Account uint32 `yaml:"account"`
	Index   uint32 `yaml:"index"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from the specified file on top of Defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, linkerr.WithCause(linkerr.ErrConfigInvalid, err)
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return fileutil.WriteAtomic(path, data, 0o600)
}

// Path returns the config file path inside home.
func Path(home string) string {
	return filepath.Join(ExpandPath(home), "config.yaml")
}

// Validate checks the provider selection, chain and bridge URL.
func (c *Config) Validate() error {
	switch c.Provider.Type {
	case ProviderBridge, ProviderKeystore:
	default:
		return linkerr.WithDetails(linkerr.ErrUnknownProvider, map[string]string{
			"provider":  c.Provider.Type,
			"supported": ProviderBridge + ", " + ProviderKeystore,
		})
	}

	switch c.Provider.Chain {
	case ChainSTX, ChainETH:
	default:
		return linkerr.WithDetails(linkerr.ErrUnknownChain, map[string]string{
			"chain":     c.Provider.Chain,
			"supported": ChainETH + ", " + ChainSTX,
		})
	}

	if c.Provider.Type == ProviderKeystore && c.Provider.Chain != ChainETH {
		return linkerr.WithSuggestion(
			linkerr.WithDetails(linkerr.ErrUnknownChain, map[string]string{
				"chain":    c.Provider.Chain,
				"provider": ProviderKeystore,
			}),
			"the keystore provider signs with EVM keys; set provider.chain to eth",
		)
	}

	if c.Provider.Type == ProviderBridge {
		u, err := url.Parse(c.Bridge.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return linkerr.WithDetails(linkerr.ErrConfigInvalid, map[string]string{
				"bridge.url": c.Bridge.URL,
			})
		}
	}

	if c.Bridge.RatePerSecond < 0 || c.Bridge.Burst < 0 {
		return linkerr.WithSuggestion(linkerr.ErrConfigInvalid, "bridge rate limits must not be negative")
	}

	return nil
}

// GetHome returns the expanded home directory path.
func (c *Config) GetHome() string {
	return ExpandPath(c.Home)
}

// ProviderStatePath returns the file a provider uses for its linked-address storage.
func (c *Config) ProviderStatePath(provider string) string {
	return filepath.Join(c.GetHome(), "providers", provider+".json")
}

// KeystoreDir returns the directory holding encrypted keystores.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.GetHome(), "keystores")
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the configured log file path.
func (c *Config) GetLoggingFile() string {
	return c.Logging.File
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}

// DefaultHome returns the default estatelink home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".estatelink"
	}
	return filepath.Join(home, ".estatelink")
}

// ExpandPath expands a leading "~/" to the user's home directory.
func ExpandPath(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// String renders the config as YAML for display.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return string(data)
}
