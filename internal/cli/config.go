package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/estatelink/internal/config"
	linkerr "github.com/mrz1836/estatelink/pkg/errors"
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage configuration",
	GroupID: "setup",
	Long:    `View and modify estatelink configuration settings.`,
}

// configInitCmd initializes the configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at ~/.estatelink/config.yaml.

If a configuration file already exists, this command will not overwrite it
unless --force is specified.

Example:
  estatelink config init
  estatelink config init --force`,
	RunE: runConfigInit,
}

// configShowCmd shows the current configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display every configuration key with its effective value.

Environment overrides are included. The bridge token is masked.

Example:
  estatelink config show
  estatelink config show -o json`,
	RunE: runConfigShow,
}

// configGetCmd gets a specific configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long: `Get a configuration value by its dotted key.

Examples:
  estatelink config get provider.type
  estatelink config get bridge.url`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

// configSetCmd sets a configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value by its dotted key.
The configuration file is updated immediately.

Examples:
  estatelink config set provider.type keystore
  estatelink config set provider.chain eth
  estatelink config set bridge.url http://127.0.0.1:8645/rpc`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	configPath := config.Path(cc.Config.Home)

	if _, err := os.Stat(configPath); err == nil && !configForce {
		return linkerr.WithSuggestion(
			linkerr.ErrGeneral,
			fmt.Sprintf("configuration already exists at %s. Use --force to overwrite.", configPath),
		)
	}

	defaultCfg := defaultsFor(cc.Config.Home)

	if err := config.Save(defaultCfg, configPath); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	w := cmd.OutOrStdout()
	out(w, "Configuration initialized at %s\n", configPath)
	outln(w)
	outln(w, "Edit this file to configure:")
	outln(w, "  - provider.type: Wallet provider (bridge/keystore)")
	outln(w, "  - provider.chain: Chain to sign in with (stx/eth)")
	outln(w, "  - bridge.url: Wallet bridge endpoint")
	outln(w, "  - logging.level: Log level (off/error/debug)")

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	w := cmd.OutOrStdout()

	values := make(map[string]string, len(config.Keys()))
	for _, k := range config.Keys() {
		v, err := cc.Config.Get(k)
		if err != nil {
			return err
		}
		values[k] = v
	}

	if cc.Fmt.IsJSON() {
		return writeJSON(w, values)
	}

	out(w, "Configuration (%s):\n\n", config.Path(cc.Config.Home))
	for _, k := range config.Keys() {
		out(w, "  %s = %s\n", k, values[k])
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)

	value, err := cc.Config.Get(args[0])
	if err != nil {
		return err
	}

	outln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	key, value := args[0], args[1]

	configPath := config.Path(cc.Config.Home)
	current, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		current = defaultsFor(cc.Config.Home)
	}

	if err := current.Set(key, value); err != nil {
		return err
	}
	if err := current.Validate(); err != nil {
		return err
	}

	if err := config.Save(current, configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	shown, _ := current.Get(key)
	out(cmd.OutOrStdout(), "Set %s = %s\n", key, shown)
	return nil
}
