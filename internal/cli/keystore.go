package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrz1836/estatelink/internal/output"
	"github.com/mrz1836/estatelink/internal/provider/keystore"
	"github.com/mrz1836/estatelink/internal/vault"
)

// keystoreCmd is the parent command for local keystore management.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keystoreCmd = &cobra.Command{
	Use:     "keystore",
	Short:   "Manage local keystores",
	GroupID: "setup",
	Long: `Create, import and list the encrypted keystores used by the keystore provider.

Keystores hold a BIP39 mnemonic encrypted with your password. The keystore
provider derives an Ethereum account from it to sign in.`,
}

// keystoreCreateCmd generates a new keystore.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keystoreCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Generate a new keystore",
	Long: `Generate a new mnemonic, encrypt it with a password and store it.

The mnemonic is shown once. Write it down; it is the only way to restore
the keystore.

Example:
  estatelink keystore create main
  estatelink keystore create main --words 24`,
	Args: cobra.ExactArgs(1),
	RunE: runKeystoreCreate,
}

// keystoreImportCmd stores an existing mnemonic.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keystoreImportCmd = &cobra.Command{
	Use:   "import <name>",
	Short: "Import an existing mnemonic",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeystoreImport,
}

// keystoreListCmd lists keystores.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keystoreListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keystores",
	RunE:  runKeystoreList,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var keystoreWords int

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(keystoreCmd)
	keystoreCmd.AddCommand(keystoreCreateCmd)
	keystoreCmd.AddCommand(keystoreImportCmd)
	keystoreCmd.AddCommand(keystoreListCmd)

	keystoreCreateCmd.Flags().IntVar(&keystoreWords, "words", 12, "mnemonic length: 12 or 24")
}

// keystoreResult is the JSON shape for create and import.
type keystoreResult struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Path     string `json:"path"`
	Mnemonic string `json:"mnemonic,omitempty"`
}

func runKeystoreCreate(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	name := args[0]

	if err := keystore.ValidateName(name); err != nil {
		return err
	}

	password, err := promptNewPasswordFn()
	if err != nil {
		return err
	}
	defer vault.Zero(password)

	store := keystore.NewStore(cc.Config.KeystoreDir())
	mnemonic, err := store.Create(name, keystoreWords, password)
	if err != nil {
		return err
	}

	res, err := describeKeystore(name, mnemonic, cc)
	if err != nil {
		return err
	}
	cc.Logger.Debug("created keystore %s", name)

	w := cmd.OutOrStdout()
	if cc.Fmt.IsJSON() {
		res.Mnemonic = mnemonic
		return writeJSON(w, res)
	}

	out(w, "Keystore '%s' created.\n\n", name)
	outln(w, "Recovery phrase (write it down, it will not be shown again):")
	outln(w)
	out(w, "  %s\n\n", mnemonic)
	out(w, "Address: %s\n", res.Address)
	out(w, "Path:    %s\n", res.Path)
	return nil
}

func runKeystoreImport(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	name := args[0]

	if err := keystore.ValidateName(name); err != nil {
		return err
	}

	mnemonic, err := promptSecretLineFn("Enter recovery phrase: ")
	if err != nil {
		return err
	}
	mnemonic = keystore.NormalizeMnemonic(mnemonic)
	if err := keystore.ValidateMnemonic(mnemonic); err != nil {
		return err
	}

	password, err := promptNewPasswordFn()
	if err != nil {
		return err
	}
	defer vault.Zero(password)

	store := keystore.NewStore(cc.Config.KeystoreDir())
	if err := store.Import(name, mnemonic, password); err != nil {
		return err
	}

	res, err := describeKeystore(name, mnemonic, cc)
	if err != nil {
		return err
	}
	cc.Logger.Debug("imported keystore %s", name)

	w := cmd.OutOrStdout()
	if cc.Fmt.IsJSON() {
		return writeJSON(w, res)
	}

	out(w, "Keystore '%s' imported.\n", name)
	out(w, "Address: %s\n", res.Address)
	out(w, "Path:    %s\n", res.Path)
	return nil
}

func runKeystoreList(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	names, err := keystore.NewStore(cc.Config.KeystoreDir()).List()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if cc.Fmt.IsJSON() {
		type entry struct {
			Name    string `json:"name"`
			Default bool   `json:"default"`
		}
		entries := make([]entry, 0, len(names))
		for _, n := range names {
			entries = append(entries, entry{Name: n, Default: n == cc.Config.Keystore.Name})
		}
		return writeJSON(w, entries)
	}

	if len(names) == 0 {
		outln(w, "No keystores found. Create one with 'estatelink keystore create <name>'.")
		return nil
	}

	table := output.NewTable("NAME", "DEFAULT")
	for _, n := range names {
		marker := ""
		if n == cc.Config.Keystore.Name {
			marker = "*"
		}
		table.AddRow(n, marker)
	}
	return table.Render(w)
}

// describeKeystore derives the configured account for display.
func describeKeystore(name, mnemonic string, cc *CommandContext) (keystoreResult, error) {
	acct, err := keystore.DeriveAccount(mnemonic, cc.Config.Keystore.Account, cc.Config.Keystore.Index)
	if err != nil {
		return keystoreResult{}, fmt.Errorf("deriving account: %w", err)
	}
	defer acct.Destroy()

	return keystoreResult{Name: name, Address: acct.Address, Path: acct.Path}, nil
}
