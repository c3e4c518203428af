package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrz1836/estatelink/internal/version"
)

// versionCmd prints build information.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cc := GetCmdContext(cmd)
		info := version.Get()

		w := cmd.OutOrStdout()
		if cc.Fmt.IsJSON() {
			return writeJSON(w, info)
		}
		out(w, "estatelink %s\n", info.String())
		return nil
	},
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(versionCmd)
}
