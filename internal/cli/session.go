package cli

import (
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/estatelink/internal/output"
	"github.com/mrz1836/estatelink/internal/walletsession"
)

// sessionCmd is the parent command for wallet session operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionCmd = &cobra.Command{
	Use:     "session",
	Short:   "Manage the wallet session",
	GroupID: "session",
	Long: `Sign in with a wallet, sign out, or show who is signed in.

A session is signed in only after the wallet has returned an address and
signed a one-time challenge for it.`,
}

// sessionConnectCmd links a wallet and signs the challenge.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Sign in with your wallet",
	Long: `Connect the configured wallet provider and sign an authentication challenge.

If the wallet is already linked the existing session is reused and no
signature is requested. Cancelling in the wallet leaves you signed out.

Example:
  estatelink session connect
  estatelink session connect -o json`,
	RunE: runSessionConnect,
}

// sessionDisconnectCmd unlinks the wallet.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionDisconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Sign out and unlink the wallet",
	RunE:  runSessionDisconnect,
}

// sessionStatusCmd shows the current session.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who is signed in",
	RunE:  runSessionStatus,
}

// sessionMetricsCmd prints this run's metrics.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Restore the session and print metrics",
	Long: `Restore any existing wallet link and print the collected metrics in the
Prometheus text exposition format.`,
	RunE: runSessionMetrics,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionConnectCmd)
	sessionCmd.AddCommand(sessionDisconnectCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionMetricsCmd)
}

func runSessionConnect(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	s, closeFn, err := openSession(ctx, cc)
	if err != nil {
		return err
	}
	defer closeFn()

	w := cmd.OutOrStdout()
	if s.State().Connected {
		return displayState(w, cc.Fmt, s.State(), "Already signed in as")
	}

	if err := s.Connect(ctx); err != nil {
		return err
	}

	st := s.State()
	if !st.Connected {
		if cc.Fmt.IsJSON() {
			return writeJSON(w, st)
		}
		outln(w, "Connection cancelled. Not signed in.")
		return nil
	}
	return displayState(w, cc.Fmt, st, "Signed in as")
}

func runSessionDisconnect(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx := cmd.Context()

	s, closeFn, err := openSession(ctx, cc)
	if err != nil {
		return err
	}
	defer closeFn()

	s.Disconnect(ctx)
	return output.FormatSuccess(cmd.OutOrStdout(), "Signed out.", cc.Fmt.Format())
}

func runSessionStatus(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	s, closeFn, err := openSession(cmd.Context(), cc)
	if err != nil {
		return err
	}
	defer closeFn()

	return displayState(cmd.OutOrStdout(), cc.Fmt, s.State(), "Signed in as")
}

func runSessionMetrics(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	_, closeFn, err := openSession(cmd.Context(), cc)
	if err != nil {
		return err
	}
	defer closeFn()

	return cc.Metrics.WriteText(cmd.OutOrStdout())
}

// displayState prints st. Signed-out sessions get the connect affordance.
func displayState(w io.Writer, f *output.Formatter, st walletsession.State, lead string) error {
	if f.IsJSON() {
		return writeJSON(w, st)
	}

	if !st.Connected {
		outln(w, "Not signed in. Run 'estatelink session connect' to link your wallet.")
		return nil
	}

	out(w, "%s %s\n", lead, st.Address)
	out(w, "  Chain:    %s\n", st.Chain)
	out(w, "  Provider: %s\n", st.Provider)
	if !st.ConnectedAt.IsZero() {
		out(w, "  Since:    %s\n", st.ConnectedAt.Format(time.RFC3339))
	}
	return nil
}
