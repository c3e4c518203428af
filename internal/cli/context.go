package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mrz1836/estatelink/internal/config"
	"github.com/mrz1836/estatelink/internal/metrics"
	"github.com/mrz1836/estatelink/internal/output"
)

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Config  *config.Config
	Logger  *config.Logger
	Fmt     *output.Formatter
	Metrics *metrics.Metrics
}

// NewCommandContext creates a context with the given dependencies.
func NewCommandContext(
	c *config.Config,
	l *config.Logger,
	f *output.Formatter,
	m *metrics.Metrics,
) *CommandContext {
	return &CommandContext{Config: c, Logger: l, Fmt: f, Metrics: m}
}

type cmdContextKey struct{}

// SetCmdContext attaches cc to cmd.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cmdContextKey{}, cc))
}

// GetCmdContext returns the context attached to cmd, falling back to the
// globals when none was attached.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	if ctx := cmd.Context(); ctx != nil {
		if cc, ok := ctx.Value(cmdContextKey{}).(*CommandContext); ok {
			return cc
		}
	}
	return NewCommandContext(cfg, logger, formatter, metrics.Global)
}
