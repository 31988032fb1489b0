package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/procsync/internal/catalog"
	"github.com/roach88/procsync/internal/syncer"
)

// NewSyncCommand creates the sync command, the same pipeline the bare
// procsync invocation runs.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Compile every script and create or replace its procedure",
		Long: `Compile every script, list each container's existing procedures once,
then create new procedures and replace existing ones.

Example:
  procsync sync
  procsync sync --container orders --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, opts, syncer.ModeSync)
		},
	}
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show which procedures would be created or replaced",
		Long: `Compile every script and classify it against the existing procedures
without writing anything to the target.

Example:
  procsync plan --container orders`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, opts, syncer.ModePlan)
		},
	}
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Compile every script without contacting the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, opts, syncer.ModeCompile)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// runPipeline runs the engine in mode and prints the report. Per-script
// failures are part of the report and do not produce an error.
func runPipeline(cmd *cobra.Command, opts *RootOptions, mode syncer.Mode) error {
	e, err := newEnv(cmd, opts)
	if err != nil {
		return err
	}
	defer e.Close()

	eng, err := e.newEngine(opts, mode)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	report, err := eng.Run(ctx, syncer.RunOptions{Mode: mode, Containers: opts.Containers})
	if err != nil {
		return runError(err)
	}
	return writeReport(e.out, report)
}

// runError maps fatal engine errors to exit errors.
func runError(err error) error {
	var de *catalog.DiscoveryError
	switch {
	case errors.As(err, &de):
		return commandError(de.Code, "discovery failed", err)
	case syncer.IsUnknownContainer(err):
		return commandError(ErrCodeUnknownContainer, "invalid container filter", err)
	default:
		return WrapExitError(ExitFailure, "run failed", err)
	}
}
