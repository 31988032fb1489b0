package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/procsync/internal/syncer"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "text" | "json" | "yaml"
	ConfigFile string
	LogLevel   string
	Containers []string
	NoColor    bool

	// RunIDs overrides run id generation (for testing).
	RunIDs syncer.RunIDGenerator
	// Now overrides the wall clock (for testing).
	Now func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the procsync command. Invoked without a
// subcommand it runs the full pipeline, same as "procsync sync".
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "procsync",
		Short: "Compile stored procedures and sync them to the remote store",
		Long: `procsync compiles each container's stored-procedure scripts and deploys
them to the remote procedure store.

Scripts live at <scripts_dir>/<container>/<script>.ts. For every container
all scripts are compiled, the existing procedures are listed once, and each
compiled script is then created or replaced. A failing script never stops
the others.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, opts, syncer.ModeSync)
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	pf.StringVar(&opts.ConfigFile, "config", "", "config file (default: procsync.yaml in ., $XDG_CONFIG_HOME/procsync, ~/.config/procsync)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	pf.StringArrayVar(&opts.Containers, "container", nil, "restrict the run to a container (repeatable)")
	pf.BoolVar(&opts.NoColor, "no-color", color.NoColor, "disable colored output")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
