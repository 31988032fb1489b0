package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Execute runs procsync with os.Args and returns the process exit code.
func Execute() int {
	return execute(context.Background(), &RootOptions{}, os.Args[1:], os.Stdout, os.Stderr)
}

// execute runs the root command and reports a failure in the selected
// format: structured errors go to stdout, text errors to stderr.
func execute(ctx context.Context, opts *RootOptions, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	})

	err := cmd.ExecuteContext(ctx)
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return ExitSuccess
	}

	f := &OutputFormatter{Format: opts.Format, Writer: stderr, Verbose: opts.Verbose, Color: !opts.NoColor}
	if !isValidFormat(opts.Format) {
		f.Format = "text"
	}
	if f.Structured() {
		f.Writer = stdout
	}
	_ = f.Error(ErrorCode(err), err.Error(), nil)
	return GetExitCode(err)
}
