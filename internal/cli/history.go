package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/procsync/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	RunID string
	Runs  bool
	Limit int
}

type historyView struct {
	Run     store.Run     `json:"run" yaml:"run"`
	Entries []store.Entry `json:"entries" yaml:"entries"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded outcomes from the ledger",
		Long: `Show the outcomes of a recorded run. Without --run the latest run is
shown. Requires ledger.path to be configured.

Example:
  procsync history
  procsync history --runs --limit 5
  procsync history --run 0190f7c4-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (default: latest)")
	cmd.Flags().BoolVar(&opts.Runs, "runs", false, "list runs instead of outcomes")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs listed with --runs")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	e, err := newEnv(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.Close()

	if e.cfg.Ledger.Path == "" {
		return commandError(ErrCodeLedger, "no ledger configured", errors.New("set ledger.path"))
	}
	st, err := e.openStore(e.cfg.Ledger.Path)
	if err != nil {
		return commandError(ErrCodeLedger, "failed to open ledger", err)
	}
	ctx := cmd.Context()

	if opts.Runs {
		runs, err := st.ListRuns(ctx, opts.Limit)
		if err != nil {
			return commandError(ErrCodeLedger, "failed to read ledger", err)
		}
		if e.out.Structured() {
			return e.out.Success(runs)
		}
		for _, r := range runs {
			state := "running"
			if r.FinishedAt != nil {
				state = r.FinishedAt.Sub(r.StartedAt).String()
			}
			fmt.Fprintf(e.out.Writer, "%s  %-7s  %s  %s\n", r.ID, r.Mode, r.StartedAt.UTC().Format("2006-01-02 15:04:05"), state)
		}
		return nil
	}

	var run store.Run
	if opts.RunID != "" {
		run, err = st.GetRun(ctx, opts.RunID)
	} else {
		run, err = st.LatestRun(ctx)
	}
	if err != nil {
		return commandError(ErrCodeLedger, "failed to read ledger", err)
	}
	entries, err := st.ReadRun(ctx, run.ID)
	if err != nil {
		return commandError(ErrCodeLedger, "failed to read ledger", err)
	}

	if e.out.Structured() {
		return e.out.Success(historyView{Run: run, Entries: entries})
	}
	w := e.out.Writer
	fmt.Fprintf(w, "run %s (%s)\n", run.ID, run.Mode)
	for _, en := range entries {
		mark := e.out.paint(color.FgGreen, "✔")
		line := fmt.Sprintf("%s/%s  %s", en.Container, en.Script, en.Stage)
		if en.Action != "" {
			line += " " + en.Action
		}
		if en.Error != "" {
			mark = e.out.paint(color.FgRed, "✘")
			line += ": " + en.Error
		}
		fmt.Fprintf(w, "  %s %s\n", mark, line)
	}
	return nil
}
