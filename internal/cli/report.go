package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/roach88/procsync/internal/procedure"
	"github.com/roach88/procsync/internal/syncer"
)

type reportView struct {
	RunID      string          `json:"run_id" yaml:"run_id"`
	Mode       string          `json:"mode" yaml:"mode"`
	StartedAt  time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time       `json:"finished_at" yaml:"finished_at"`
	Summary    syncer.Summary  `json:"summary" yaml:"summary"`
	Containers []containerView `json:"containers" yaml:"containers"`
}

type containerView struct {
	Name          string       `json:"name" yaml:"name"`
	Snapshot      []string     `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
	SnapshotError string       `json:"snapshot_error,omitempty" yaml:"snapshot_error,omitempty"`
	Scripts       []scriptView `json:"scripts" yaml:"scripts"`
}

type scriptView struct {
	Script string `json:"script" yaml:"script"`
	Status string `json:"status" yaml:"status"`
	Stage  string `json:"stage" yaml:"stage"`
	Action string `json:"action,omitempty" yaml:"action,omitempty"`
	Digest string `json:"digest,omitempty" yaml:"digest,omitempty"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newReportView(r *syncer.Report) reportView {
	v := reportView{
		RunID:      r.RunID,
		Mode:       string(r.Mode),
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
		Summary:    r.Summary(),
		Containers: make([]containerView, 0, len(r.Containers)),
	}
	for _, c := range r.Containers {
		cv := containerView{
			Name:     c.Name,
			Snapshot: c.Snapshot,
			Scripts:  make([]scriptView, 0, len(c.Outcomes)),
		}
		if c.SnapshotErr != nil {
			cv.SnapshotError = c.SnapshotErr.Error()
		}
		for _, o := range c.Outcomes {
			sv := scriptView{
				Script: o.Script,
				Status: o.Status(),
				Stage:  string(o.Stage),
				Action: string(o.Action),
				Digest: o.Digest,
			}
			if o.Err != nil {
				sv.Error = o.Err.Error()
			}
			cv.Scripts = append(cv.Scripts, sv)
		}
		v.Containers = append(v.Containers, cv)
	}
	return v
}

// writeReport prints a run report in the formatter's format.
func writeReport(f *OutputFormatter, r *syncer.Report) error {
	if f.Structured() {
		return f.Success(newReportView(r))
	}
	renderReport(f, f.Writer, r)
	return nil
}

func renderReport(f *OutputFormatter, w io.Writer, r *syncer.Report) {
	fmt.Fprintf(w, "run %s (%s)\n", r.RunID, r.Mode)
	for _, c := range r.Containers {
		fmt.Fprintln(w, f.paint(color.Bold, c.Name))
		if c.SnapshotErr != nil {
			fmt.Fprintf(w, "  %s snapshot failed: %v\n", f.paint(color.FgRed, "✘"), c.SnapshotErr)
		}
		if len(c.Outcomes) == 0 {
			fmt.Fprintln(w, "  (no scripts)")
			continue
		}
		width := 0
		for _, o := range c.Outcomes {
			if len(o.Script) > width {
				width = len(o.Script)
			}
		}
		for _, o := range c.Outcomes {
			fmt.Fprintf(w, "  %s %-*s  %s\n", glyph(f, o), width, o.Script, describe(f, o))
		}
	}

	s := r.Summary()
	parts := []string{fmt.Sprintf("%d compiled", s.Compiled)}
	switch r.Mode {
	case syncer.ModeSync:
		parts = append(parts, fmt.Sprintf("%d created", s.Created), fmt.Sprintf("%d replaced", s.Replaced))
	case syncer.ModePlan:
		parts = append(parts, fmt.Sprintf("%d planned", s.Planned))
	}
	parts = append(parts, fmt.Sprintf("%d failed", s.Failed))
	fmt.Fprintf(w, "%d containers, %d scripts: %s\n", s.Containers, s.Scripts, strings.Join(parts, ", "))
}

func glyph(f *OutputFormatter, o procedure.Outcome) string {
	switch {
	case o.Err != nil && o.Stage == procedure.StageSnapshot:
		return f.paint(color.FgYellow, "-")
	case o.Err != nil:
		return f.paint(color.FgRed, "✘")
	case o.Stage == procedure.StageClassify:
		return f.paint(color.FgCyan, "→")
	default:
		return f.paint(color.FgGreen, "✔")
	}
}

func describe(f *OutputFormatter, o procedure.Outcome) string {
	status := o.Status()
	if o.Err == nil || o.Stage == procedure.StageSnapshot {
		if f.Verbose && o.Digest != "" {
			return fmt.Sprintf("%s  %s", status, o.Digest[:12])
		}
		return status
	}
	return fmt.Sprintf("%s: %v", status, o.Err)
}
