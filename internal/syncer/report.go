package syncer

import (
	"time"

	"github.com/roach88/procsync/internal/procedure"
)

// Report is the result of one run.
type Report struct {
	RunID      string
	Mode       Mode
	StartedAt  time.Time
	FinishedAt time.Time
	// Containers are in discovery order.
	Containers []ContainerReport
}

// ContainerReport holds one container's outcomes.
type ContainerReport struct {
	Name string
	// Snapshot is the listing used for classification, sorted. Nil when no
	// snapshot was taken.
	Snapshot []string
	// SnapshotErr is set when the listing failed.
	SnapshotErr error
	// Outcomes has one entry per script, in catalog order.
	Outcomes []procedure.Outcome
}

// Summary counts outcomes across a report.
type Summary struct {
	Containers    int `json:"containers" yaml:"containers"`
	Scripts       int `json:"scripts" yaml:"scripts"`
	Compiled      int `json:"compiled" yaml:"compiled"`
	CompileFailed int `json:"compile_failed" yaml:"compile_failed"`
	Created       int `json:"created" yaml:"created"`
	Replaced      int `json:"replaced" yaml:"replaced"`
	Planned       int `json:"planned" yaml:"planned"`
	Failed        int `json:"failed" yaml:"failed"`
}

// Summary tallies the report.
func (r *Report) Summary() Summary {
	s := Summary{Containers: len(r.Containers)}
	for _, c := range r.Containers {
		for _, o := range c.Outcomes {
			s.Scripts++
			if o.Err != nil && o.Stage == procedure.StageCompile {
				s.CompileFailed++
			} else {
				s.Compiled++
			}
			if o.Err != nil {
				s.Failed++
				continue
			}
			switch o.Stage {
			case procedure.StageClassify:
				s.Planned++
			case procedure.StageDeploy:
				if o.Action == procedure.ActionReplace {
					s.Replaced++
				} else {
					s.Created++
				}
			}
		}
	}
	return s
}

// Outcomes returns every outcome ordered by container then script.
func (r *Report) Outcomes() []procedure.Outcome {
	var out []procedure.Outcome
	for _, c := range r.Containers {
		out = append(out, c.Outcomes...)
	}
	return out
}

// Container returns the report for name.
func (r *Report) Container(name string) (ContainerReport, bool) {
	for _, c := range r.Containers {
		if c.Name == name {
			return c, true
		}
	}
	return ContainerReport{}, false
}

// Failed reports whether any script failed.
func (r *Report) Failed() bool {
	return r.Summary().Failed > 0
}
