package procedure

// Stage names the pipeline phase in which a script's processing ended.
type Stage string

const (
	StageCompile  Stage = "compile"
	StageSnapshot Stage = "snapshot"
	StageClassify Stage = "classify"
	StageRead     Stage = "read"
	StageDeploy   Stage = "deploy"
)

// Outcome is the final status of one script in one run.
//
// Err is nil when the script completed every phase the run asked for.
// Stage is then the last phase performed; otherwise it is the phase that
// failed.
type Outcome struct {
	Container string
	Script    string
	Stage     Stage
	Action    Action
	Digest    string
	Err       error
	Seq       int64
}

// Succeeded reports whether the script finished without error.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Status returns a short human-readable status word.
func (o Outcome) Status() string {
	if o.Err != nil {
		switch o.Stage {
		case StageCompile:
			return "compile failed"
		case StageSnapshot:
			return "skipped"
		case StageClassify:
			return "classify failed"
		default:
			return "deploy failed"
		}
	}
	switch o.Stage {
	case StageCompile:
		return "compiled"
	case StageClassify:
		return "will " + string(o.Action)
	case StageDeploy:
		if o.Action == ActionReplace {
			return "replaced"
		}
		return "created"
	}
	return string(o.Stage)
}
