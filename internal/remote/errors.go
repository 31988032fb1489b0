package remote

import "fmt"

// SnapshotFetchError reports a failed listing of a container's existing
// procedures. The container's deploy phase is skipped.
type SnapshotFetchError struct {
	Container string
	Err       error
}

func (e *SnapshotFetchError) Error() string {
	return fmt.Sprintf("list procedures in %s: %v", e.Container, e.Err)
}

func (e *SnapshotFetchError) Unwrap() error {
	return e.Err
}

// RemoteCreateError reports a failed create call for one script.
type RemoteCreateError struct {
	Container string
	Script    string
	Err       error
}

func (e *RemoteCreateError) Error() string {
	return fmt.Sprintf("create %s/%s: %v", e.Container, e.Script, e.Err)
}

func (e *RemoteCreateError) Unwrap() error {
	return e.Err
}

// RemoteReplaceError reports a failed replace call for one script.
type RemoteReplaceError struct {
	Container string
	Script    string
	Err       error
}

func (e *RemoteReplaceError) Error() string {
	return fmt.Sprintf("replace %s/%s: %v", e.Container, e.Script, e.Err)
}

func (e *RemoteReplaceError) Unwrap() error {
	return e.Err
}
