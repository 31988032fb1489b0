package syncer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/procsync/internal/compiler"
	"github.com/roach88/procsync/internal/procedure"
	"github.com/roach88/procsync/internal/remote"
)

// ArtifactError reports a compiled artifact that could not be read even
// though its compile succeeded.
type ArtifactError struct {
	Container string
	Script    string
	Path      string
	Err       error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("read artifact %s/%s (%s): %v", e.Container, e.Script, e.Path, e.Err)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// UnknownContainerError reports container filter names that discovery did
// not find.
type UnknownContainerError struct {
	Names []string
}

func (e *UnknownContainerError) Error() string {
	return fmt.Sprintf("unknown container(s): %s", strings.Join(e.Names, ", "))
}

// IsCompileError returns true if err is or wraps a *compiler.CompileError.
func IsCompileError(err error) bool {
	var ce *compiler.CompileError
	return errors.As(err, &ce)
}

// IsSnapshotError returns true if err is or wraps a *remote.SnapshotFetchError.
func IsSnapshotError(err error) bool {
	var se *remote.SnapshotFetchError
	return errors.As(err, &se)
}

// IsDeployError returns true if err is a failed create or replace call.
func IsDeployError(err error) bool {
	var ce *remote.RemoteCreateError
	if errors.As(err, &ce) {
		return true
	}
	var re *remote.RemoteReplaceError
	return errors.As(err, &re)
}

// IsArtifactError returns true if err is or wraps an *ArtifactError.
func IsArtifactError(err error) bool {
	var ae *ArtifactError
	return errors.As(err, &ae)
}

// IsAmbiguousID returns true if err is or wraps a *procedure.AmbiguousIDError.
func IsAmbiguousID(err error) bool {
	var ae *procedure.AmbiguousIDError
	return errors.As(err, &ae)
}

// IsUnknownContainer returns true if err is or wraps an *UnknownContainerError.
func IsUnknownContainer(err error) bool {
	var ue *UnknownContainerError
	return errors.As(err, &ue)
}
