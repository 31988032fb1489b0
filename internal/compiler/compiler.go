package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Compiler compiles a single script of a container. A nil error means the
// artifact exists at the layout's ArtifactPath for that script.
type Compiler interface {
	Compile(ctx context.Context, container, script string) error
}

// ErrArtifactNotProduced is the cause used when a compiler reported success
// but left no artifact behind.
var ErrArtifactNotProduced = errors.New("compiler produced no artifact")

// CompileError reports a failed compilation of one script.
type CompileError struct {
	Container string
	Script    string
	Cause     error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %s/%s: %v", e.Container, e.Script, e.Cause)
}

func (e *CompileError) Unwrap() error {
	return e.Cause
}

// Message is one diagnostic produced by a bundler.
type Message struct {
	File   string
	Line   int
	Column int
	Text   string
}

func (m Message) String() string {
	if m.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s", m.File, m.Line, m.Column, m.Text)
	}
	return m.Text
}

// BuildError carries every error message of a failed bundler run.
type BuildError struct {
	Messages []Message
}

func (e *BuildError) Error() string {
	if len(e.Messages) == 1 {
		return e.Messages[0].String()
	}
	parts := make([]string, len(e.Messages))
	for i, m := range e.Messages {
		parts[i] = m.String()
	}
	return fmt.Sprintf("%d errors: %s", len(e.Messages), strings.Join(parts, "; "))
}

// removeStale deletes a previous artifact so a run never deploys output left
// over from an earlier build.
func removeStale(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale artifact: %w", err)
	}
	return nil
}

// verifyArtifact checks that a compiler left a regular file at path.
func verifyArtifact(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrArtifactNotProduced, path)
	}
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrArtifactNotProduced, path)
	}
	return nil
}
