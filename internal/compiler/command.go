package compiler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/roach88/procsync/internal/catalog"
)

// Placeholders substituted into each argument of a command template.
const (
	PlaceholderContainer = "{container}"
	PlaceholderScript    = "{script}"
	PlaceholderSource    = "{source}"
	PlaceholderOutput    = "{output}"
	PlaceholderOutDir    = "{outdir}"
)

// Command compiles scripts by running an external bundler, for example:
//
//	npx webpack --entry ./{source} --output-path {outdir} --output-filename {script}.js
type Command struct {
	layout catalog.Layout
	argv   []string
	env    []string
	dir    string
}

// CommandOption configures a Command.
type CommandOption func(*Command)

// WithCommandEnv appends KEY=VALUE pairs to the bundler's environment.
func WithCommandEnv(env ...string) CommandOption {
	return func(c *Command) {
		c.env = append(c.env, env...)
	}
}

// WithCommandDir sets the working directory of the bundler.
func WithCommandDir(dir string) CommandOption {
	return func(c *Command) {
		c.dir = dir
	}
}

// NewCommand parses a shell-style command template.
func NewCommand(layout catalog.Layout, template string, opts ...CommandOption) (*Command, error) {
	argv, err := shellwords.Parse(template)
	if err != nil {
		return nil, fmt.Errorf("parsing compiler command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("compiler command is empty")
	}
	c := &Command{layout: layout, argv: argv}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Args returns the expanded argument vector for one script.
func (c *Command) Args(container, script, source string) []string {
	r := strings.NewReplacer(
		PlaceholderContainer, container,
		PlaceholderScript, script,
		PlaceholderSource, source,
		PlaceholderOutput, c.layout.ArtifactPath(container, script),
		PlaceholderOutDir, c.layout.ArtifactDir(container),
	)
	out := make([]string, len(c.argv))
	for i, arg := range c.argv {
		out[i] = r.Replace(arg)
	}
	return out
}

// Compile implements Compiler.
func (c *Command) Compile(ctx context.Context, container, script string) error {
	src, err := c.layout.SourcePath(container, script)
	if err != nil {
		return &CompileError{Container: container, Script: script, Cause: err}
	}
	out := c.layout.ArtifactPath(container, script)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return &CompileError{Container: container, Script: script, Cause: err}
	}
	if err := removeStale(out); err != nil {
		return &CompileError{Container: container, Script: script, Cause: err}
	}

	args := c.Args(container, script, src)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = c.dir
	if len(c.env) > 0 {
		cmd.Env = append(os.Environ(), c.env...)
	}
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return &CompileError{Container: container, Script: script, Cause: &CommandError{
			Args:   args,
			Output: strings.TrimSpace(output.String()),
			Err:    err,
		}}
	}

	if err := verifyArtifact(out); err != nil {
		return &CompileError{Container: container, Script: script, Cause: err}
	}
	return nil
}

// CommandError reports a bundler process that exited unsuccessfully.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s: %v: %s", e.Args[0], e.Err, e.Output)
	}
	return fmt.Sprintf("%s: %v", e.Args[0], e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
