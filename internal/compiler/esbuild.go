package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/roach88/procsync/internal/catalog"
)

// EsbuildOptions tunes the in-process bundler.
type EsbuildOptions struct {
	// Target is the ECMAScript level of the output, e.g. "es2015".
	// Async functions are lowered to generators below es2017.
	Target string

	// Tsconfig is an optional tsconfig.json path.
	Tsconfig string
}

// Esbuild bundles each script and its imports into one IIFE file.
//
// The output references the free variable `args`, which the deploy shim
// binds. Identifiers are never minified so that reference survives.
type Esbuild struct {
	layout catalog.Layout
	opts   EsbuildOptions
}

// NewEsbuild creates an esbuild-backed compiler for the layout.
func NewEsbuild(layout catalog.Layout, opts EsbuildOptions) (*Esbuild, error) {
	if _, err := parseTarget(opts.Target); err != nil {
		return nil, err
	}
	return &Esbuild{layout: layout, opts: opts}, nil
}

// Compile implements Compiler.
func (c *Esbuild) Compile(ctx context.Context, container, script string) error {
	if err := ctx.Err(); err != nil {
		return &CompileError{Container: container, Script: script, Cause: err}
	}

	src, err := c.layout.SourcePath(container, script)
	if err != nil {
		return &CompileError{Container: container, Script: script, Cause: err}
	}
	out := c.layout.ArtifactPath(container, script)
	if err := removeStale(out); err != nil {
		return &CompileError{Container: container, Script: script, Cause: err}
	}

	target, _ := parseTarget(c.opts.Target)
	result := api.Build(api.BuildOptions{
		EntryPoints: []string{src},
		Outfile:     out,
		Bundle:      true,
		Write:       true,
		Format:      api.FormatIIFE,
		Platform:    api.PlatformNeutral,
		MainFields:  []string{"module", "main"},
		Target:      target,
		Sourcemap:   api.SourceMapNone,
		Tsconfig:    c.opts.Tsconfig,
		LogLevel:    api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return &CompileError{Container: container, Script: script, Cause: convertMessages(result.Errors)}
	}

	if err := verifyArtifact(out); err != nil {
		return &CompileError{Container: container, Script: script, Cause: err}
	}
	return nil
}

func convertMessages(msgs []api.Message) *BuildError {
	be := &BuildError{Messages: make([]Message, 0, len(msgs))}
	for _, m := range msgs {
		msg := Message{Text: m.Text}
		if m.Location != nil {
			msg.File = m.Location.File
			msg.Line = m.Location.Line
			msg.Column = m.Location.Column
		}
		be.Messages = append(be.Messages, msg)
	}
	return be
}

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"esnext": api.ESNext,
}

// parseTarget maps a target name to esbuild's enum. Empty means es2015.
func parseTarget(name string) (api.Target, error) {
	if name == "" {
		return api.ES2015, nil
	}
	t, ok := targets[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown esbuild target %q", name)
	}
	return t, nil
}
