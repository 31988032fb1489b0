package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/roach88/procsync/internal/catalog"
)

// FakeCompiler writes a fixed artifact for every script instead of running
// a bundler.
type FakeCompiler struct {
	Layout   catalog.Layout
	Recorder *Recorder

	mu sync.Mutex
	// Output maps "container/script" to artifact text. Scripts without an
	// entry get "// <container>/<script>".
	Output map[string]string
	// Fail maps "container/script" to the error Compile returns.
	Fail map[string]error
	// Skip lists "container/script" keys that report success without
	// writing an artifact.
	Skip map[string]bool
}

// NewFakeCompiler creates a FakeCompiler writing under layout.
func NewFakeCompiler(layout catalog.Layout, rec *Recorder) *FakeCompiler {
	return &FakeCompiler{
		Layout:   layout,
		Recorder: rec,
		Output:   map[string]string{},
		Fail:     map[string]error{},
		Skip:     map[string]bool{},
	}
}

// Key builds the map key for a script.
func Key(container, script string) string {
	return container + "/" + script
}

// SetOutput sets the artifact text for a script.
func (f *FakeCompiler) SetOutput(container, script, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Output[Key(container, script)] = text
}

// SetFailure makes Compile fail for a script.
func (f *FakeCompiler) SetFailure(container, script string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fail[Key(container, script)] = err
}

// Compile implements compiler.Compiler. It records OpCompile on entry and
// OpCompiled once the artifact is written or the call fails.
func (f *FakeCompiler) Compile(ctx context.Context, container, script string) error {
	if f.Recorder != nil {
		f.Recorder.Record(OpCompile, container, script)
		defer f.Recorder.Record(OpCompiled, container, script)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := Key(container, script)
	f.mu.Lock()
	err := f.Fail[key]
	skip := f.Skip[key]
	text, ok := f.Output[key]
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if skip {
		return nil
	}
	if !ok {
		text = fmt.Sprintf("// %s", key)
	}

	path := f.Layout.ArtifactPath(container, script)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(text), 0o644)
}
