package syncer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/procsync/internal/catalog"
	"github.com/roach88/procsync/internal/remote"
	"github.com/roach88/procsync/internal/testutil"
)

// fixture is a scripts tree with fakes wired to one recorder.
type fixture struct {
	layout   catalog.Layout
	rec      *testutil.Recorder
	compiler *testutil.FakeCompiler
	registry *remote.Registry
	dirs     map[string]*testutil.FakeDirectory
}

// newFixture creates scripts/<container>/<script>.ts for every entry of
// tree and a fake directory per container.
func newFixture(t *testing.T, tree map[string][]string) *fixture {
	t.Helper()
	root := t.TempDir()
	layout := catalog.Layout{
		ScriptsDir:  filepath.Join(root, "scripts"),
		OutputDir:   filepath.Join(root, "output"),
		SourceExts:  []string{".ts"},
		ArtifactExt: ".js",
	}
	for container, scripts := range tree {
		dir := filepath.Join(layout.ScriptsDir, container)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for _, s := range scripts {
			require.NoError(t, os.WriteFile(filepath.Join(dir, s+".ts"), []byte("export {}"), 0o644))
		}
	}

	rec := testutil.NewRecorder()
	f := &fixture{
		layout:   layout,
		rec:      rec,
		compiler: testutil.NewFakeCompiler(layout, rec),
		registry: remote.NewRegistry(),
		dirs:     map[string]*testutil.FakeDirectory{},
	}
	for container := range tree {
		d := testutil.NewFakeDirectory(container, rec)
		f.dirs[container] = d
		f.registry.Register(container, d)
	}
	return f
}

func (f *fixture) engine(opts ...Option) *Engine {
	opts = append([]Option{WithRunIDGenerator(NewFixedGenerator("run-1", "run-2", "run-3"))}, opts...)
	return New(catalog.New(f.layout), f.compiler, f.registry, opts...)
}
