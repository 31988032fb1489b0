package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/procsync/internal/syncer"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// project is a scripts tree plus a config file using the command compiler
// and a SQLite target. Sources containing FAIL do not compile.
type project struct {
	root   string
	config string
}

func newProject(t *testing.T) *project {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"scripts/orders/A.ts": "return 'A';\n",
		"scripts/orders/B.ts": "return 'B';\n",
		"scripts/orders/C.ts": "FAIL\n",
		"scripts/users/U.ts":  "return 'U';\n",
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	state := filepath.Join(root, "state", "procsync.db")
	cfg := map[string]any{
		"scripts_dir": filepath.Join(root, "scripts"),
		"output_dir":  filepath.Join(root, "output"),
		"log_level":   "error",
		"compiler": map[string]any{
			"kind":    "command",
			"command": `sh -c 'grep -v FAIL "$1" > "$2"' sh {source} {output}`,
		},
		"target": map[string]any{
			"kind": "sqlite",
			"path": state,
		},
		"ledger": map[string]any{
			"path": state,
		},
	}
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	configPath := filepath.Join(root, "procsync.yaml")
	require.NoError(t, os.WriteFile(configPath, data, 0o644))

	return &project{root: root, config: configPath}
}

type result struct {
	code   int
	stdout string
	stderr string
}

// run executes procsync against the project with deterministic run ids.
func (p *project) run(t *testing.T, runIDs syncer.RunIDGenerator, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	opts := &RootOptions{RunIDs: runIDs, Now: func() time.Time { return fixedNow }}
	full := append([]string{"--config", p.config, "--no-color"}, args...)
	code := execute(context.Background(), opts, full, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}
