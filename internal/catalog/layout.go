package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/procsync/internal/procedure"
)

// Layout describes where script sources live and where compiled artifacts
// are written:
//
//	<ScriptsDir>/<container>/<script><source-ext>
//	<OutputDir>/<container>/<script><ArtifactExt>
type Layout struct {
	ScriptsDir  string
	OutputDir   string
	SourceExts  []string
	ArtifactExt string
}

// DefaultLayout returns the conventional scripts/ -> output/ layout for
// TypeScript sources compiled to JavaScript.
func DefaultLayout() Layout {
	return Layout{
		ScriptsDir:  "scripts",
		OutputDir:   "output",
		SourceExts:  []string{".ts"},
		ArtifactExt: ".js",
	}
}

// ContainerDir returns the source directory of a container. Container names
// are NFC; the directory on disk may be stored in another normalization form.
func (l Layout) ContainerDir(container string) string {
	direct := filepath.Join(l.ScriptsDir, container)
	if _, err := os.Stat(direct); err == nil {
		return direct
	}
	if name, ok := findEntry(l.ScriptsDir, container, func(name string) (string, bool) {
		return name, true
	}); ok {
		return filepath.Join(l.ScriptsDir, name)
	}
	return direct
}

// ArtifactDir returns the output directory of a container.
func (l Layout) ArtifactDir(container string) string {
	return filepath.Join(l.OutputDir, container)
}

// ArtifactPath returns the deterministic compiled-artifact path of a script.
func (l Layout) ArtifactPath(container, script string) string {
	return filepath.Join(l.OutputDir, container, script+l.ArtifactExt)
}

// SourcePath resolves the source file of a script by probing the recognized
// extensions in order, then by matching file stems under NFC.
func (l Layout) SourcePath(container, script string) (string, error) {
	dir := l.ContainerDir(container)
	for _, ext := range l.SourceExts {
		path := filepath.Join(dir, script+ext)
		if isRegular(path) {
			return path, nil
		}
	}
	if name, ok := findEntry(dir, script, l.isSource); ok {
		if path := filepath.Join(dir, name); isRegular(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no source file for %s/%s with extensions %v", container, script, l.SourceExts)
}

// isSource reports whether name carries a recognized source extension and
// returns the identifier stem.
func (l Layout) isSource(name string) (string, bool) {
	ext := filepath.Ext(name)
	if ext == "" || ext == name {
		return "", false
	}
	for _, candidate := range l.SourceExts {
		if ext == candidate {
			return name[:len(name)-len(ext)], true
		}
	}
	return "", false
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// findEntry returns the entry of dir whose stem, as extracted by stem, has
// the same NFC form as want.
func findEntry(dir, want string, stem func(name string) (string, bool)) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	want = procedure.NormalizeID(want)
	for _, entry := range entries {
		s, ok := stem(entry.Name())
		if ok && procedure.NormalizeID(s) == want {
			return entry.Name(), true
		}
	}
	return "", false
}
