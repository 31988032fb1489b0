package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/procsync/internal/procedure"
)

// Container is one discovered container with its script identifiers.
type Container struct {
	Name    string   `json:"name" yaml:"name"`
	Scripts []string `json:"scripts" yaml:"scripts"`
}

// Catalog enumerates containers and scripts from a Layout's scripts root.
// All methods are read-only filesystem listings.
type Catalog struct {
	layout Layout
}

// New creates a Catalog over the given layout.
func New(layout Layout) *Catalog {
	return &Catalog{layout: layout}
}

// Layout returns the layout the catalog reads from.
func (c *Catalog) Layout() Layout {
	return c.layout
}

// ListContainers returns one container name per subdirectory of the scripts
// root, sorted. Names are NFC; hidden entries are ignored.
func (c *Catalog) ListContainers() ([]string, error) {
	root := c.layout.ScriptsDir
	entries, err := readDir(root)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]string)
	var names []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		isDir, err := entryIsDir(root, entry)
		if err != nil {
			return nil, &DiscoveryError{
				Code:    ErrCodeScanError,
				Path:    filepath.Join(root, entry.Name()),
				Message: fmt.Sprintf("error reading %s", filepath.Join(root, entry.Name())),
				Err:     err,
			}
		}
		if !isDir {
			continue
		}
		name := procedure.NormalizeID(entry.Name())
		if prev, dup := seen[name]; dup {
			return nil, &DiscoveryError{
				Code:    ErrCodeDuplicateID,
				Path:    root,
				Message: fmt.Sprintf("container %q is defined by both %s and %s", name, prev, entry.Name()),
			}
		}
		seen[name] = entry.Name()
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ListScripts returns the identifiers of the scripts in a container, sorted.
// Only regular files with a recognized source extension are scripts.
func (c *Catalog) ListScripts(container string) ([]string, error) {
	dir := c.layout.ContainerDir(container)
	entries, err := readDir(dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]string)
	var ids []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		stem, ok := c.layout.isSource(entry.Name())
		if !ok {
			continue
		}
		info, err := os.Stat(filepath.Join(dir, entry.Name()))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, &DiscoveryError{
				Code:    ErrCodeScanError,
				Path:    filepath.Join(dir, entry.Name()),
				Message: fmt.Sprintf("error reading %s", filepath.Join(dir, entry.Name())),
				Err:     err,
			}
		}
		if !info.Mode().IsRegular() {
			continue
		}

		id := procedure.NormalizeID(stem)
		if prev, dup := seen[id]; dup {
			return nil, &DiscoveryError{
				Code:    ErrCodeDuplicateID,
				Path:    dir,
				Message: fmt.Sprintf("script %q in container %q is defined by both %s and %s", id, container, prev, entry.Name()),
			}
		}
		seen[id] = entry.Name()
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Discover lists every container and its scripts.
func (c *Catalog) Discover() ([]Container, error) {
	names, err := c.ListContainers()
	if err != nil {
		return nil, err
	}

	containers := make([]Container, 0, len(names))
	for _, name := range names {
		scripts, err := c.ListScripts(name)
		if err != nil {
			return nil, err
		}
		containers = append(containers, Container{Name: name, Scripts: scripts})
	}
	return containers, nil
}

func readDir(dir string) ([]os.DirEntry, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &DiscoveryError{Code: ErrCodeNotFound, Path: dir, Message: fmt.Sprintf("directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &DiscoveryError{Code: ErrCodeScanError, Path: dir, Message: fmt.Sprintf("error accessing %s", dir), Err: err}
	}
	if !info.IsDir() {
		return nil, &DiscoveryError{Code: ErrCodeNotFound, Path: dir, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &DiscoveryError{Code: ErrCodeScanError, Path: dir, Message: fmt.Sprintf("error scanning %s", dir), Err: err}
	}
	return entries, nil
}

// entryIsDir follows symlinks so a linked container directory still counts.
func entryIsDir(parent string, entry os.DirEntry) (bool, error) {
	if entry.Type()&os.ModeSymlink == 0 {
		return entry.IsDir(), nil
	}
	info, err := os.Stat(filepath.Join(parent, entry.Name()))
	if os.IsNotExist(err) {
		return false, nil // dangling link
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
