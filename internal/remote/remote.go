// Package remote defines the Remote Procedure Directory contract the sync
// engine deploys against, and the registry that maps container names to
// directory handles.
//
// The remote store offers no upsert. Callers list existing procedures once,
// then choose Create or Replace per procedure. Both calls may run
// concurrently within a container; implementations handle their own
// concurrency.
package remote

import (
	"context"
	"errors"
	"sort"

	"github.com/roach88/procsync/internal/procedure"
)

// Sentinel causes reported by Directory implementations.
var (
	// ErrConflict means Create found a procedure with the same identifier.
	ErrConflict = errors.New("procedure already exists")

	// ErrNotFound means Replace found no procedure with the identifier.
	ErrNotFound = errors.New("procedure not found")

	// ErrNoDirectory means no directory is registered for a container.
	ErrNoDirectory = errors.New("no procedure directory registered for container")
)

// Directory is the per-container view of the remote procedure store.
type Directory interface {
	// ListExisting returns the identifiers currently deployed.
	ListExisting(ctx context.Context) ([]string, error)

	// Create deploys a new procedure. Fails wrapping ErrConflict if the
	// identifier already exists.
	Create(ctx context.Context, rec procedure.Record) error

	// Replace overwrites an existing procedure. Fails wrapping ErrNotFound
	// if the identifier does not exist.
	Replace(ctx context.Context, rec procedure.Record) error
}

// Registry maps container names to directory handles. It is built before a
// run and only read during it.
type Registry struct {
	dirs map[string]Directory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{dirs: make(map[string]Directory)}
}

// Register binds a container name to a directory, replacing any earlier
// binding.
func (r *Registry) Register(container string, dir Directory) {
	r.dirs[container] = dir
}

// Lookup returns the directory registered for container.
func (r *Registry) Lookup(container string) (Directory, bool) {
	dir, ok := r.dirs[container]
	return dir, ok
}

// Containers returns the registered container names in sorted order.
func (r *Registry) Containers() []string {
	names := make([]string, 0, len(r.dirs))
	for name := range r.dirs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsConflict reports whether err was caused by a create conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound reports whether err was caused by replacing a missing procedure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
