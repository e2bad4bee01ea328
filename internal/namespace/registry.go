// ABOUTME: Registry mapping namespace names to open namespaces
// ABOUTME: One database file per namespace; fully parallel across namespaces

package namespace

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	gosync "sync"
)

// ErrInvalidName rejects namespace names that would escape the root
// directory or collide with file system metadata.
var ErrInvalidName = errors.New("invalid namespace name")

// Registry opens and caches namespaces by name. Each namespace gets its
// own database file under the registry root, so operations in different
// namespaces never contend. The registry is an instance passed by
// handle; there are no process-wide singletons.
type Registry struct {
	root   string
	opts   Options
	logger *slog.Logger

	mu         gosync.Mutex
	namespaces map[string]*Namespace
}

// NewRegistry creates a registry rooted at dir. Namespaces are opened
// lazily on first Get.
func NewRegistry(dir string, opts Options) *Registry {
	return &Registry{
		root:       dir,
		opts:       opts,
		logger:     slog.Default().With("component", "registry"),
		namespaces: make(map[string]*Namespace),
	}
}

// validName accepts simple path-safe names.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\")
}

// Get returns the namespace for name, opening it if needed.
func (r *Registry) Get(name string) (*Namespace, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if ns, ok := r.namespaces[name]; ok {
		return ns, nil
	}

	dbPath := filepath.Join(r.root, name, "lattice.db")
	ns, err := Open(name, dbPath, r.opts)
	if err != nil {
		return nil, err
	}
	r.namespaces[name] = ns
	return ns, nil
}

// Names returns the currently open namespace names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.namespaces))
	for name := range r.namespaces {
		names = append(names, name)
	}
	return names
}

// Close shuts down every open namespace. The first error is returned
// but all namespaces are closed regardless.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, ns := range r.namespaces {
		if err := ns.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing namespace %s: %w", name, err)
		}
		delete(r.namespaces, name)
	}
	return firstErr
}
