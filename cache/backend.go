package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Backend is the storage contract QueryResultCache consumes. Values are opaque
// byte slices; TTL handling, eviction and tag bookkeeping belong to the backend.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
	// Backends that support tag-scoped retrieval use tags to scope the lookup,
	// others ignore them.
	Get(ctx context.Context, key string, tags []string) ([]byte, bool, error)

	// Put stores value for ttl. A non-positive ttl is forwarded uninterpreted.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error

	// PutForever stores value without expiry.
	PutForever(ctx context.Context, key string, value []byte, tags []string) error

	// DeleteByTags removes every entry written with any of the given tags.
	// It returns false, nil when the backend does not support tags.
	DeleteByTags(ctx context.Context, tags []string) (bool, error)
}

// BackendResolver resolves a backend by name. An empty name selects the default.
type BackendResolver interface {
	Backend(name string) (Backend, error)
}

// Registry holds named backends. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	defaultName string
	backends    map[string]Backend
}

var _ BackendResolver = (*Registry)(nil)

// NewRegistry creates a registry whose default backend is defaultName.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		defaultName: defaultName,
		backends:    make(map[string]Backend),
	}
}

// Register adds or replaces a named backend.
func (r *Registry) Register(name string, backend Backend) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = backend
	return r
}

// Backend implements BackendResolver.
func (r *Registry) Backend(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaultName
	}
	backend, ok := r.backends[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownBackend, "backend %q", name)
	}
	return backend, nil
}

// DefaultName returns the name used when no backend is selected.
func (r *Registry) DefaultName() string {
	return r.defaultName
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
