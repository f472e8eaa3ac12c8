// Package registry maps connection driver names to catalog openers.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/txn2/table-loader/pkg/catalog"
)

// Opener opens a catalog for a connection.
type Opener func(ctx context.Context, conn catalog.Connection) (catalog.Catalog, error)

// Registry holds openers by driver name.
type Registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{openers: make(map[string]Opener)}
}

// RegisterDriver registers opener for driver, replacing any previous one.
func (r *Registry) RegisterDriver(driver string, opener Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[driver] = opener
}

// Has reports whether driver is registered.
func (r *Registry) Has(driver string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.openers[driver]
	return ok
}

// Open opens a catalog with the opener registered for conn.Driver.
func (r *Registry) Open(ctx context.Context, conn catalog.Connection) (catalog.Catalog, error) {
	r.mu.RLock()
	opener, ok := r.openers[conn.Driver]
	r.mu.RUnlock()

	if !ok {
		return nil, &catalog.ConfigurationError{Reason: fmt.Sprintf("unknown driver: %q", conn.Driver)}
	}

	cat, err := opener(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("opening %s catalog: %w", conn.Driver, err)
	}
	return cat, nil
}

// Drivers returns the registered driver names, sorted.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.openers))
	for name := range r.openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
