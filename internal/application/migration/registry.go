package migrationapp

import (
	"fmt"
	"sort"

	"github.com/crmigrate/backend/internal/domain/migration"
)

// AdapterRegistry selects the SourceAdapter for a provider
type AdapterRegistry struct {
	adapters map[migration.Source]migration.SourceAdapter
}

// NewAdapterRegistry registers adapters by their Source. A later adapter for
// the same source replaces an earlier one.
func NewAdapterRegistry(adapters ...migration.SourceAdapter) *AdapterRegistry {
	r := &AdapterRegistry{adapters: make(map[migration.Source]migration.SourceAdapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Source()] = a
	}
	return r
}

// Get returns the adapter for source
func (r *AdapterRegistry) Get(source migration.Source) (migration.SourceAdapter, error) {
	a, ok := r.adapters[source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", migration.ErrUnknownSource, source)
	}
	return a, nil
}

// Sources lists the registered sources in name order
func (r *AdapterRegistry) Sources() []migration.Source {
	out := make([]migration.Source, 0, len(r.adapters))
	for s := range r.adapters {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
