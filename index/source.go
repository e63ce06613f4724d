package index

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/poiesic/marketsearch/core"
)

// Searchable is a source entity that can be projected into the index.
type Searchable interface {
	// SourceKind returns the entity's stable type tag.
	SourceKind() string
	// SourceID returns the entity's primary key within its kind.
	SourceID() string
	// ToSearchDocument projects the entity's searchable fields.
	ToSearchDocument() (*core.Document, error)
}

// Source enumerates the live entities of one kind.
type Source interface {
	// Get returns the entity with the given id.
	// Returns ErrEntityNotFound if it does not exist.
	Get(ctx context.Context, id string) (Searchable, error)

	// List returns up to limit entities whose id sorts after afterID,
	// in ascending id order. An empty afterID starts from the beginning.
	List(ctx context.Context, afterID string, limit int) ([]Searchable, error)
}

// Registry maps kind tags to their Sources.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register binds a Source to a kind, replacing any previous binding.
func (r *Registry) Register(kind string, source Source) error {
	kind = core.NormalizeKind(kind)
	if kind == "" {
		return core.ErrEmptySourceKind
	}
	if source == nil {
		return ErrSourceRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[kind] = source
	return nil
}

// Lookup returns the Source registered for kind.
func (r *Registry) Lookup(kind string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	source, ok := r.sources[core.NormalizeKind(kind)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return source, nil
}

// Resolve loads one entity by kind and id.
func (r *Registry) Resolve(ctx context.Context, kind, id string) (Searchable, error) {
	source, err := r.Lookup(kind)
	if err != nil {
		return nil, err
	}
	return source.Get(ctx, id)
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.sources))
	for kind := range r.sources {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}
