package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/marketsearch/ai"
	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/storage"
)

// DefaultRebuildPageSize is the number of entities Rebuild loads per page.
const DefaultRebuildPageSize = 100

// Indexer projects source entities into index entries.
// Embedding is best effort: an entity whose text cannot be embedded is still
// indexed without a vector and stays reachable through keyword search.
type Indexer struct {
	entries  storage.IndexRepository
	embedder ai.Embedder
	dim      int
	timeout  time.Duration
	registry *Registry
	locks    *KindLocks
	pageSize int
	logger   *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) error {
		if logger == nil {
			logger = slog.Default()
		}
		ix.logger = logger
		return nil
	}
}

// WithRegistry sets the registry used by Rebuild and the admin index path.
func WithRegistry(registry *Registry) Option {
	return func(ix *Indexer) error {
		if registry != nil {
			ix.registry = registry
		}
		return nil
	}
}

// WithKindLocks shares rebuild locks with other components.
func WithKindLocks(locks *KindLocks) Option {
	return func(ix *Indexer) error {
		if locks != nil {
			ix.locks = locks
		}
		return nil
	}
}

// WithEmbedTimeout bounds every embedding call.
// Zero or negative disables the bound.
func WithEmbedTimeout(timeout time.Duration) Option {
	return func(ix *Indexer) error {
		ix.timeout = timeout
		return nil
	}
}

// WithRebuildPageSize sets how many entities Rebuild loads per page.
func WithRebuildPageSize(size int) Option {
	return func(ix *Indexer) error {
		if size < 1 {
			return fmt.Errorf("rebuild page size must be greater than 0")
		}
		ix.pageSize = size
		return nil
	}
}

// NewIndexer creates an indexer writing to entries.
// The embedding dimension is taken from the provider.
func NewIndexer(entries storage.IndexRepository, provider ai.Provider, opts ...Option) (*Indexer, error) {
	if entries == nil {
		return nil, ErrRepositoryRequired
	}
	if provider == nil {
		return nil, ErrProviderRequired
	}

	ix := &Indexer{
		entries:  entries,
		embedder: provider.Embedder(),
		dim:      provider.Dimension(),
		timeout:  ai.DefaultEmbedTimeout,
		registry: NewRegistry(),
		locks:    &KindLocks{},
		pageSize: DefaultRebuildPageSize,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(ix); err != nil {
			return nil, err
		}
	}
	ix.logger = ix.logger.With("component", "indexer")
	return ix, nil
}

// Registry returns the registry of source kinds.
func (ix *Indexer) Registry() *Registry {
	return ix.registry
}

// Locks returns the per-kind rebuild locks.
func (ix *Indexer) Locks() *KindLocks {
	return ix.locks
}

// Entries returns the underlying index repository.
func (ix *Indexer) Entries() storage.IndexRepository {
	return ix.entries
}

// Index projects entity, embeds its text and upserts its entry.
// Returns core.ErrInvalidEntity when the entity cannot be projected.
// Embedding failures are logged and the entry is stored without a vector.
func (ix *Indexer) Index(ctx context.Context, entity Searchable) (*core.IndexEntry, error) {
	entry, text, err := project(entity)
	if err != nil {
		ix.logger.Error("cannot index entity", "error", err)
		return nil, err
	}

	embedding, err := ai.EmbedBounded(ctx, ix.embedder, text, ai.TaskDocument, ix.timeout, ix.dim)
	switch {
	case err == nil:
		entry.Embedding = embedding
	case errors.Is(err, core.ErrEmbeddingUnavailable):
		ix.logger.Warn("embedding unavailable, indexing without vector",
			"kind", entry.SourceKind, "id", entry.SourceID, "error", err)
	default:
		return nil, err
	}

	stored, err := ix.entries.Upsert(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", entry.SourceKey(), err)
	}
	ix.logger.Debug("indexed entity", "kind", stored.SourceKind, "id", stored.SourceID, "entry", stored.Id, "embedded", stored.HasEmbedding())
	return stored, nil
}

// IndexKey loads an entity from the registry and indexes it.
// Returns ErrUnknownKind or ErrEntityNotFound when it cannot be loaded.
func (ix *Indexer) IndexKey(ctx context.Context, kind, id string) (*core.IndexEntry, error) {
	entity, err := ix.registry.Resolve(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return ix.Index(ctx, entity)
}

// Deindex removes the entry of entity. Removing an absent entry is not an error.
func (ix *Indexer) Deindex(ctx context.Context, entity Searchable) error {
	if entity == nil {
		return fmt.Errorf("%w: entity is nil", core.ErrInvalidEntity)
	}
	return ix.DeindexKey(ctx, entity.SourceKind(), entity.SourceID())
}

// DeindexKey removes the entry for (kind, id). Removing an absent entry is not an error.
func (ix *Indexer) DeindexKey(ctx context.Context, kind, id string) error {
	if err := core.ValidateSourceKey(kind, id); err != nil {
		return err
	}
	deleted, err := ix.entries.DeleteBySource(ctx, kind, id)
	if err != nil {
		return fmt.Errorf("deindex %s:%s: %w", core.NormalizeKind(kind), id, err)
	}
	if deleted {
		ix.logger.Debug("deindexed entity", "kind", core.NormalizeKind(kind), "id", id)
	}
	return nil
}

// Rebuild purges every entry of kind and re-indexes every live entity from
// the kind's Source. Entities that cannot be projected are logged and skipped;
// entities indexed without a vector still count. Returns the number indexed.
// Rebuilds of the same kind are serialized.
func (ix *Indexer) Rebuild(ctx context.Context, kind string) (int, error) {
	kind = core.NormalizeKind(kind)
	source, err := ix.registry.Lookup(kind)
	if err != nil {
		return 0, err
	}

	unlock := ix.locks.Lock(kind)
	defer unlock()

	purged, err := ix.entries.DeleteKind(ctx, kind)
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", kind, err)
	}
	ix.logger.Info("rebuild started", "kind", kind, "purged", purged)

	indexed, skipped := 0, 0
	cursor := ""
	for {
		page, err := source.List(ctx, cursor, ix.pageSize)
		if err != nil {
			return indexed, fmt.Errorf("list %s after %q: %w", kind, cursor, err)
		}
		if len(page) == 0 {
			break
		}
		for _, entity := range page {
			if _, err := ix.Index(ctx, entity); err != nil {
				if errors.Is(err, core.ErrInvalidEntity) {
					skipped++
					continue
				}
				return indexed, err
			}
			indexed++
		}
		if entity := page[len(page)-1]; entity != nil {
			cursor = entity.SourceID()
		}
		if len(page) < ix.pageSize {
			break
		}
	}

	ix.logger.Info("rebuild completed", "kind", kind, "indexed", indexed, "skipped", skipped)
	return indexed, nil
}

// project builds the entry for entity without an embedding and returns the
// text to embed.
func project(entity Searchable) (*core.IndexEntry, string, error) {
	if entity == nil {
		return nil, "", fmt.Errorf("%w: entity is nil", core.ErrInvalidEntity)
	}
	kind, id := entity.SourceKind(), entity.SourceID()
	if err := core.ValidateSourceKey(kind, id); err != nil {
		return nil, "", err
	}

	doc, err := entity.ToSearchDocument()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s:%s: %w", core.ErrInvalidEntity, kind, id, err)
	}
	if doc == nil {
		return nil, "", fmt.Errorf("%w: %s:%s produced no document", core.ErrInvalidEntity, kind, id)
	}

	metadata := make(map[string]any, len(doc.Metadata))
	for k, v := range doc.Metadata {
		metadata[k] = v
	}
	entry := &core.IndexEntry{
		SourceKind:  kind,
		SourceID:    id,
		Title:       doc.Title,
		Description: doc.Description,
		Metadata:    metadata,
	}
	return entry, doc.TextForEmbedding(), nil
}
