package index

import "context"

// Hooks receives change notifications from the CRUD layer.
// OnCreate and OnUpdate index the entity; OnDelete removes its entry.
type Hooks interface {
	OnCreate(ctx context.Context, entity Searchable) error
	OnUpdate(ctx context.Context, entity Searchable) error
	OnDelete(ctx context.Context, entity Searchable) error
}

// SyncHooks applies every change within the calling request.
type SyncHooks struct {
	indexer *Indexer
}

var _ Hooks = (*SyncHooks)(nil)

// NewSyncHooks creates hooks that call indexer directly.
func NewSyncHooks(indexer *Indexer) *SyncHooks {
	return &SyncHooks{indexer: indexer}
}

func (h *SyncHooks) OnCreate(ctx context.Context, entity Searchable) error {
	_, err := h.indexer.Index(ctx, entity)
	return err
}

func (h *SyncHooks) OnUpdate(ctx context.Context, entity Searchable) error {
	_, err := h.indexer.Index(ctx, entity)
	return err
}

func (h *SyncHooks) OnDelete(ctx context.Context, entity Searchable) error {
	return h.indexer.Deindex(ctx, entity)
}
