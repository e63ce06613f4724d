// Package indextest provides in-memory source entities for tests.
package indextest

import (
	"context"
	"slices"
	"sync"

	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/index"
)

// Entity is a configurable index.Searchable.
type Entity struct {
	Kind          string
	ID            string
	Title         string
	Description   string
	EmbeddingText string
	Metadata      map[string]any
	// Err is returned from ToSearchDocument when set.
	Err error
}

var _ index.Searchable = (*Entity)(nil)

func (e *Entity) SourceKind() string { return e.Kind }
func (e *Entity) SourceID() string   { return e.ID }

func (e *Entity) ToSearchDocument() (*core.Document, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	return &core.Document{
		Title:         e.Title,
		Description:   e.Description,
		EmbeddingText: e.EmbeddingText,
		Metadata:      e.Metadata,
	}, nil
}

// Source is an in-memory index.Source.
// It is safe for concurrent use.
type Source struct {
	mu       sync.Mutex
	entities map[string]index.Searchable
	// ListErr is returned from List when set.
	ListErr error
	lists    int
}

var _ index.Source = (*Source)(nil)

// NewSource creates a source holding entities.
func NewSource(entities ...index.Searchable) *Source {
	s := &Source{entities: make(map[string]index.Searchable)}
	for _, e := range entities {
		s.Put(e)
	}
	return s
}

// Put adds or replaces an entity.
func (s *Source) Put(entity index.Searchable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entity.SourceID()] = entity
}

// Remove deletes an entity.
func (s *Source) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entities, id)
}

// SetListErr sets the error returned from List. Nil clears it.
func (s *Source) SetListErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListErr = err
}

// ListCalls returns how many times List was called.
func (s *Source) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

func (s *Source) Get(ctx context.Context, id string) (index.Searchable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entity, ok := s.entities[id]
	if !ok {
		return nil, index.ErrEntityNotFound
	}
	return entity, nil
}

func (s *Source) List(ctx context.Context, afterID string, limit int) ([]index.Searchable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.ListErr != nil {
		return nil, s.ListErr
	}

	ids := make([]string, 0, len(s.entities))
	for id := range s.entities {
		if afterID == "" || id > afterID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	page := make([]index.Searchable, len(ids))
	for i, id := range ids {
		page[i] = s.entities[id]
	}
	return page, nil
}
