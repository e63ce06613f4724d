// Package cache wraps an ai.Embedder with an in-memory cache of query embeddings.
//
// Only TaskQuery calls are cached. Document embeddings are produced once per
// index write and would only evict useful query entries.
package cache

import (
	"context"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/poiesic/marketsearch/ai"
)

// Embedder caches query embeddings produced by an underlying embedder.
type Embedder struct {
	next  ai.Embedder
	cache *ristretto.Cache[string, []float32]
}

var _ ai.Embedder = (*Embedder)(nil)

// New creates a caching embedder holding up to size query vectors.
func New(next ai.Embedder, size int) (*Embedder, error) {
	if size < 1 {
		size = 1
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
		NumCounters: int64(size) * 10,
		MaxCost:     int64(size),
		BufferItems: 64,
		// Cost is counted in entries, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Embedder{next: next, cache: c}, nil
}

func (e *Embedder) EmbedText(ctx context.Context, text string, task ai.TaskType) ([]float32, error) {
	if task != ai.TaskQuery {
		return e.next.EmbedText(ctx, text, task)
	}
	if v, ok := e.cache.Get(text); ok {
		return append([]float32(nil), v...), nil
	}
	v, err := e.next.EmbedText(ctx, text, task)
	if err != nil {
		return nil, err
	}
	if len(v) > 0 {
		e.cache.Set(text, append([]float32(nil), v...), 1)
	}
	return v, nil
}

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string, task ai.TaskType) ([][]float32, error) {
	if task != ai.TaskQuery {
		return e.next.EmbedTexts(ctx, texts, task)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.EmbedText(ctx, text, task)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Wait blocks until pending cache writes are applied.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close stops the cache's background goroutines.
func (e *Embedder) Close() {
	e.cache.Close()
}
