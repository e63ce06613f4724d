package search

import (
	"context"

	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/storage"
)

// RankQuery is the input shared by every ranking strategy.
type RankQuery struct {
	Text    string
	Vector  []float32
	Kind    string
	Filters []storage.Filter
	Limit   int
}

// Ranker orders index entries for a query.
type Ranker interface {
	Rank(ctx context.Context, q RankQuery) ([]*core.Hit, error)
	Strategy() core.Strategy
}

// VectorRanker orders embedded entries by ascending cosine distance.
type VectorRanker struct {
	entries     storage.IndexRepository
	maxDistance float64
}

var _ Ranker = (*VectorRanker)(nil)

// NewVectorRanker creates a ranker that drops matches farther than maxDistance.
func NewVectorRanker(entries storage.IndexRepository, maxDistance float64) *VectorRanker {
	return &VectorRanker{entries: entries, maxDistance: maxDistance}
}

func (r *VectorRanker) Rank(ctx context.Context, q RankQuery) ([]*core.Hit, error) {
	return r.entries.Nearest(ctx, storage.VectorQuery{
		Vector:      q.Vector,
		Kind:        q.Kind,
		Filters:     q.Filters,
		MaxDistance: r.maxDistance,
		Limit:       q.Limit,
	})
}

func (r *VectorRanker) Strategy() core.Strategy {
	return core.StrategyVector
}

// KeywordRanker orders case-insensitive substring matches newest first.
// With empty text it returns every entry matching kind and filters.
type KeywordRanker struct {
	entries storage.IndexRepository
}

var _ Ranker = (*KeywordRanker)(nil)

// NewKeywordRanker creates a keyword ranker.
func NewKeywordRanker(entries storage.IndexRepository) *KeywordRanker {
	return &KeywordRanker{entries: entries}
}

func (r *KeywordRanker) Rank(ctx context.Context, q RankQuery) ([]*core.Hit, error) {
	matches, err := r.entries.Scan(ctx, storage.ScanQuery{
		Kind:    q.Kind,
		Text:    q.Text,
		Filters: q.Filters,
		Limit:   q.Limit,
	})
	if err != nil {
		return nil, err
	}
	hits := make([]*core.Hit, len(matches))
	for i, entry := range matches {
		hits[i] = &core.Hit{Entry: entry}
	}
	return hits, nil
}

func (r *KeywordRanker) Strategy() core.Strategy {
	return core.StrategyKeyword
}
