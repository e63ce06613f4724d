// Package storagetest holds a conformance suite run against every
// storage.IndexRepository implementation.
package storagetest

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock starting at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Factory opens an empty repository whose timestamps come from now.
// The factory registers cleanup with t.
type Factory func(t *testing.T, now func() time.Time) storage.IndexRepository

// RunIndexRepositoryTests runs the conformance suite.
func RunIndexRepositoryTests(t *testing.T, open Factory) {
	t.Run("upsert assigns id and timestamps", func(t *testing.T) {
		clock := NewClock()
		repo := open(t, clock.Now)
		ctx := context.Background()

		stored, err := repo.Upsert(ctx, entry("product", "1", "Tomatoes", nil))
		require.NoError(t, err)
		assert.NotZero(t, stored.Id)
		assert.True(t, stored.CreatedAt.Equal(clock.Now()))
		assert.True(t, stored.UpdatedAt.Equal(clock.Now()))
	})

	t.Run("upsert is idempotent per source key", func(t *testing.T) {
		clock := NewClock()
		repo := open(t, clock.Now)
		ctx := context.Background()

		first, err := repo.Upsert(ctx, entry("product", "1", "Tomatoes", []float32{1, 0}))
		require.NoError(t, err)

		clock.Advance(time.Minute)
		changed := entry("Product", "1", "Cherry Tomatoes", nil)
		changed.Metadata = map[string]any{"price": 12.5}
		second, err := repo.Upsert(ctx, changed)
		require.NoError(t, err)

		assert.Equal(t, first.Id, second.Id)
		count, err := repo.Count(ctx, "product")
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		got, err := repo.GetBySource(ctx, "product", "1")
		require.NoError(t, err)
		assert.Equal(t, "Cherry Tomatoes", got.Title)
		assert.Nil(t, got.Embedding, "a reindex without embedding clears the old vector")
		assert.Equal(t, map[string]any{"price": 12.5}, got.Metadata)
		assert.True(t, got.CreatedAt.Equal(first.CreatedAt))
		assert.True(t, got.UpdatedAt.After(first.UpdatedAt))
	})

	t.Run("upsert truncates title", func(t *testing.T) {
		repo := open(t, NewClock().Now)
		stored, err := repo.Upsert(context.Background(), entry("product", "1", strings.Repeat("x", 300), nil))
		require.NoError(t, err)
		assert.Len(t, stored.Title, core.MaxTitleLength)

		got, err := repo.GetEntry(context.Background(), stored.Id)
		require.NoError(t, err)
		assert.Len(t, got.Title, core.MaxTitleLength)
	})

	t.Run("upsert rejects invalid entries", func(t *testing.T) {
		repo := open(t, NewClock().Now)
		_, err := repo.Upsert(context.Background(), entry("", "1", "x", nil))
		assert.ErrorIs(t, err, core.ErrInvalidEntity)
	})

	t.Run("get missing returns not found", func(t *testing.T) {
		repo := open(t, NewClock().Now)
		ctx := context.Background()

		_, err := repo.GetEntry(ctx, 999)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.GetBySource(ctx, "product", "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("delete by source is idempotent", func(t *testing.T) {
		repo := open(t, NewClock().Now)
		ctx := context.Background()

		_, err := repo.Upsert(ctx, entry("product", "1", "Tomatoes", nil))
		require.NoError(t, err)

		deleted, err := repo.DeleteBySource(ctx, "product", "1")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.DeleteBySource(ctx, "product", "1")
		require.NoError(t, err)
		assert.False(t, deleted)

		_, err = repo.GetBySource(ctx, "product", "1")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		again, err := repo.Upsert(ctx, entry("product", "1", "Tomatoes", nil))
		require.NoError(t, err)
		assert.NotZero(t, again.Id)
	})

	t.Run("delete entry by id", func(t *testing.T) {
		repo := open(t, NewClock().Now)
		ctx := context.Background()

		stored, err := repo.Upsert(ctx, entry("service", "3", "Delivery", nil))
		require.NoError(t, err)

		require.NoError(t, repo.DeleteEntry(ctx, stored.Id))
		assert.ErrorIs(t, repo.DeleteEntry(ctx, stored.Id), storage.ErrNotFound)

		_, err = repo.GetBySource(ctx, "service", "3")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("delete kind leaves other kinds", func(t *testing.T) {
		repo := open(t, NewClock().Now)
		ctx := context.Background()

		for _, id := range []string{"1", "2", "3"} {
			_, err := repo.Upsert(ctx, entry("product", id, "P"+id, nil))
			require.NoError(t, err)
		}
		_, err := repo.Upsert(ctx, entry("service", "1", "S1", nil))
		require.NoError(t, err)

		removed, err := repo.DeleteKind(ctx, "product")
		require.NoError(t, err)
		assert.Equal(t, 3, removed)

		products, err := repo.Count(ctx, "product")
		require.NoError(t, err)
		assert.Zero(t, products)
		services, err := repo.Count(ctx, "service")
		require.NoError(t, err)
		assert.Equal(t, 1, services)
		all, err := repo.Count(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 1, all)
	})

	t.Run("delete kind before cutoff keeps fresh entries", func(t *testing.T) {
		clock := NewClock()
		repo := open(t, clock.Now)
		ctx := context.Background()

		_, err := repo.Upsert(ctx, entry("product", "old", "Old", nil))
		require.NoError(t, err)
		_, err = repo.Upsert(ctx, entry("product", "kept", "Kept", nil))
		require.NoError(t, err)

		clock.Advance(time.Hour)
		cutoff := clock.Now()
		_, err = repo.Upsert(ctx, entry("product", "kept", "Kept", nil))
		require.NoError(t, err)
		_, err = repo.Upsert(ctx, entry("service", "other", "Other", nil))
		require.NoError(t, err)

		removed, err := repo.DeleteKindBefore(ctx, "product", cutoff)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		_, err = repo.GetBySource(ctx, "product", "old")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.GetBySource(ctx, "product", "kept")
		assert.NoError(t, err)
		_, err = repo.GetBySource(ctx, "service", "other")
		assert.NoError(t, err)
	})

	t.Run("scan orders newest first with id tie break", func(t *testing.T) {
		clock := NewClock()
		repo := open(t, clock.Now)
		ctx := context.Background()

		a, err := repo.Upsert(ctx, entry("product", "a", "Apples", nil))
		require.NoError(t, err)
		b, err := repo.Upsert(ctx, entry("product", "b", "Bananas", nil))
		require.NoError(t, err)
		clock.Advance(time.Minute)
		c, err := repo.Upsert(ctx, entry("product", "c", "Cherries", nil))
		require.NoError(t, err)

		got, err := repo.Scan(ctx, storage.ScanQuery{})
		require.NoError(t, err)
		assert.Equal(t, []core.ID{c.Id, a.Id, b.Id}, ids(got))
	})

	t.Run("scan applies kind text filters and limit", func(t *testing.T) {
		clock := NewClock()
		repo := open(t, clock.Now)
		ctx := context.Background()

		cheap := entry("product", "1", "Fresh Tomatoes", nil)
		cheap.Metadata = map[string]any{"price": 50.0, "unit": "kg"}
		dear := entry("product", "2", "Heirloom tomatoes", nil)
		dear.Description = "Rare variety"
		dear.Metadata = map[string]any{"price": 150.0, "unit": "kg"}
		other := entry("service", "3", "Tomato delivery", nil)
		other.Metadata = map[string]any{"price": 20.0}
		for _, e := range []*core.IndexEntry{cheap, dear, other} {
			_, err := repo.Upsert(ctx, e)
			require.NoError(t, err)
			clock.Advance(time.Second)
		}

		got, err := repo.Scan(ctx, storage.ScanQuery{Text: "TOMATO"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Tomato delivery", "Heirloom tomatoes", "Fresh Tomatoes"}, titles(got))

		got, err = repo.Scan(ctx, storage.ScanQuery{Text: "variety"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Heirloom tomatoes"}, titles(got))

		got, err = repo.Scan(ctx, storage.ScanQuery{Kind: "product", Text: "tomato"})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = repo.Scan(ctx, storage.ScanQuery{
			Text:    "tomato",
			Filters: []storage.Filter{{Field: "price", Op: storage.OpLt, Value: 100}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Tomato delivery", "Fresh Tomatoes"}, titles(got))

		got, err = repo.Scan(ctx, storage.ScanQuery{Text: "tomato", Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"Tomato delivery"}, titles(got))
	})

	t.Run("scan folds case beyond ascii", func(t *testing.T) {
		repo := open(t, NewClock().Now)
		ctx := context.Background()

		_, err := repo.Upsert(ctx, entry("product", "1", "Äpfel aus Österreich", nil))
		require.NoError(t, err)
		_, err = repo.Upsert(ctx, entry("product", "2", "Birnen", nil))
		require.NoError(t, err)

		for _, text := range []string{"Äpfel", "äpfel", "ÄPFEL", "österreich"} {
			got, err := repo.Scan(ctx, storage.ScanQuery{Text: text, Limit: 1})
			require.NoError(t, err)
			assert.Equal(t, []string{"Äpfel aus Österreich"}, titles(got), "query %q", text)
		}
	})

	t.Run("kinds sharing a prefix stay separate", func(t *testing.T) {
		repo := open(t, NewClock().Now)
		ctx := context.Background()

		_, err := repo.Upsert(ctx, entry("a", "1", "Short kind", nil))
		require.NoError(t, err)
		_, err = repo.Upsert(ctx, entry("a:b", "1", "Nested kind", nil))
		require.NoError(t, err)

		count, err := repo.Count(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		sample, err := repo.Sample(ctx, "a", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"Short kind"}, titles(sample))

		got, err := repo.Scan(ctx, storage.ScanQuery{Kind: "a"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Short kind"}, titles(got))

		removed, err := repo.DeleteKind(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		count, err = repo.Count(ctx, "a:b")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("nearest ranks by cosine distance", func(t *testing.T) {
		clock := NewClock()
		repo := open(t, clock.Now)
		ctx := context.Background()

		if !repo.SupportsVectors() {
			_, err := repo.Nearest(ctx, storage.VectorQuery{Vector: []float32{1, 0}})
			assert.ErrorIs(t, err, storage.ErrBackendUnsupported)
			return
		}

		listing := entry("product", "1", "Test Listing", []float32{0.1, 0.2, 0.3, 0.4})
		listing.Metadata = map[string]any{"price": 50.0}
		another := entry("product", "2", "Another Item", []float32{0.5, 0.6, 0.7, 0.8})
		another.Metadata = map[string]any{"price": 150.0}
		plain := entry("product", "3", "No Vector", nil)
		service := entry("service", "4", "Service", []float32{0.1, 0.2, 0.3, 0.4})
		for _, e := range []*core.IndexEntry{listing, another, plain, service} {
			_, err := repo.Upsert(ctx, e)
			require.NoError(t, err)
		}

		q := []float32{0.1, 0.2, 0.3, 0.3}
		hits, err := repo.Nearest(ctx, storage.VectorQuery{Vector: q, Kind: "product", Limit: 10})
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "Test Listing", hits[0].Entry.Title)
		assert.Equal(t, "Another Item", hits[1].Entry.Title)
		assert.InDelta(t, 0.0102, *hits[0].Distance, 0.001)
		assert.InDelta(t, 0.0200, *hits[1].Distance, 0.001)

		hits, err = repo.Nearest(ctx, storage.VectorQuery{
			Vector:  q,
			Kind:    "product",
			Filters: []storage.Filter{{Field: "price", Op: storage.OpLt, Value: 100}},
		})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "Test Listing", hits[0].Entry.Title)

		hits, err = repo.Nearest(ctx, storage.VectorQuery{Vector: q, Kind: "product", MaxDistance: 0.015})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "Test Listing", hits[0].Entry.Title)

		hits, err = repo.Nearest(ctx, storage.VectorQuery{Vector: q, Limit: 2})
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.ElementsMatch(t, []string{"Test Listing", "Service"}, titles(entries(hits)))
		assert.Less(t, hits[0].Entry.Id, hits[1].Entry.Id, "equal distances break ties by id")
	})

	t.Run("nearest orthogonal vectors", func(t *testing.T) {
		repo := open(t, NewClock().Now)
		ctx := context.Background()
		if !repo.SupportsVectors() {
			t.Skip("backend has no vector support")
		}

		_, err := repo.Upsert(ctx, entry("product", "x", "East", []float32{1, 0}))
		require.NoError(t, err)
		_, err = repo.Upsert(ctx, entry("product", "y", "North", []float32{0, 1}))
		require.NoError(t, err)

		hits, err := repo.Nearest(ctx, storage.VectorQuery{Vector: []float32{0.9, 0.1}})
		require.NoError(t, err)
		assert.Equal(t, []string{"East", "North"}, titles(entries(hits)))
	})

	t.Run("sample respects kind and size", func(t *testing.T) {
		repo := open(t, NewClock().Now)
		ctx := context.Background()

		for i := 0; i < 20; i++ {
			_, err := repo.Upsert(ctx, entry("product", string(rune('a'+i)), "P", nil))
			require.NoError(t, err)
		}
		_, err := repo.Upsert(ctx, entry("service", "s", "S", nil))
		require.NoError(t, err)

		got, err := repo.Sample(ctx, "product", 12)
		require.NoError(t, err)
		assert.Len(t, got, 12)
		for _, e := range got {
			assert.Equal(t, "product", e.SourceKind)
		}

		got, err = repo.Sample(ctx, "service", 12)
		require.NoError(t, err)
		assert.Len(t, got, 1)

		got, err = repo.Sample(ctx, "", 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func entry(kind, id, title string, embedding []float32) *core.IndexEntry {
	return &core.IndexEntry{
		SourceKind: kind,
		SourceID:   id,
		Title:      title,
		Metadata:   map[string]any{},
		Embedding:  embedding,
	}
}

func ids(entries []*core.IndexEntry) []core.ID {
	out := make([]core.ID, len(entries))
	for i, e := range entries {
		out[i] = e.Id
	}
	return out
}

func titles(entries []*core.IndexEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Title
	}
	return out
}

func entries(hits []*core.Hit) []*core.IndexEntry {
	out := make([]*core.IndexEntry, len(hits))
	for i, h := range hits {
		out[i] = h.Entry
	}
	return out
}
