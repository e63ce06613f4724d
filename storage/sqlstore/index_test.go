package sqlstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/storage"
	"github.com/poiesic/marketsearch/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T, opts ...Option) *storage.Repositories {
	t.Helper()
	repos, err := Open(context.Background(), DialectSQLite, ":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

func TestSQLiteIndexRepository_Conformance(t *testing.T) {
	storagetest.RunIndexRepositoryTests(t, func(t *testing.T, now func() time.Time) storage.IndexRepository {
		return openSQLite(t, WithClock(now)).Index
	})
}

func TestPostgresIndexRepository_Conformance(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	storagetest.RunIndexRepositoryTests(t, func(t *testing.T, now func() time.Time) storage.IndexRepository {
		repos, err := Open(context.Background(), DialectPostgres, dsn, WithClock(now))
		require.NoError(t, err)
		t.Cleanup(func() { repos.Close() })

		index := repos.Index.(*IndexRepository)
		require.NoError(t, index.db.Exec("DELETE FROM index_entries").Error)
		return index
	})
}

func TestSQLiteIndexRepository_NoVectorCapability(t *testing.T) {
	repos := openSQLite(t)
	assert.False(t, repos.Index.SupportsVectors())

	stored, err := repos.Index.Upsert(context.Background(), &core.IndexEntry{
		SourceKind: "product",
		SourceID:   "1",
		Title:      "Tomatoes",
		Embedding:  []float32{0.25, 0.5},
	})
	require.NoError(t, err)

	got, err := repos.Index.GetEntry(context.Background(), stored.Id)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.5}, got.Embedding, "embeddings survive as text")

	_, err = repos.Index.Nearest(context.Background(), storage.VectorQuery{Vector: []float32{1, 0}})
	assert.ErrorIs(t, err, storage.ErrBackendUnsupported)
}

func TestOpen_MigratesEmbeddingColumn(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	repos, err := Open(ctx, DialectSQLite, dsn)
	require.NoError(t, err)
	index := repos.Index.(*IndexRepository)
	assert.True(t, index.db.Migrator().HasColumn(&entryModel{}, "embedding"))
	stored, err := repos.Index.Upsert(ctx, &core.IndexEntry{SourceKind: "service", SourceID: "1", Title: "Delivery"})
	require.NoError(t, err)
	require.NoError(t, repos.Close())

	repos, err = Open(ctx, DialectSQLite, dsn)
	require.NoError(t, err)
	defer repos.Close()
	got, err := repos.Index.GetEntry(ctx, stored.Id)
	require.NoError(t, err)
	assert.Equal(t, "Delivery", got.Title)
	assert.Nil(t, got.Embedding)
}

func TestSQLiteIndexRepository_ConcurrentUpsertsKeepOneEntry(t *testing.T) {
	repos := openSQLite(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repos.Index.Upsert(ctx, &core.IndexEntry{
				SourceKind: "product",
				SourceID:   "42",
				Title:      fmt.Sprintf("version %d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	count, err := repos.Index.Count(ctx, "product")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteIndexRepository_TextIsLiteral(t *testing.T) {
	repos := openSQLite(t)
	ctx := context.Background()

	_, err := repos.Index.Upsert(ctx, &core.IndexEntry{SourceKind: "product", SourceID: "1", Title: "100% cotton"})
	require.NoError(t, err)
	_, err = repos.Index.Upsert(ctx, &core.IndexEntry{SourceKind: "product", SourceID: "2", Title: "1000 cottons"})
	require.NoError(t, err)

	got, err := repos.Index.Scan(ctx, storage.ScanQuery{Text: "0% c"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "100% cotton", got[0].Title)
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"sqlite", DialectSQLite, false},
		{"sqlite3", DialectSQLite, false},
		{"postgres", DialectPostgres, false},
		{"postgresql", DialectPostgres, false},
		{"mysql", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDialect(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, storage.ErrUnknownDialect)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpen_UnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Dialect("oracle"), "")
	assert.ErrorIs(t, err, storage.ErrUnknownDialect)
}
