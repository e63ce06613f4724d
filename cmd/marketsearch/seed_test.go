package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/marketsearch"
	"github.com/poiesic/marketsearch/ai/mock"
	"github.com/poiesic/marketsearch/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLService(t *testing.T) *marketsearch.Service {
	t.Helper()
	config := &marketsearch.Config{Backend: marketsearch.BackendSQLite, DSN: ":memory:"}
	svc, err := marketsearch.New(context.Background(), config, marketsearch.WithProvider(mock.NewMockProvider(4)))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestSeed_BuiltInListings(t *testing.T) {
	svc := newSQLService(t)
	ctx := context.Background()

	n, err := seed(ctx, svc.Listings(), listingsFromSlice(seedListings))
	require.NoError(t, err)
	assert.Equal(t, len(seedListings), n)
	for _, l := range seedListings {
		assert.Zero(t, l.ID, "the built-in listings are not modified")
	}

	resp, err := svc.Searcher().Search(ctx, search.Request{Query: "tomato", Kind: "supplier_product"})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "Tomato Seedlings", resp.Hits[0].Entry.Title)
}

func TestSeed_FromFile(t *testing.T) {
	svc := newSQLService(t)
	path := filepath.Join(t.TempDir(), "listings.jsonl")
	data := `{"listing_type":"product","seller_id":"1","name":"Honey","price":400}

{"listing_type":"vehicle","seller_id":"1","name":"Tractor"}
{"listing_type":"service","seller_id":"2","name":"Beekeeping Course"}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	source, err := listingsFromFile(path)
	require.NoError(t, err)
	n, err := seed(context.Background(), svc.Listings(), source)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "unknown listing types are skipped")
}

func TestSeed_FileErrors(t *testing.T) {
	_, err := listingsFromFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)

	svc := newSQLService(t)
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"listing_type\":\"product\",\"seller_id\":\"1\",\"name\":\"Eggs\"}\nnot json\n"), 0644))
	source, err := listingsFromFile(path)
	require.NoError(t, err)

	n, err := seed(context.Background(), svc.Listings(), source)
	assert.ErrorContains(t, err, "bad.jsonl:2")
	assert.Equal(t, 1, n)
}
