package listing_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/marketsearch/ai/mock"
	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/index"
	"github.com/poiesic/marketsearch/listing"
	"github.com/poiesic/marketsearch/storage"
	"github.com/poiesic/marketsearch/storage/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := sqlstore.Connect(sqlstore.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newStore(t *testing.T, opts ...listing.Option) (*listing.Store, *gorm.DB) {
	t.Helper()
	db := openDB(t)
	store, err := listing.NewStore(db, opts...)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	return store, db
}

func tomatoes() *listing.Listing {
	quantity := 12.5
	organic := true
	return &listing.Listing{
		ListingType: "Product",
		SellerID:    "42",
		Seller:      "greenfarm",
		Name:        "Tomatoes",
		Location:    "Nairobi",
		Price:       50,
		Quantity:    &quantity,
		Unit:        "kg",
		Description: "Fresh from the farm",
		Category:    "produce",
		Organic:     &organic,
	}
}

func TestListing_ToSearchDocument(t *testing.T) {
	l := tomatoes()
	l.ID = 7

	assert.Equal(t, "product", l.SourceKind())
	assert.Equal(t, "7", l.SourceID())

	doc, err := l.ToSearchDocument()
	require.NoError(t, err)
	assert.Equal(t, "Tomatoes", doc.Title)
	assert.Equal(t, "Fresh from the farm", doc.Description)
	assert.Equal(t, "Tomatoes produce Fresh from the farm", doc.EmbeddingText)
	assert.Equal(t, 50.0, doc.Metadata["price"])
	assert.Equal(t, "produce", doc.Metadata["category"])
	assert.Equal(t, "greenfarm", doc.Metadata["seller"])
	assert.Equal(t, 12.5, doc.Metadata["quantity"])
	assert.Equal(t, true, doc.Metadata["organic"])
	assert.NotContains(t, doc.Metadata, "supplier")

	l.Name = "  "
	_, err = l.ToSearchDocument()
	assert.Error(t, err)
}

func TestListing_Unsaved(t *testing.T) {
	assert.Empty(t, tomatoes().SourceID())
}

func TestStore_CRUD(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	l := tomatoes()
	require.NoError(t, store.Create(ctx, l))
	assert.NotZero(t, l.ID)
	assert.Equal(t, "product", l.ListingType)
	assert.Equal(t, listing.StatusActive, l.Status)

	got, err := store.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tomatoes", got.Name)

	got.Name = "Cherry Tomatoes"
	require.NoError(t, store.Update(ctx, got))
	got, err = store.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cherry Tomatoes", got.Name)

	require.NoError(t, store.Delete(ctx, l.ID))
	_, err = store.Get(ctx, l.ID)
	assert.ErrorIs(t, err, listing.ErrListingNotFound)
	assert.ErrorIs(t, store.Delete(ctx, l.ID), listing.ErrListingNotFound)
	assert.ErrorIs(t, store.Update(ctx, &listing.Listing{ID: 999, ListingType: "product", Name: "x"}), listing.ErrListingNotFound)
}

func TestStore_RejectsUnknownType(t *testing.T) {
	store, _ := newStore(t)
	l := tomatoes()
	l.ListingType = "vehicle"
	assert.ErrorIs(t, store.Create(context.Background(), l), listing.ErrInvalidListingType)
	assert.ErrorIs(t, store.Create(context.Background(), nil), core.ErrInvalidEntity)
}

func TestSource_GetAndList(t *testing.T) {
	store, db := newStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		kind := listing.KindProduct
		if i%2 == 0 {
			kind = listing.KindService
		}
		require.NoError(t, store.Create(ctx, &listing.Listing{ListingType: kind, SellerID: "1", Name: fmt.Sprintf("Listing %d", i)}))
	}

	products, err := listing.NewSource(db, listing.KindProduct)
	require.NoError(t, err)

	count, err := products.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	page, err := products.List(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "1", page[0].SourceID())
	assert.Equal(t, "3", page[1].SourceID())

	page, err = products.List(ctx, page[1].SourceID(), 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "5", page[0].SourceID())

	got, err := products.Get(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, "product", got.SourceKind())

	_, err = products.Get(ctx, "2")
	assert.ErrorIs(t, err, index.ErrEntityNotFound, "services are not products")
	_, err = products.Get(ctx, "abc")
	assert.ErrorIs(t, err, index.ErrEntityNotFound)

	require.NoError(t, store.Delete(ctx, 3))
	_, err = products.Get(ctx, "3")
	assert.ErrorIs(t, err, index.ErrEntityNotFound, "deleted listings are not live")

	_, err = products.List(ctx, "not-a-number", 2)
	assert.Error(t, err)
}

func TestNewSource_Validation(t *testing.T) {
	_, err := listing.NewSource(nil, listing.KindProduct)
	assert.ErrorIs(t, err, listing.ErrDatabaseRequired)
	_, err = listing.NewSource(openDB(t), "vehicle")
	assert.ErrorIs(t, err, listing.ErrInvalidListingType)
}

// failingHooks rejects every notification.
type failingHooks struct{ calls int }

func (h *failingHooks) OnCreate(context.Context, index.Searchable) error {
	h.calls++
	return errors.New("index down")
}
func (h *failingHooks) OnUpdate(context.Context, index.Searchable) error { return h.OnCreate(context.Background(), nil) }
func (h *failingHooks) OnDelete(context.Context, index.Searchable) error { return h.OnCreate(context.Background(), nil) }

func TestStore_HookFailureKeepsWrite(t *testing.T) {
	hooks := &failingHooks{}
	store, _ := newStore(t, listing.WithHooks(hooks))
	ctx := context.Background()

	l := tomatoes()
	require.NoError(t, store.Create(ctx, l))
	_, err := store.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, hooks.calls)
}

func TestStore_PropagatesChangesToIndex(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	repos, err := sqlstore.OpenDB(ctx, db)
	require.NoError(t, err)

	ix, err := index.NewIndexer(repos.Index, mock.NewMockProvider(4))
	require.NoError(t, err)
	store, err := listing.NewStore(db, listing.WithHooks(index.NewSyncHooks(ix)))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Register(ix.Registry()))
	assert.Equal(t, []string{"product", "service", "supplier_product"}, ix.Registry().Kinds())

	l := tomatoes()
	require.NoError(t, store.Create(ctx, l))
	entry, err := repos.Index.GetBySource(ctx, "product", l.SourceID())
	require.NoError(t, err)
	assert.Equal(t, "Tomatoes", entry.Title)
	assert.Equal(t, "greenfarm", entry.Metadata["seller"])

	l.Price = 75
	require.NoError(t, store.Update(ctx, l))
	entry, err = repos.Index.GetBySource(ctx, "product", l.SourceID())
	require.NoError(t, err)
	assert.Equal(t, 75.0, entry.Metadata["price"])

	require.NoError(t, store.Delete(ctx, l.ID))
	_, err = repos.Index.GetBySource(ctx, "product", l.SourceID())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// A rebuild from the listing table restores what is live.
	require.NoError(t, store.Create(ctx, &listing.Listing{ListingType: "service", SellerID: "1", Name: "Delivery"}))
	_, err = repos.Index.DeleteKind(ctx, "service")
	require.NoError(t, err)
	count, err := ix.Rebuild(ctx, "service")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
