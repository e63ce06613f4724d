package index

import (
	"context"
	"testing"

	"github.com/poiesic/marketsearch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emptySource struct{}

func (emptySource) Get(ctx context.Context, id string) (Searchable, error) {
	return nil, ErrEntityNotFound
}

func (emptySource) List(ctx context.Context, afterID string, limit int) ([]Searchable, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("Service", emptySource{}))
	require.NoError(t, r.Register("product", emptySource{}))

	assert.ErrorIs(t, r.Register(" ", emptySource{}), core.ErrEmptySourceKind)
	assert.ErrorIs(t, r.Register("listing", nil), ErrSourceRequired)

	_, err := r.Lookup("SERVICE")
	assert.NoError(t, err)
	_, err = r.Lookup("vehicle")
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = r.Resolve(context.Background(), "product", "1")
	assert.ErrorIs(t, err, ErrEntityNotFound)

	assert.Equal(t, []string{"product", "service"}, r.Kinds())
}

func TestKindLocks(t *testing.T) {
	var locks KindLocks

	unlock := locks.Lock("product")
	_, ok := locks.TryLock("Product")
	assert.False(t, ok, "kinds are normalized before locking")

	other, ok := locks.TryLock("service")
	require.True(t, ok, "other kinds are independent")
	other()

	unlock()
	again, ok := locks.TryLock("product")
	require.True(t, ok)
	again()
}
