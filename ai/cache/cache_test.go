package cache

import (
	"context"
	"testing"

	"github.com/poiesic/marketsearch/ai"
	"github.com/poiesic/marketsearch/ai/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedder_CachesQueries(t *testing.T) {
	ctx := context.Background()
	inner := mock.NewMockEmbedder(4)
	e, err := New(inner, 16)
	require.NoError(t, err)
	defer e.Close()

	first, err := e.EmbedText(ctx, "tomatoes", ai.TaskQuery)
	require.NoError(t, err)
	e.Wait()

	second, err := e.EmbedText(ctx, "tomatoes", ai.TaskQuery)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.CallCount())
}

func TestEmbedder_DocumentsBypassCache(t *testing.T) {
	ctx := context.Background()
	inner := mock.NewMockEmbedder(4)
	e, err := New(inner, 16)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.EmbedText(ctx, "tomatoes", ai.TaskDocument)
	require.NoError(t, err)
	e.Wait()
	_, err = e.EmbedText(ctx, "tomatoes", ai.TaskDocument)
	require.NoError(t, err)

	assert.Equal(t, 2, inner.CallCount())

	vs, err := e.EmbedTexts(ctx, []string{"a", "b"}, ai.TaskDocument)
	require.NoError(t, err)
	assert.Len(t, vs, 2)
}
