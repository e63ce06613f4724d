package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/marketsearch/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	m := NewMockEmbedder(16)

	a, err := m.EmbedText(ctx, "fresh tomatoes", ai.TaskDocument)
	require.NoError(t, err)
	b, err := m.EmbedText(ctx, "fresh tomatoes", ai.TaskQuery)
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.Equal(t, a, b)
	assert.Equal(t, 2, m.CallCount())
	assert.Equal(t, []string{"fresh tomatoes", "fresh tomatoes"}, m.Texts())
}

func TestMockEmbedder_FixedVectors(t *testing.T) {
	m := NewMockEmbedder(2).WithVector("north", []float32{1, 0})

	v, err := m.EmbedText(context.Background(), "north", ai.TaskQuery)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, v)

	v[0] = 5
	again, _ := m.EmbedText(context.Background(), "north", ai.TaskQuery)
	assert.Equal(t, float32(1), again[0], "returned vectors must be copies")
}

func TestMockEmbedder_Override(t *testing.T) {
	m := NewMockEmbedder(2).WithEmbedTextFunc(func(context.Context, string, ai.TaskType) ([]float32, error) {
		return nil, errors.New("down")
	})

	_, err := m.EmbedTexts(context.Background(), []string{"a", "b"}, ai.TaskDocument)
	assert.Error(t, err)

	m.Reset()
	assert.Equal(t, 0, m.CallCount())
	vs, err := m.EmbedTexts(context.Background(), []string{"a", "b"}, ai.TaskDocument)
	require.NoError(t, err)
	assert.Len(t, vs, 2)
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider(0)
	assert.Equal(t, DefaultDimension, p.Dimension())
	assert.NotNil(t, p.Embedder())
	require.NoError(t, p.Close())
	assert.True(t, p.Closed())
}
