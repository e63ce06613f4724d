package mock

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/poiesic/marketsearch/ai"
)

// DefaultDimension is the vector length produced when MockEmbedder.Dim is zero.
const DefaultDimension = 8

// MockEmbedder is a test double for ai.Embedder.
// It is safe for concurrent use.
type MockEmbedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	// If nil, Vectors is consulted and then a deterministic vector is generated.
	EmbedTextFunc func(ctx context.Context, text string, task ai.TaskType) ([]float32, error)

	// Vectors maps exact input texts to fixed vectors.
	Vectors map[string][]float32

	// Dim is the length of generated vectors.
	Dim int

	mu        sync.Mutex
	callCount int
	texts     []string
}

var _ ai.Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder creates an embedder that generates deterministic vectors of dim components.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{Dim: dim}
}

// WithVector registers a fixed vector for text and returns the embedder.
func (m *MockEmbedder) WithVector(text string, vector []float32) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Vectors == nil {
		m.Vectors = make(map[string][]float32)
	}
	m.Vectors[text] = vector
	return m
}

// WithEmbedTextFunc overrides embedding behavior and returns the embedder.
func (m *MockEmbedder) WithEmbedTextFunc(fn func(ctx context.Context, text string, task ai.TaskType) ([]float32, error)) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmbedTextFunc = fn
	return m
}

func (m *MockEmbedder) EmbedText(ctx context.Context, text string, task ai.TaskType) ([]float32, error) {
	m.mu.Lock()
	m.callCount++
	m.texts = append(m.texts, text)
	fn := m.EmbedTextFunc
	fixed, ok := m.Vectors[text]
	dim := m.Dim
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, task)
	}
	if ok {
		return append([]float32(nil), fixed...), nil
	}
	if dim <= 0 {
		dim = DefaultDimension
	}
	return generateDeterministicVector(text, dim), nil
}

func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string, task ai.TaskType) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := m.EmbedText(ctx, text, task)
		if err != nil {
			return nil, err
		}
		embeddings[i] = v
	}
	return embeddings, nil
}

// CallCount returns how many texts have been embedded.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Texts returns every text passed to EmbedText, in call order.
func (m *MockEmbedder) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// Reset clears call tracking and behavior overrides.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.texts = nil
	m.EmbedTextFunc = nil
	m.Vectors = nil
}

func generateDeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000)/1000.0 + 0.001
	}
	return vector
}
