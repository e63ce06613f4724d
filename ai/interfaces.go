package ai

import "context"

// TaskType tells the embedder what the text will be used for.
// Some models embed queries and documents differently.
type TaskType int

const (
	// TaskDocument embeds text that will be stored in the index.
	TaskDocument TaskType = iota
	// TaskQuery embeds text that will be compared against stored documents.
	TaskQuery
)

// String returns the task name.
func (t TaskType) String() string {
	if t == TaskQuery {
		return "query"
	}
	return "document"
}

type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string, task TaskType) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string, task TaskType) ([][]float32, error)
}

type Provider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Dimension is the number of components every embedding must have.
	Dimension() int

	// Close releases resources held by the provider and its services.
	Close() error
}
