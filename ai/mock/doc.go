// Package mock provides test doubles for the ai interfaces.
//
// # Usage in Tests
//
//	embedder := mock.NewMockEmbedder(4).
//	    WithVector("Test Listing", []float32{0.1, 0.2, 0.3, 0.4})
//
//	failing := mock.NewMockEmbedder(4).
//	    WithEmbedTextFunc(func(ctx context.Context, text string, task ai.TaskType) ([]float32, error) {
//	        return nil, errors.New("provider down")
//	    })
//
//	provider := mock.NewMockProviderWithEmbedder(embedder)
//	count := embedder.CallCount()
//
// # Default Behavior
//
// Texts without a registered vector get a deterministic vector derived from
// an FNV hash of the text, so identical texts always embed identically.
package mock
