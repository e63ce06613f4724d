// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ai provides abstractions for the embedding services used by marketsearch.
//
// The index and the query engine depend only on the Embedder and Provider
// interfaces defined here. A provider turns text into a fixed-length vector
// or fails; callers treat every failure as "no embedding available" and
// degrade to keyword search.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible embedding APIs (Ollama, llama.cpp, OpenAI)
//   - ai/cache: an in-memory query embedding cache that wraps any Embedder
//   - ai/mock: test doubles for unit testing without external dependencies
//
// # Task Types
//
// Embedding calls carry a TaskType. Asymmetric models embed search queries
// and stored documents with different prefixes, configured through
// Config.QueryPrefix and Config.DocumentPrefix.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithEmbeddingModel("nomic-embed-text"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := ai.EmbedBounded(ctx, provider.Embedder(), "fresh tomatoes",
//	    ai.TaskQuery, config.EmbedTimeout, provider.Dimension())
package ai
