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


package openai

import (
	"log/slog"

	"github.com/poiesic/marketsearch/ai"
	"github.com/poiesic/marketsearch/ai/cache"
)

// Provider implements ai.Provider using an OpenAI-compatible embedding service.
// Query embeddings are cached in memory when Config.CacheSize is positive.
type Provider struct {
	config   *ai.Config
	embedder ai.Embedder
	cached   *cache.Embedder
	logger   *slog.Logger
}

// NewProvider creates a new AI provider with OpenAI-compatible services.
// The config is validated and normalized before use.
//
// Returns ai.Provider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config) (ai.Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		config:   config,
		embedder: embedder,
		logger:   slog.Default().With("component", "openai-provider"),
	}

	if config.CacheSize > 0 {
		cached, err := cache.New(embedder, config.CacheSize)
		if err != nil {
			return nil, err
		}
		p.cached = cached
		p.embedder = cached
	}

	return p, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Dimension returns the configured embedding dimension.
func (p *Provider) Dimension() int {
	return p.config.Dimension
}

// Close releases the query cache, if any.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	if p.cached != nil {
		p.cached.Close()
	}
	return nil
}
