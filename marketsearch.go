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


package marketsearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/marketsearch/ai"
	"github.com/poiesic/marketsearch/ai/openai"
	"github.com/poiesic/marketsearch/api"
	"github.com/poiesic/marketsearch/index"
	"github.com/poiesic/marketsearch/listing"
	"github.com/poiesic/marketsearch/rebuild"
	"github.com/poiesic/marketsearch/search"
	"github.com/poiesic/marketsearch/storage"
	"github.com/poiesic/marketsearch/storage/badger"
	"github.com/poiesic/marketsearch/storage/sqlstore"
	"gorm.io/gorm"
)

// Service holds the wired search subsystem: index store, embedding
// provider, indexer, query engine and rebuild jobs.
type Service struct {
	repos      *storage.Repositories
	db         *gorm.DB
	provider   ai.Provider
	indexer    *index.Indexer
	searcher   *search.Searcher
	rebuilds   *rebuild.Manager
	dispatcher *index.Dispatcher
	hooks      index.Hooks
	listings   *listing.Store
	base       *slog.Logger
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	provider ai.Provider
	progress io.Writer
	logger   *slog.Logger
}

// WithProvider uses provider instead of connecting to the configured
// embedding service. The Service closes it on Close.
func WithProvider(provider ai.Provider) Option {
	return func(o *serviceOptions) {
		o.provider = provider
	}
}

// WithRebuildProgress reports the progress of every rebuild job to w.
func WithRebuildProgress(w io.Writer) Option {
	return func(o *serviceOptions) {
		o.progress = w
	}
}

// WithLogger sets the logger passed to every component.
// If nil, uses slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
	}
}

// New opens the configured backend and wires every component over it.
// SQL backends also get a listing store whose changes propagate to the index.
func New(ctx context.Context, config *Config, opts ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	options := &serviceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	s := &Service{base: options.logger, logger: options.logger.With("component", "marketsearch")}
	if err := s.openStorage(ctx, config, options.logger); err != nil {
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		var err error
		provider, err = openai.NewProvider(config.AI)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("create embedding provider: %w", err)
		}
	}
	s.provider = provider

	if err := s.wire(ctx, config, options); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) openStorage(ctx context.Context, config *Config, logger *slog.Logger) error {
	switch config.Backend {
	case BackendBadger:
		repos, err := badger.Open(config.Path, config.Path == "")
		if err != nil {
			return fmt.Errorf("open badger store: %w", err)
		}
		s.repos = repos
		return nil
	case BackendSQLite, BackendPostgres:
		dialect, err := sqlstore.ParseDialect(string(config.Backend))
		if err != nil {
			return err
		}
		db, err := sqlstore.Connect(dialect, config.DSN, sqlstore.WithLogger(logger))
		if err != nil {
			return err
		}
		s.db = db
		repos, err := sqlstore.OpenDB(ctx, db, sqlstore.WithLogger(logger))
		if err != nil {
			s.closeDB()
			return err
		}
		s.repos = repos
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownBackend, config.Backend)
}

func (s *Service) wire(ctx context.Context, config *Config, options *serviceOptions) error {
	logger := options.logger
	timeout := config.AI.EmbedTimeout

	ix, err := index.NewIndexer(s.repos.Index, s.provider,
		index.WithLogger(logger),
		index.WithEmbedTimeout(timeout),
	)
	if err != nil {
		return err
	}
	s.indexer = ix

	if config.AsyncHooks {
		d, err := index.NewDispatcher(ix, s.repos.Outbox, index.WithDispatcherLogger(logger))
		if err != nil {
			return err
		}
		s.dispatcher = d
		s.hooks = d
	} else {
		s.hooks = index.NewSyncHooks(ix)
	}

	if s.db != nil {
		store, err := listing.NewStore(s.db, listing.WithHooks(s.hooks), listing.WithLogger(logger))
		if err != nil {
			return err
		}
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate listings: %w", err)
		}
		if err := store.Register(ix.Registry()); err != nil {
			return err
		}
		s.listings = store
	}

	if s.dispatcher != nil {
		if _, err := s.dispatcher.Replay(ctx); err != nil {
			s.logger.Warn("error replaying outbox", "err", err)
		}
	}

	searcher, err := search.NewSearcher(s.repos.Index, s.provider,
		search.WithLogger(logger),
		search.WithConfig(config.Search),
		search.WithEmbedTimeout(timeout),
		search.WithQueryLog(s.repos.QueryLogs),
	)
	if err != nil {
		return err
	}
	s.searcher = searcher

	rebuilds, err := rebuild.NewManager(ix, s.repos.Checkpoints,
		rebuild.WithLogger(logger),
		rebuild.WithConfig(config.Rebuild),
		rebuild.WithProgress(options.progress),
	)
	if err != nil {
		return err
	}
	s.rebuilds = rebuilds
	return nil
}

// Close stops background work and releases the provider and the backend.
func (s *Service) Close() error {
	var errs []error
	if s.rebuilds != nil {
		s.rebuilds.Release()
	}
	if s.dispatcher != nil {
		s.dispatcher.Release()
	}
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if s.repos != nil {
		if err := s.repos.Close(); err != nil {
			s.logger.Error("error closing repositories", "err", err)
			errs = append(errs, err)
		}
	}
	if err := s.closeDB(); err != nil {
		s.logger.Error("error closing database", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) closeDB() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	s.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Wait blocks until queued index changes have been applied.
// It returns immediately when hooks are synchronous.
func (s *Service) Wait() {
	if s.dispatcher != nil {
		s.dispatcher.Wait()
	}
}

func (s *Service) Repositories() *storage.Repositories {
	return s.repos
}

func (s *Service) Indexer() *index.Indexer {
	return s.indexer
}

func (s *Service) Searcher() *search.Searcher {
	return s.searcher
}

func (s *Service) Rebuilds() *rebuild.Manager {
	return s.rebuilds
}

// Hooks returns the change hooks that keep the index in step with sources.
func (s *Service) Hooks() index.Hooks {
	return s.hooks
}

// Listings returns the listing store, or nil on the badger backend.
func (s *Service) Listings() *listing.Store {
	return s.listings
}

// NewServer creates the HTTP server over the service's components.
func (s *Service) NewServer(opts ...api.Option) (*api.Server, error) {
	opts = append([]api.Option{api.WithRebuilds(s.rebuilds), api.WithLogger(s.base)}, opts...)
	return api.NewServer(s.searcher, s.indexer, opts...)
}
