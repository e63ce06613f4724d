package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/marketsearch/ai"
	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/storage"
)

// Request is one search.
type Request struct {
	// Query is free text. Empty means browse by Kind and Filters.
	Query   string
	Kind    string
	Filters []storage.Filter
	// Limit caps the result count. Zero uses the configured default.
	Limit int

	// UserID and SessionKey are recorded in the query log.
	UserID     string
	SessionKey string

	// Monitor observes this request. Overrides the searcher's monitor.
	Monitor SearchMonitor
}

// Response is the ranked result of a search.
type Response struct {
	Hits     []*core.Hit
	Strategy core.Strategy
	// Degraded is set when the vector path was attempted and the keyword
	// ranker answered instead.
	Degraded bool
}

// Searcher ranks index entries for free-text queries.
// Vector ranking is used when the store reported vector capability at
// construction and the query can be embedded; otherwise, or when the vector
// path fails, keyword ranking answers. Provider and backend failures are
// never returned to the caller.
type Searcher struct {
	entries  storage.IndexRepository
	embedder ai.Embedder
	dim      int
	timeout  time.Duration
	config   Config
	vectors  bool
	vector   Ranker
	keyword  Ranker
	logs     storage.QueryLogRepository
	monitor  SearchMonitor
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithConfig sets the distance threshold and limits.
func WithConfig(config Config) Option {
	return func(s *Searcher) error {
		if err := config.Validate(); err != nil {
			return err
		}
		s.config = config
		return nil
	}
}

// WithEmbedTimeout bounds query embedding.
// Zero or negative disables the bound.
func WithEmbedTimeout(timeout time.Duration) Option {
	return func(s *Searcher) error {
		s.timeout = timeout
		return nil
	}
}

// WithQueryLog records every search in logs.
func WithQueryLog(logs storage.QueryLogRepository) Option {
	return func(s *Searcher) error {
		s.logs = logs
		return nil
	}
}

// WithMonitor sets the default monitor for every search.
func WithMonitor(monitor SearchMonitor) Option {
	return func(s *Searcher) error {
		if monitor != nil {
			s.monitor = monitor
		}
		return nil
	}
}

// WithVectorSearch forces vector ranking on or off regardless of the store's
// reported capability. Forcing it on against an incapable store only adds a
// failing attempt before the keyword fallback.
func WithVectorSearch(enabled bool) Option {
	return func(s *Searcher) error {
		s.vectors = enabled
		return nil
	}
}

// NewSearcher creates a new searcher.
// Vector capability is read from entries once, here.
func NewSearcher(entries storage.IndexRepository, provider ai.Provider, opts ...Option) (*Searcher, error) {
	if entries == nil {
		return nil, ErrRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		entries:  entries,
		embedder: provider.Embedder(),
		dim:      provider.Dimension(),
		timeout:  ai.DefaultEmbedTimeout,
		config:   DefaultConfig(),
		vectors:  entries.SupportsVectors(),
		keyword:  NewKeywordRanker(entries),
		monitor:  &noopMonitor{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.vectors {
		s.vector = NewVectorRanker(entries, s.config.MaxDistance)
	}
	s.logger = s.logger.With("component", "searcher")
	s.logger.Debug("searcher ready", "vectors", s.vector != nil, "maxDistance", s.config.MaxDistance)
	return s, nil
}

// VectorSearch reports whether the vector path is enabled.
func (s *Searcher) VectorSearch() bool {
	return s.vector != nil
}

// Config returns the searcher's configuration.
func (s *Searcher) Config() Config {
	return s.config
}

// Search ranks entries for req.
// An empty query with no kind and no filters returns an empty result.
// An empty query with a kind or filters returns matching entries newest first.
// Only cancellation and keyword-path storage failures are returned as errors.
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	monitor := req.Monitor
	if monitor == nil {
		monitor = s.monitor
	}

	req.Query = strings.TrimSpace(req.Query)
	req.Kind = core.NormalizeKind(req.Kind)
	req.Limit = s.config.Limit(req.Limit)
	monitor.Start(&req)

	var (
		resp *Response
		err  error
	)
	switch {
	case req.Query == "" && req.Kind == "" && len(req.Filters) == 0:
		resp = &Response{Hits: []*core.Hit{}, Strategy: core.StrategyNone}
	case req.Query == "":
		resp, err = s.browse(ctx, req)
	default:
		resp, err = s.rank(ctx, req, monitor)
	}
	if err != nil {
		return nil, err
	}

	if resp.Strategy != core.StrategyNone {
		s.record(ctx, req, resp, time.Since(start))
	}
	monitor.Finish(resp)
	return resp, nil
}

// Sample returns up to n random entries, optionally of one kind.
// It backs the "nothing found" presentation policy.
func (s *Searcher) Sample(ctx context.Context, kind string, n int) ([]*core.Hit, error) {
	entries, err := s.entries.Sample(ctx, kind, n)
	if err != nil {
		return nil, err
	}
	hits := make([]*core.Hit, len(entries))
	for i, entry := range entries {
		hits[i] = &core.Hit{Entry: entry}
	}
	return hits, nil
}

func (s *Searcher) browse(ctx context.Context, req Request) (*Response, error) {
	hits, err := s.keyword.Rank(ctx, RankQuery{Kind: req.Kind, Filters: req.Filters, Limit: req.Limit})
	if err != nil {
		return nil, fmt.Errorf("filter scan: %w", err)
	}
	return &Response{Hits: hits, Strategy: core.StrategyFilter}, nil
}

func (s *Searcher) rank(ctx context.Context, req Request, monitor SearchMonitor) (*Response, error) {
	degraded := false
	if s.vector != nil {
		hits, err := s.rankByVector(ctx, req, monitor)
		switch {
		case err == nil && len(hits) > 0:
			return &Response{Hits: hits, Strategy: s.vector.Strategy()}, nil
		case err == nil:
			monitor.Fallback("no vector matches")
			s.logger.Debug("no vector matches, trying keywords", "query", req.Query)
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			degraded = true
			monitor.Fallback(err.Error())
			s.logger.Warn("vector search unavailable, falling back to keywords", "query", req.Query, "err", err)
		}
	}

	hits, err := s.keyword.Rank(ctx, RankQuery{Text: req.Query, Kind: req.Kind, Filters: req.Filters, Limit: req.Limit})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Error("keyword search failed", "query", req.Query, "err", err)
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return &Response{Hits: hits, Strategy: s.keyword.Strategy(), Degraded: degraded}, nil
}

func (s *Searcher) rankByVector(ctx context.Context, req Request, monitor SearchMonitor) ([]*core.Hit, error) {
	vector, err := ai.EmbedBounded(ctx, s.embedder, req.Query, ai.TaskQuery, s.timeout, s.dim)
	monitor.AfterEmbedding(vector, err)
	if err != nil {
		return nil, err
	}

	hits, err := s.vector.Rank(ctx, RankQuery{Vector: vector, Kind: req.Kind, Filters: req.Filters, Limit: req.Limit})
	monitor.AfterVectorSearch(hits, err)
	if err != nil {
		return nil, fmt.Errorf("vector ranking: %w", err)
	}
	return hits, nil
}

// record writes a query log. Failures are logged, never returned.
func (s *Searcher) record(ctx context.Context, req Request, resp *Response, elapsed time.Duration) {
	if s.logs == nil {
		return
	}
	err := s.logs.AddQueryLog(context.WithoutCancel(ctx), &core.QueryLog{
		QueryText:    normalizeQuery(req.Query),
		UserID:       req.UserID,
		SessionKey:   req.SessionKey,
		ResultsFound: len(resp.Hits),
		Strategy:     resp.Strategy,
		LatencyMs:    float64(elapsed.Microseconds()) / 1000,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("error recording query log", "err", err)
	}
}
