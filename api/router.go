package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/marketsearch/index"
	"github.com/poiesic/marketsearch/rebuild"
	"github.com/poiesic/marketsearch/search"
)

// Server serves the search and admin endpoints.
type Server struct {
	searcher *search.Searcher
	indexer  *index.Indexer
	rebuilds *rebuild.Manager
	auth     AuthConfig
	origins  []string
	logger   *slog.Logger
}

type Option func(*Server) error

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithRebuilds enables background rebuild jobs.
func WithRebuilds(m *rebuild.Manager) Option {
	return func(s *Server) error {
		s.rebuilds = m
		return nil
	}
}

func WithAuth(config AuthConfig) Option {
	return func(s *Server) error {
		s.auth = config
		return nil
	}
}

// WithAllowedOrigins restricts CORS to origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) error {
		s.origins = origins
		return nil
	}
}

func NewServer(searcher *search.Searcher, indexer *index.Indexer, opts ...Option) (*Server, error) {
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	if indexer == nil {
		return nil, ErrIndexerRequired
	}
	s := &Server{
		searcher: searcher,
		indexer:  indexer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "api")
	return s, nil
}

// Router builds the gin engine for s.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(s.logger), CORS(s.origins))

	r.GET("/healthz", Health)
	r.GET("/search", OptionalIdentity(s.auth), s.Search)

	admin := r.Group("/admin", RequireAdmin(s.auth))
	admin.POST("/index", s.IndexEntity)
	admin.DELETE("/index-entry/:id", s.DeleteEntry)
	admin.POST("/rebuild", s.Rebuild)
	admin.GET("/rebuild", s.ListRebuilds)
	admin.GET("/rebuild/:job", s.RebuildStatus)
	admin.DELETE("/rebuild/:job", s.CancelRebuild)
	admin.POST("/rebuild/:job/resume", s.ResumeRebuild)
	return r
}
