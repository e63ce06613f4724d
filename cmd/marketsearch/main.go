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


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/poiesic/marketsearch"
	"github.com/poiesic/marketsearch/ai"
	"github.com/poiesic/marketsearch/api"
	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/rebuild"
	"github.com/poiesic/marketsearch/search"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "marketsearch",
		Usage: "Semantic search over marketplace listings",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"MARKETSEARCH_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "backend",
				Usage:   "Index store (badger, sqlite, postgres)",
				Value:   string(marketsearch.BackendBadger),
				EnvVars: []string{"MARKETSEARCH_BACKEND"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (badger backend)",
				Value:   "./marketsearch_db",
				EnvVars: []string{"MARKETSEARCH_DB"},
			},
			&cli.StringFlag{
				Name:    "dsn",
				Usage:   "SQL connection string (sqlite and postgres backends)",
				EnvVars: []string{"MARKETSEARCH_DSN", "DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "embedding-host",
				Usage:   "Embedding service host URL",
				Value:   "http://localhost:11434/v1",
				EnvVars: []string{"EMBEDDING_HOST"},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Embedding model name",
				Value:   "nomic-embed-text",
				EnvVars: []string{"EMBEDDING_MODEL"},
			},
			&cli.StringFlag{
				Name:    "embedding-token",
				Usage:   "Embedding service API token",
				EnvVars: []string{"EMBEDDING_TOKEN", "OPENAI_API_KEY"},
			},
			&cli.IntFlag{
				Name:    "dimension",
				Usage:   "Embedding dimension",
				Value:   ai.DefaultDimension,
				EnvVars: []string{"EMBEDDING_DIMENSION"},
			},
			&cli.DurationFlag{
				Name:    "embed-timeout",
				Usage:   "Timeout for a single embedding call",
				Value:   ai.DefaultEmbedTimeout,
				EnvVars: []string{"EMBEDDING_TIMEOUT"},
			},
			&cli.StringFlag{
				Name:    "query-prefix",
				Usage:   "Prefix prepended to queries before embedding",
				EnvVars: []string{"EMBEDDING_QUERY_PREFIX"},
			},
			&cli.StringFlag{
				Name:    "document-prefix",
				Usage:   "Prefix prepended to documents before embedding",
				EnvVars: []string{"EMBEDDING_DOCUMENT_PREFIX"},
			},
			&cli.IntFlag{
				Name:    "cache-size",
				Usage:   "Number of query embeddings to cache (0 disables)",
				Value:   1024,
				EnvVars: []string{"EMBEDDING_CACHE_SIZE"},
			},
			&cli.Float64Flag{
				Name:    "max-distance",
				Usage:   "Maximum cosine distance of vector matches (0 disables)",
				Value:   search.DefaultMaxDistance,
				EnvVars: []string{"SEARCH_MAX_DISTANCE"},
			},
			&cli.BoolFlag{
				Name:    "async-hooks",
				Usage:   "Apply index changes in the background through the outbox",
				EnvVars: []string{"MARKETSEARCH_ASYNC_HOOKS"},
			},
		},
		Before: func(c *cli.Context) error {
			// A missing .env file is not an error.
			_ = godotenv.Load()
			return setupLogger(c)
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the search HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "addr",
						Usage:   "Listen address",
						Value:   ":8080",
						EnvVars: []string{"MARKETSEARCH_ADDR"},
					},
					&cli.StringFlag{
						Name:    "internal-token",
						Usage:   "Service token accepted on admin routes",
						EnvVars: []string{"INTERNAL_SERVICE_TOKEN"},
					},
					&cli.StringFlag{
						Name:    "jwt-secret",
						Usage:   "HS256 secret for admin JWTs",
						EnvVars: []string{"JWT_SECRET"},
					},
					&cli.StringSliceFlag{
						Name:    "cors-origin",
						Usage:   "Allowed CORS origin (repeatable, default any)",
						EnvVars: []string{"CORS_ALLOWED_ORIGINS"},
					},
					&cli.DurationFlag{
						Name:  "shutdown-timeout",
						Usage: "Time allowed for in-flight requests on shutdown",
						Value: 10 * time.Second,
					},
				},
			},
			{
				Name:      "index",
				Usage:     "Index one entity",
				ArgsUsage: "<kind> <id>",
				Action:    indexCommand,
			},
			{
				Name:      "rebuild",
				Usage:     "Rebuild the index entries of one kind",
				ArgsUsage: "<kind>",
				Action:    rebuildCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "purge-first",
						Usage: "Delete every entry of the kind before re-indexing",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of entities to load per page",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N entities",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Run a query against the index",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "type",
						Usage: "Restrict results to a kind",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: search.DefaultLimit,
					},
					&cli.StringSliceFlag{
						Name:  "filter",
						Usage: "Metadata filter as key[.op]=value (repeatable)",
					},
				},
			},
			{
				Name:   "seed",
				Usage:  "Create demo listings (SQL backends only)",
				Action: seedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "src",
						Usage: "File of JSON listings, one per line",
					},
				},
			},
			{
				Name:      "delete-entry",
				Usage:     "Remove an index entry by id",
				ArgsUsage: "<entry id>",
				Action:    deleteEntryCommand,
			},
		},
	}
}

func buildConfig(c *cli.Context) (*marketsearch.Config, error) {
	backend, err := marketsearch.ParseBackend(c.String("backend"))
	if err != nil {
		return nil, err
	}
	config := marketsearch.DefaultConfig()
	config.Backend = backend
	config.Path = c.String("db")
	config.DSN = c.String("dsn")
	config.AsyncHooks = c.Bool("async-hooks")
	config.AI = ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithEmbeddingToken(c.String("embedding-token")),
		ai.WithDimension(c.Int("dimension")),
		ai.WithEmbedTimeout(c.Duration("embed-timeout")),
		ai.WithPrefixes(c.String("query-prefix"), c.String("document-prefix")),
		ai.WithCacheSize(c.Int("cache-size")),
	)
	if err := config.AI.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}
	config.Search.MaxDistance = c.Float64("max-distance")
	return config, nil
}

func openService(c *cli.Context, config *marketsearch.Config, opts ...marketsearch.Option) (*marketsearch.Service, error) {
	svc, err := marketsearch.New(c.Context, config, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open search service: %w", err)
	}
	return svc, nil
}

func serveCommand(c *cli.Context) error {
	config, err := buildConfig(c)
	if err != nil {
		return err
	}
	svc, err := openService(c, config)
	if err != nil {
		return err
	}
	defer svc.Close()

	if !strings.EqualFold(c.String("log-level"), "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	server, err := svc.NewServer(
		api.WithAuth(api.AuthConfig{
			InternalToken: c.String("internal-token"),
			JWTSecret:     c.String("jwt-secret"),
		}),
		api.WithAllowedOrigins(splitOrigins(c.StringSlice("cors-origin"))...),
	)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              c.String("addr"),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", httpServer.Addr, "backend", config.Backend)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Duration("shutdown-timeout"))
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// splitOrigins accepts comma separated values inside each flag value.
func splitOrigins(values []string) []string {
	var origins []string
	for _, v := range values {
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
	}
	return origins
}

func indexCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: %s index <kind> <id>", c.App.Name)
	}
	config, err := buildConfig(c)
	if err != nil {
		return err
	}
	svc, err := openService(c, config)
	if err != nil {
		return err
	}
	defer svc.Close()

	entry, err := svc.Indexer().IndexKey(c.Context, c.Args().Get(0), c.Args().Get(1))
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Indexed %s as entry %d (embedded: %t)\n", entry.SourceKey(), entry.Id, entry.HasEmbedding())
	return nil
}

func rebuildCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: %s rebuild <kind>", c.App.Name)
	}
	config, err := buildConfig(c)
	if err != nil {
		return err
	}
	config.Rebuild = &rebuild.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		PoolSize:       1,
	}
	if err := config.Rebuild.Validate(); err != nil {
		return err
	}

	svc, err := openService(c, config, marketsearch.WithRebuildProgress(c.App.ErrWriter))
	if err != nil {
		return err
	}
	defer svc.Close()

	var opts []rebuild.StartOption
	if c.Bool("purge-first") {
		opts = append(opts, rebuild.PurgeFirst())
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	kind := c.Args().First()
	fmt.Fprintf(c.App.ErrWriter, "Backend: %s\n", config.Backend)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", config.AI.EmbeddingModel)
	fmt.Fprintf(c.App.ErrWriter, "Kind: %s\n\n", kind)

	cp, err := svc.Rebuilds().Run(ctx, kind, opts...)
	if err != nil {
		if cp != nil && cp.State == core.JobCancelled {
			fmt.Fprintf(c.App.ErrWriter, "Rebuild interrupted; resume job %s to continue\n", cp.JobID)
		}
		return fmt.Errorf("rebuild failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Rebuilt %s: %d indexed, %d skipped\n", cp.SourceKind, cp.Indexed, cp.Skipped)
	return nil
}

func searchCommand(c *cli.Context) error {
	config, err := buildConfig(c)
	if err != nil {
		return err
	}
	svc, err := openService(c, config)
	if err != nil {
		return err
	}
	defer svc.Close()

	params, err := filterParams(c.StringSlice("filter"))
	if err != nil {
		return err
	}
	if kind := c.String("type"); kind != "" {
		params[search.KindParam] = kind
	}
	parsed := search.ParseFilters(params)

	resp, err := svc.Searcher().Search(c.Context, search.Request{
		Query:   strings.Join(c.Args().Slice(), " "),
		Kind:    parsed.Kind,
		Filters: parsed.Filters,
		Limit:   c.Int("limit"),
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	printHits(c.App.Writer, resp)
	return nil
}

// filterParams turns key[.op]=value pairs into metadata query parameters.
func filterParams(filters []string) (map[string]string, error) {
	params := make(map[string]string, len(filters))
	for _, f := range filters {
		key, value, ok := strings.Cut(f, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key=value", f)
		}
		params["metadata."+key] = value
	}
	return params, nil
}

func printHits(w io.Writer, resp *search.Response) {
	fmt.Fprintf(w, "Found %d hits (strategy: %s", len(resp.Hits), strategyName(resp.Strategy))
	if resp.Degraded {
		fmt.Fprint(w, ", degraded")
	}
	fmt.Fprintln(w, ")")
	for i, hit := range resp.Hits {
		e := hit.Entry
		distance := "-"
		if hit.Distance != nil {
			distance = strconv.FormatFloat(*hit.Distance, 'f', 3, 64)
		}
		fmt.Fprintf(w, "%d: '%s' %s (%d)[%s]\n", i, e.Title, e.SourceKey(), e.Id, distance)
	}
}

func strategyName(s core.Strategy) string {
	if s == core.StrategyNone {
		return "none"
	}
	return string(s)
}

func deleteEntryCommand(c *cli.Context) error {
	id, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid entry id %q", c.Args().First())
	}
	config, err := buildConfig(c)
	if err != nil {
		return err
	}
	svc, err := openService(c, config)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Repositories().Index.DeleteEntry(c.Context, core.ID(id)); err != nil {
		return fmt.Errorf("delete entry %d: %w", id, err)
	}
	fmt.Fprintf(c.App.Writer, "Deleted entry %d\n", id)
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
