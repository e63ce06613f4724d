package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/marketsearch/storage"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect names a supported SQL database.
type Dialect string

const (
	// DialectSQLite stores embeddings as text and has no vector capability.
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres ranks with pgvector when the extension is available.
	DialectPostgres Dialect = "postgres"
)

// ParseDialect maps a configuration value to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch Dialect(name) {
	case DialectSQLite, DialectPostgres:
		return Dialect(name), nil
	case "postgresql", "pgvector":
		return DialectPostgres, nil
	case "sqlite3":
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("%w: %q", storage.ErrUnknownDialect, name)
}

// Option configures an SQL store.
type Option func(*options)

type options struct {
	logger *slog.Logger
	now    func() time.Time
}

// WithLogger sets the logger used for SQL logging.
// If nil, uses slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
	}
}

// WithClock overrides the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Open connects to the database, migrates the schema and returns its repositories.
// Closing the returned Repositories closes the connection pool.
func Open(ctx context.Context, dialect Dialect, dsn string, opts ...Option) (*storage.Repositories, error) {
	o := applyOptions(opts)
	db, err := connect(dialect, dsn, o.logger)
	if err != nil {
		return nil, err
	}

	repos, err := openRepositories(ctx, db, dialect, o)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return nil, err
	}
	return repos, nil
}

// Connect opens a gorm connection configured the way Open configures its own.
// Use it with OpenDB when other tables share the database.
func Connect(dialect Dialect, dsn string, opts ...Option) (*gorm.DB, error) {
	return connect(dialect, dsn, applyOptions(opts).logger)
}

func connect(dialect Dialect, dsn string, logger *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dialect {
	case DialectSQLite:
		dialector = sqlite.Open(dsn)
	case DialectPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownDialect, dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   newGormLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if dialect == DialectSQLite {
		// A single connection keeps in-memory databases shared and avoids
		// SQLITE_BUSY between writers.
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// OpenDB returns repositories over an existing gorm connection.
// The caller keeps ownership of db; closing the repositories does not close it.
func OpenDB(ctx context.Context, db *gorm.DB, opts ...Option) (*storage.Repositories, error) {
	dialect, err := ParseDialect(db.Dialector.Name())
	if err != nil {
		return nil, err
	}
	repos, err := openRepositories(ctx, db, dialect, applyOptions(opts))
	if err != nil {
		return nil, err
	}
	repos.Detach()
	return repos, nil
}

func applyOptions(opts []Option) *options {
	o := &options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "sqlstore")
	return o
}

func openRepositories(ctx context.Context, db *gorm.DB, dialect Dialect, o *options) (*storage.Repositories, error) {
	vectors, err := migrate(ctx, db, dialect, o.logger)
	if err != nil {
		return nil, err
	}
	o.logger.Info("sql store ready", "dialect", dialect, "vectors", vectors)

	index := &IndexRepository{db: db, vectors: vectors, now: o.now}
	closer := func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return storage.NewRepositories(
		index,
		&QueryLogRepository{db: db},
		&CheckpointRepository{db: db},
		&OutboxRepository{db: db},
		closer,
	), nil
}

// migrate creates the tables and the embedding column and reports whether
// the embedding column is a native pgvector column.
func migrate(ctx context.Context, db *gorm.DB, dialect Dialect, logger *slog.Logger) (bool, error) {
	tx := db.WithContext(ctx)
	if err := tx.AutoMigrate(&entryModel{}, &queryLogModel{}, &checkpointModel{}, &eventModel{}); err != nil {
		return false, fmt.Errorf("migrate schema: %w", err)
	}

	vectorType := "text"
	if dialect == DialectPostgres && ensureVectorExtension(tx, logger) {
		vectorType = "vector"
	}

	if !tx.Migrator().HasColumn(&entryModel{}, "embedding") {
		if err := tx.Exec("ALTER TABLE index_entries ADD COLUMN embedding " + vectorType).Error; err != nil {
			return false, fmt.Errorf("add embedding column: %w", err)
		}
		return vectorType == "vector", nil
	}
	if dialect != DialectPostgres {
		return false, nil
	}

	var udt string
	err := tx.Raw(`SELECT udt_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = 'index_entries' AND column_name = 'embedding'`).
		Scan(&udt).Error
	if err != nil {
		return false, fmt.Errorf("inspect embedding column: %w", err)
	}
	if udt == "vector" {
		return true, nil
	}
	if vectorType != "vector" {
		return false, nil
	}

	logger.Info("converting embedding column to vector")
	if err := tx.Exec("ALTER TABLE index_entries ALTER COLUMN embedding TYPE vector USING embedding::vector").Error; err != nil {
		return false, fmt.Errorf("convert embedding column: %w", err)
	}
	return true, nil
}

// ensureVectorExtension installs pgvector if possible and reports whether it is present.
func ensureVectorExtension(db *gorm.DB, logger *slog.Logger) bool {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		logger.Warn("pgvector extension unavailable, vector search disabled", "error", err)
		return false
	}
	var count int64
	if err := db.Raw("SELECT COUNT(*) FROM pg_extension WHERE extname = 'vector'").Scan(&count).Error; err != nil {
		logger.Warn("failed to inspect extensions", "error", err)
		return false
	}
	return count > 0
}
