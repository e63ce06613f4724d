package marketsearch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/poiesic/marketsearch/ai"
	"github.com/poiesic/marketsearch/rebuild"
	"github.com/poiesic/marketsearch/search"
)

// Backend selects the index store.
type Backend string

const (
	// BackendBadger stores the index in an embedded BadgerDB directory.
	BackendBadger Backend = "badger"
	// BackendSQLite stores the index and listings in SQLite. Keyword search only.
	BackendSQLite Backend = "sqlite"
	// BackendPostgres stores the index and listings in PostgreSQL, ranking
	// with pgvector when the extension is installed.
	BackendPostgres Backend = "postgres"
)

var ErrUnknownBackend = errors.New("unknown backend")

// ParseBackend maps a configuration value to a Backend.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case BackendBadger, BackendSQLite, BackendPostgres:
		return b, nil
	case "postgresql", "pgvector":
		return BackendPostgres, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}

// Config selects the backend and configures every component.
type Config struct {
	Backend Backend

	// Path is the BadgerDB directory. Empty opens an in-memory database.
	Path string

	// DSN is the SQL connection string for the sqlite and postgres backends.
	DSN string

	AI      *ai.Config
	Search  search.Config
	Rebuild *rebuild.Config

	// AsyncHooks queues index changes in the outbox and applies them in the
	// background instead of within the writing request.
	AsyncHooks bool
}

// DefaultConfig returns an in-memory badger configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendBadger,
		AI:      ai.DefaultConfig(),
		Search:  search.DefaultConfig(),
		Rebuild: rebuild.DefaultConfig(),
	}
}

// Validate fills unset sections with defaults and checks the rest.
func (c *Config) Validate() error {
	if c.Backend == "" {
		c.Backend = BackendBadger
	}
	if _, err := ParseBackend(string(c.Backend)); err != nil {
		return err
	}
	if c.Backend != BackendBadger && c.DSN == "" {
		return fmt.Errorf("%s backend requires a DSN", c.Backend)
	}
	if c.AI == nil {
		c.AI = ai.DefaultConfig()
	}
	c.AI.Normalize()
	if c.Search == (search.Config{}) {
		c.Search = search.DefaultConfig()
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	if c.Rebuild == nil {
		c.Rebuild = rebuild.DefaultConfig()
	}
	return c.Rebuild.Validate()
}
