package storage

import (
	"context"
	"time"

	"github.com/poiesic/marketsearch/core"
)

// ScanQuery selects index entries without a query vector.
type ScanQuery struct {
	// Kind restricts results to one source kind. Empty matches every kind.
	Kind string
	// Text is matched case-insensitively as a substring of title or description.
	// Empty matches everything.
	Text string
	// Filters restrict results by metadata. All filters must match.
	Filters []Filter
	// Limit caps the number of results. Zero or negative means no limit.
	Limit int
}

// VectorQuery selects the entries nearest to a query vector.
type VectorQuery struct {
	Vector  []float32
	Kind    string
	Filters []Filter
	// MaxDistance excludes entries farther than this cosine distance.
	// Zero or negative disables the threshold.
	MaxDistance float64
	Limit       int
}

// IndexRepository stores IndexEntry records.
// Implementations must be thread-safe and support concurrent access.
type IndexRepository interface {
	// Upsert inserts or replaces the entry for (SourceKind, SourceID).
	// CreatedAt is preserved for an existing entry and UpdatedAt is refreshed.
	// The stored entry, with its ID assigned, is returned.
	Upsert(ctx context.Context, entry *core.IndexEntry) (*core.IndexEntry, error)

	// GetEntry retrieves an entry by ID.
	// Returns ErrNotFound if the entry doesn't exist.
	GetEntry(ctx context.Context, id core.ID) (*core.IndexEntry, error)

	// GetBySource retrieves the entry for a source entity.
	// Returns ErrNotFound if the entity is not indexed.
	GetBySource(ctx context.Context, kind, sourceID string) (*core.IndexEntry, error)

	// DeleteBySource removes the entry for a source entity.
	// Reports whether an entry existed. Deleting an absent entry is not an error.
	DeleteBySource(ctx context.Context, kind, sourceID string) (bool, error)

	// DeleteEntry removes an entry by ID.
	// Returns ErrNotFound if the entry doesn't exist.
	DeleteEntry(ctx context.Context, id core.ID) error

	// DeleteKind removes every entry of a kind and returns how many were removed.
	DeleteKind(ctx context.Context, kind string) (int, error)

	// DeleteKindBefore removes entries of a kind whose UpdatedAt is before cutoff.
	DeleteKindBefore(ctx context.Context, kind string, cutoff time.Time) (int, error)

	// Scan returns entries matching the query ordered by CreatedAt descending,
	// ties broken by ascending ID.
	Scan(ctx context.Context, query ScanQuery) ([]*core.IndexEntry, error)

	// Nearest returns entries with embeddings ordered by ascending cosine distance,
	// ties broken by ascending ID. Entries without embeddings are never returned.
	// Returns ErrBackendUnsupported when SupportsVectors is false.
	Nearest(ctx context.Context, query VectorQuery) ([]*core.Hit, error)

	// Sample returns up to n entries chosen at random, optionally of one kind.
	Sample(ctx context.Context, kind string, n int) ([]*core.IndexEntry, error)

	// Count returns the number of entries of a kind, or of all kinds when kind is empty.
	Count(ctx context.Context, kind string) (int, error)

	// SupportsVectors reports whether Nearest is available.
	// The answer is fixed for the lifetime of the repository.
	SupportsVectors() bool

	// Close releases resources held by the repository.
	Close() error
}

// QueryLogRepository records executed searches.
type QueryLogRepository interface {
	// AddQueryLog persists a query log, assigning its ID.
	AddQueryLog(ctx context.Context, log *core.QueryLog) error

	// RecentQueryLogs returns up to limit logs, most recent first.
	RecentQueryLogs(ctx context.Context, limit int) ([]*core.QueryLog, error)
}

// CheckpointRepository manages rebuild job checkpoints.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint keyed by JobID.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a job.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, jobID string) (*core.Checkpoint, error)

	// ListCheckpoints returns every stored checkpoint.
	ListCheckpoints(ctx context.Context) ([]*core.Checkpoint, error)

	// DeleteCheckpoint removes a checkpoint. Deleting an absent checkpoint is not an error.
	DeleteCheckpoint(ctx context.Context, jobID string) error
}

// OutboxRepository persists change events awaiting asynchronous indexing.
type OutboxRepository interface {
	// Enqueue persists an event, assigning its ID and CreatedAt.
	Enqueue(ctx context.Context, event *core.Event) (*core.Event, error)

	// Pending returns up to limit unacknowledged events, oldest first.
	Pending(ctx context.Context, limit int) ([]*core.Event, error)

	// Ack removes a processed event. Acknowledging an absent event is not an error.
	Ack(ctx context.Context, id core.ID) error

	// Retry increments an event's attempt count and records the last error.
	Retry(ctx context.Context, id core.ID, lastErr string) error
}

// Repositories bundles the repositories of one storage backend.
type Repositories struct {
	Index       IndexRepository
	QueryLogs   QueryLogRepository
	Checkpoints CheckpointRepository
	Outbox      OutboxRepository

	closer func() error
}

// NewRepositories bundles repositories with a function that closes the
// underlying backend.
func NewRepositories(index IndexRepository, logs QueryLogRepository, checkpoints CheckpointRepository, outbox OutboxRepository, closer func() error) *Repositories {
	return &Repositories{
		Index:       index,
		QueryLogs:   logs,
		Checkpoints: checkpoints,
		Outbox:      outbox,
		closer:      closer,
	}
}

// Close closes the index repository and then the backend.
func (r *Repositories) Close() error {
	if err := r.Index.Close(); err != nil {
		return err
	}
	if r.closer != nil {
		return r.closer()
	}
	return nil
}

// Detach drops the backend closer so Close leaves the backend open.
// Used when the caller owns the underlying connection.
func (r *Repositories) Detach() {
	r.closer = nil
}
