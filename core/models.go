package core

import (
	"strings"
	"time"
	"unicode/utf8"
)

// ID is a unique identifier for stored records.
// It is assigned by the storage backend (sequence or autoincrement).
type ID uint64

const (
	// MaxTitleLength is the maximum number of runes kept in an entry title.
	MaxTitleLength = 255

	// MaxQueryTextLength is the maximum number of runes kept in a query log.
	MaxQueryTextLength = 500
)

// Strategy identifies which ranking path produced a result set.
type Strategy string

const (
	// StrategyNone is reported when a query short-circuits to an empty result.
	StrategyNone Strategy = ""
	// StrategyVector ranks by ascending cosine distance.
	StrategyVector Strategy = "vector"
	// StrategyKeyword ranks case-insensitive substring matches newest first.
	StrategyKeyword Strategy = "keyword"
	// StrategyFilter returns filtered entries newest first without a query.
	StrategyFilter Strategy = "filter"
	// StrategySample is a random selection used when nothing matched.
	StrategySample Strategy = "sample"
)

// IndexEntry is the denormalized, searchable projection of one source entity.
// Exactly one entry exists per (SourceKind, SourceID).
type IndexEntry struct {
	Id          ID
	SourceKind  string
	SourceID    string
	Title       string
	Description string
	Metadata    map[string]any
	Embedding   []float32 // nil when no embedding could be produced
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasEmbedding reports whether the entry carries a vector.
func (e *IndexEntry) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// SourceKey returns the entry's (kind, id) pair.
func (e *IndexEntry) SourceKey() SourceKey {
	return SourceKey{Kind: e.SourceKind, ID: e.SourceID}
}

// SourceKey identifies a source entity independently of its index entry.
type SourceKey struct {
	Kind string
	ID   string
}

// String renders the key as "kind:id".
func (k SourceKey) String() string {
	return k.Kind + ":" + k.ID
}

// Document is what a source entity hands to the indexer.
type Document struct {
	Title       string
	Description string
	// EmbeddingText is the text sent to the embedding provider.
	// When empty, Title and Description joined by a space are used.
	EmbeddingText string
	Metadata      map[string]any
}

// TextForEmbedding returns the text that should be embedded for the document.
func (d *Document) TextForEmbedding() string {
	if strings.TrimSpace(d.EmbeddingText) != "" {
		return d.EmbeddingText
	}
	return strings.TrimSpace(d.Title + " " + d.Description)
}

// Hit is a single ranked search result.
type Hit struct {
	Entry *IndexEntry
	// Distance is the cosine distance to the query vector.
	// Only set for results produced by the vector path.
	Distance *float64
}

// QueryLog records one executed search for analytics.
type QueryLog struct {
	Id           ID
	QueryText    string
	UserID       string
	SessionKey   string
	ResultsFound int
	Strategy     Strategy
	LatencyMs    float64
	Timestamp    time.Time
}

// JobState is the lifecycle state of a rebuild job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether no further progress will be made in this state.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Checkpoint tracks the progress of a rebuild job so it can be resumed.
type Checkpoint struct {
	JobID      string
	SourceKind string
	// Cursor is the last source id that was processed.
	Cursor     string
	Indexed    int
	Skipped    int
	State      JobState
	Error      string
	StartedAt  time.Time
	UpdatedAt  time.Time
}

// EventOp is the operation an outbox event asks for.
type EventOp string

const (
	EventIndex   EventOp = "index"
	EventDeindex EventOp = "deindex"
)

// Event is a persisted change notification awaiting asynchronous indexing.
type Event struct {
	Id         ID
	Op         EventOp
	SourceKind string
	SourceID   string
	Attempts   int
	LastError  string
	CreatedAt  time.Time
	// Payload is the JSON-encoded Document captured when an index event was
	// enqueued. It is used when no Source is registered for the kind.
	Payload []byte
}

// NormalizeKind lower-cases and trims a source kind tag.
func NormalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
