package sqlstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/marketsearch/core"
	"gorm.io/datatypes"
)

// nullVector is a nullable embedding column.
// It is stored in pgvector text form ("[0.1,0.2]") so the same value works for
// a native vector column and for a plain text column.
type nullVector struct {
	Vector pgvector.Vector
	Valid  bool
}

func newNullVector(v []float32) nullVector {
	if v == nil {
		return nullVector{}
	}
	return nullVector{Vector: pgvector.NewVector(v), Valid: true}
}

// Scan implements sql.Scanner.
func (n *nullVector) Scan(src any) error {
	if src == nil {
		n.Vector, n.Valid = pgvector.Vector{}, false
		return nil
	}
	if err := n.Vector.Scan(src); err != nil {
		return fmt.Errorf("scan embedding: %w", err)
	}
	n.Valid = true
	return nil
}

// Value implements driver.Valuer.
func (n nullVector) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.Vector.Value()
}

// GormDataType implements schema.GormDataTypeInterface.
// The column DDL itself is issued by migrate.
func (nullVector) GormDataType() string {
	return "text"
}

func (n nullVector) slice() []float32 {
	if !n.Valid {
		return nil
	}
	return n.Vector.Slice()
}

// entryModel is the index_entries row.
// The embedding column is created separately because its type depends on
// whether pgvector is installed.
type entryModel struct {
	ID          uint64            `gorm:"primaryKey;autoIncrement"`
	SourceKind  string            `gorm:"size:64;not null;uniqueIndex:idx_index_entries_source,priority:1"`
	SourceID    string            `gorm:"size:255;not null;uniqueIndex:idx_index_entries_source,priority:2"`
	Title       string            `gorm:"size:255;not null"`
	Description string            `gorm:"type:text;not null;default:''"`
	Metadata    datatypes.JSONMap `gorm:"not null"`
	Embedding   nullVector        `gorm:"column:embedding;-:migration"`
	CreatedAt   time.Time         `gorm:"not null;index"`
	UpdatedAt   time.Time         `gorm:"not null"`
}

func (entryModel) TableName() string {
	return "index_entries"
}

func toEntryModel(e *core.IndexEntry) *entryModel {
	metadata := datatypes.JSONMap{}
	for k, v := range e.Metadata {
		metadata[k] = v
	}
	return &entryModel{
		ID:          uint64(e.Id),
		SourceKind:  e.SourceKind,
		SourceID:    e.SourceID,
		Title:       e.Title,
		Description: e.Description,
		Metadata:    metadata,
		Embedding:   newNullVector(e.Embedding),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func (m *entryModel) toEntry() *core.IndexEntry {
	metadata := make(map[string]any, len(m.Metadata))
	for k, v := range m.Metadata {
		metadata[k] = fromJSONNumber(v)
	}
	return &core.IndexEntry{
		Id:          core.ID(m.ID),
		SourceKind:  m.SourceKind,
		SourceID:    m.SourceID,
		Title:       m.Title,
		Description: m.Description,
		Metadata:    metadata,
		Embedding:   m.Embedding.slice(),
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

// fromJSONNumber turns the json.Number values produced by datatypes.JSONMap
// into float64, matching what encoding/json decodes into an any.
func fromJSONNumber(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, x := range t {
			t[k] = fromJSONNumber(x)
		}
		return t
	case []any:
		for i, x := range t {
			t[i] = fromJSONNumber(x)
		}
		return t
	}
	return v
}

// scoredModel is an entry row with its distance to the query vector.
type scoredModel struct {
	entryModel `gorm:"embedded"`
	Distance   float64 `gorm:"column:distance"`
}

type queryLogModel struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	QueryText    string    `gorm:"size:500;not null"`
	UserID       string    `gorm:"size:64"`
	SessionKey   string    `gorm:"size:64"`
	ResultsFound int       `gorm:"not null"`
	Strategy     string    `gorm:"size:16"`
	LatencyMs    float64   `gorm:"not null"`
	Timestamp    time.Time `gorm:"column:logged_at;not null;index"`
}

func (queryLogModel) TableName() string {
	return "query_logs"
}

func (m *queryLogModel) toQueryLog() *core.QueryLog {
	return &core.QueryLog{
		Id:           core.ID(m.ID),
		QueryText:    m.QueryText,
		UserID:       m.UserID,
		SessionKey:   m.SessionKey,
		ResultsFound: m.ResultsFound,
		Strategy:     core.Strategy(m.Strategy),
		LatencyMs:    m.LatencyMs,
		Timestamp:    m.Timestamp.UTC(),
	}
}

type checkpointModel struct {
	JobID      string    `gorm:"primaryKey;size:64"`
	SourceKind string    `gorm:"size:64;not null"`
	Cursor     string    `gorm:"size:255"`
	Indexed    int       `gorm:"not null"`
	Skipped    int       `gorm:"not null"`
	State      string    `gorm:"size:16;not null"`
	Error      string    `gorm:"type:text"`
	StartedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (checkpointModel) TableName() string {
	return "rebuild_checkpoints"
}

func toCheckpointModel(c *core.Checkpoint) *checkpointModel {
	return &checkpointModel{
		JobID:      c.JobID,
		SourceKind: c.SourceKind,
		Cursor:     c.Cursor,
		Indexed:    c.Indexed,
		Skipped:    c.Skipped,
		State:      string(c.State),
		Error:      c.Error,
		StartedAt:  c.StartedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func (m *checkpointModel) toCheckpoint() *core.Checkpoint {
	return &core.Checkpoint{
		JobID:      m.JobID,
		SourceKind: m.SourceKind,
		Cursor:     m.Cursor,
		Indexed:    m.Indexed,
		Skipped:    m.Skipped,
		State:      core.JobState(m.State),
		Error:      m.Error,
		StartedAt:  m.StartedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
}

type eventModel struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	Op         string    `gorm:"size:16;not null"`
	SourceKind string    `gorm:"size:64;not null"`
	SourceID   string    `gorm:"size:255;not null"`
	Attempts   int       `gorm:"not null;default:0"`
	LastError  string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"not null"`
	Payload    []byte
}

func (eventModel) TableName() string {
	return "index_outbox"
}

func (m *eventModel) toEvent() *core.Event {
	return &core.Event{
		Id:         core.ID(m.ID),
		Op:         core.EventOp(m.Op),
		SourceKind: m.SourceKind,
		SourceID:   m.SourceID,
		Attempts:   m.Attempts,
		LastError:  m.LastError,
		CreatedAt:  m.CreatedAt.UTC(),
		Payload:    m.Payload,
	}
}
