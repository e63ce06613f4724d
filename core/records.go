package core

import (
	"encoding/json"
	"fmt"
	"time"
)

//go:generate go run ../cmd/musgen

// EntryRecord is the stored form of an IndexEntry.
// Metadata values are free-form, so they travel as JSON inside the record.
type EntryRecord struct {
	Id          ID
	SourceKind  string
	SourceID    string
	Title       string
	Description string
	Metadata    []byte
	Embedding   []float32
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewEntryRecord converts an entry to its stored form.
func NewEntryRecord(e *IndexEntry) (EntryRecord, error) {
	var metadata []byte
	if len(e.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(e.Metadata); err != nil {
			return EntryRecord{}, fmt.Errorf("encode metadata: %w", err)
		}
	}
	return EntryRecord{
		Id:          e.Id,
		SourceKind:  e.SourceKind,
		SourceID:    e.SourceID,
		Title:       e.Title,
		Description: e.Description,
		Metadata:    metadata,
		Embedding:   e.Embedding,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}, nil
}

// Entry converts the record back to an IndexEntry.
func (r EntryRecord) Entry() (*IndexEntry, error) {
	metadata := map[string]any{}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	var embedding []float32
	if len(r.Embedding) > 0 {
		embedding = r.Embedding
	}
	return &IndexEntry{
		Id:          r.Id,
		SourceKind:  r.SourceKind,
		SourceID:    r.SourceID,
		Title:       r.Title,
		Description: r.Description,
		Metadata:    metadata,
		Embedding:   embedding,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}, nil
}

// EncodeDocument returns the JSON form of a document for an event payload.
func EncodeDocument(doc *Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// DecodeDocument parses an event payload.
func DecodeDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}
