package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IndexRepository implements storage.IndexRepository on gorm.
// Kind predicates run in SQL. Text and metadata predicates run in Go;
// SQLite LOWER folds ASCII only.
type IndexRepository struct {
	db      *gorm.DB
	vectors bool
	now     func() time.Time
}

var _ storage.IndexRepository = (*IndexRepository)(nil)

// SupportsVectors reports whether the embedding column is a pgvector column.
func (r *IndexRepository) SupportsVectors() bool {
	return r.vectors
}

// Close is a no-op; the connection pool is closed by the owning Repositories.
func (r *IndexRepository) Close() error {
	return nil
}

// Upsert inserts or replaces the entry for (SourceKind, SourceID).
func (r *IndexRepository) Upsert(ctx context.Context, entry *core.IndexEntry) (*core.IndexEntry, error) {
	if err := core.ValidateEntry(entry, 0); err != nil {
		return nil, err
	}

	stored := *entry
	core.PrepareEntry(&stored)
	now := r.now().UTC()
	stored.CreatedAt, stored.UpdatedAt = now, now
	model := toEntryModel(&stored)
	model.ID = 0

	var result *core.IndexEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_kind"}, {Name: "source_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "description", "metadata", "embedding", "updated_at"}),
		}).Create(model).Error
		if err != nil {
			return err
		}
		var row entryModel
		if err := tx.Where("source_kind = ? AND source_id = ?", stored.SourceKind, stored.SourceID).Take(&row).Error; err != nil {
			return err
		}
		result = row.toEntry()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetEntry retrieves an entry by ID.
func (r *IndexRepository) GetEntry(ctx context.Context, id core.ID) (*core.IndexEntry, error) {
	var row entryModel
	if err := r.db.WithContext(ctx).Where("id = ?", uint64(id)).Take(&row).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return row.toEntry(), nil
}

// GetBySource retrieves the entry for a source entity.
func (r *IndexRepository) GetBySource(ctx context.Context, kind, sourceID string) (*core.IndexEntry, error) {
	var row entryModel
	err := r.db.WithContext(ctx).
		Where("source_kind = ? AND source_id = ?", core.NormalizeKind(kind), sourceID).
		Take(&row).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return row.toEntry(), nil
}

// DeleteBySource removes the entry for a source entity.
func (r *IndexRepository) DeleteBySource(ctx context.Context, kind, sourceID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("source_kind = ? AND source_id = ?", core.NormalizeKind(kind), sourceID).
		Delete(&entryModel{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteEntry removes an entry by ID.
func (r *IndexRepository) DeleteEntry(ctx context.Context, id core.ID) error {
	res := r.db.WithContext(ctx).Where("id = ?", uint64(id)).Delete(&entryModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteKind removes every entry of a kind.
func (r *IndexRepository) DeleteKind(ctx context.Context, kind string) (int, error) {
	res := r.db.WithContext(ctx).Where("source_kind = ?", core.NormalizeKind(kind)).Delete(&entryModel{})
	return int(res.RowsAffected), res.Error
}

// DeleteKindBefore removes entries of a kind last updated before cutoff.
func (r *IndexRepository) DeleteKindBefore(ctx context.Context, kind string, cutoff time.Time) (int, error) {
	res := r.db.WithContext(ctx).
		Where("source_kind = ? AND updated_at < ?", core.NormalizeKind(kind), cutoff.UTC()).
		Delete(&entryModel{})
	return int(res.RowsAffected), res.Error
}

// Scan returns entries matching the query, newest first.
func (r *IndexRepository) Scan(ctx context.Context, query storage.ScanQuery) ([]*core.IndexEntry, error) {
	q := r.db.WithContext(ctx).Model(&entryModel{})
	if query.Kind != "" {
		q = q.Where("source_kind = ?", core.NormalizeKind(query.Kind))
	}
	q = q.Order("created_at DESC").Order("id ASC")
	if query.Text == "" && len(query.Filters) == 0 && query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	results := []*core.IndexEntry{}
	err := r.scanRows(ctx, q, func(rows *sql.Rows) (bool, error) {
		var row entryModel
		if err := r.db.ScanRows(rows, &row); err != nil {
			return false, err
		}
		entry := row.toEntry()
		if !storage.MatchesScan(entry, query) {
			return true, nil
		}
		results = append(results, entry)
		return query.Limit <= 0 || len(results) < query.Limit, nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Nearest ranks embedded entries with the pgvector cosine distance operator.
func (r *IndexRepository) Nearest(ctx context.Context, query storage.VectorQuery) ([]*core.Hit, error) {
	if !r.vectors {
		return nil, storage.ErrBackendUnsupported
	}
	if len(query.Vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}

	vec := pgvector.NewVector(query.Vector)
	q := r.db.WithContext(ctx).Model(&entryModel{}).
		Select("*, embedding <=> ?::vector AS distance", vec).
		Where("embedding IS NOT NULL AND vector_dims(embedding) = ?", len(query.Vector))
	if query.Kind != "" {
		q = q.Where("source_kind = ?", core.NormalizeKind(query.Kind))
	}
	if query.MaxDistance > 0 {
		q = q.Where("embedding <=> ?::vector <= ?", vec, query.MaxDistance)
	}
	q = q.Order("distance ASC").Order("id ASC")
	if len(query.Filters) == 0 && query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	hits := []*core.Hit{}
	err := r.scanRows(ctx, q, func(rows *sql.Rows) (bool, error) {
		var row scoredModel
		if err := r.db.ScanRows(rows, &row); err != nil {
			return false, err
		}
		entry := row.toEntry()
		if !storage.MatchAll(query.Filters, entry.Metadata) {
			return true, nil
		}
		distance := row.Distance
		hits = append(hits, &core.Hit{Entry: entry, Distance: &distance})
		return query.Limit <= 0 || len(hits) < query.Limit, nil
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// Sample returns up to n entries chosen at random.
func (r *IndexRepository) Sample(ctx context.Context, kind string, n int) ([]*core.IndexEntry, error) {
	results := []*core.IndexEntry{}
	if n <= 0 {
		return results, nil
	}

	q := r.db.WithContext(ctx).Model(&entryModel{})
	if kind != "" {
		q = q.Where("source_kind = ?", core.NormalizeKind(kind))
	}
	var rows []entryModel
	if err := q.Order("RANDOM()").Limit(n).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		results = append(results, rows[i].toEntry())
	}
	return results, nil
}

// Count returns the number of entries of a kind, or all entries when kind is empty.
func (r *IndexRepository) Count(ctx context.Context, kind string) (int, error) {
	q := r.db.WithContext(ctx).Model(&entryModel{})
	if kind != "" {
		q = q.Where("source_kind = ?", core.NormalizeKind(kind))
	}
	var count int64
	err := q.Count(&count).Error
	return int(count), err
}

// scanRows streams the rows of q into fn until fn returns false.
func (r *IndexRepository) scanRows(ctx context.Context, q *gorm.DB, fn func(*sql.Rows) (bool, error)) error {
	rows, err := q.Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		more, err := fn(rows)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return rows.Err()
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}
