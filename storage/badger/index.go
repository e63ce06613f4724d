package badger

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/storage"
)

// IndexRepository implements storage.IndexRepository for BadgerDB.
// Vector queries are answered by scanning every embedded entry.
type IndexRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
	now     func() time.Time
}

var _ storage.IndexRepository = (*IndexRepository)(nil)

// IndexOption configures an IndexRepository.
type IndexOption func(*IndexRepository)

// WithClock overrides the time source used for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) IndexOption {
	return func(r *IndexRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewIndexRepository creates a new IndexRepository.
func NewIndexRepository(backend *Backend, opts ...IndexOption) (*IndexRepository, error) {
	idSeq, err := backend.GetSequence(entryIDSeq)
	if err != nil {
		return nil, err
	}

	r := &IndexRepository{
		backend: backend,
		idSeq:   idSeq,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Close releases the ID sequence.
func (r *IndexRepository) Close() error {
	return r.idSeq.Release()
}

// SupportsVectors is always true: ranking is computed in process.
func (r *IndexRepository) SupportsVectors() bool {
	return true
}

// Upsert inserts or replaces the entry for (SourceKind, SourceID).
func (r *IndexRepository) Upsert(ctx context.Context, entry *core.IndexEntry) (*core.IndexEntry, error) {
	if err := core.ValidateEntry(entry, 0); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var stored core.IndexEntry
	err := r.backend.Update(func(tx *badger.Txn) error {
		stored = *entry
		core.PrepareEntry(&stored)
		now := r.now().UTC()

		existing, err := getBySource(tx, stored.SourceKind, stored.SourceID)
		switch {
		case err == nil:
			stored.Id = existing.Id
			stored.CreatedAt = existing.CreatedAt
		case errors.Is(err, storage.ErrNotFound):
			id, err := nextID(r.idSeq)
			if err != nil {
				return err
			}
			stored.Id = core.ID(id)
			stored.CreatedAt = now
			if err := tx.Set(makeSourceKey(stored.SourceKind, stored.SourceID), storage.MarshalID(stored.Id)); err != nil {
				return err
			}
			if err := tx.Set(makeKindKey(stored.SourceKind, stored.Id), []byte{}); err != nil {
				return err
			}
		default:
			return err
		}
		stored.UpdatedAt = now

		value, err := storage.MarshalEntry(&stored)
		if err != nil {
			return err
		}
		return tx.Set(makeEntryKey(stored.Id), value)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetEntry retrieves an entry by ID.
func (r *IndexRepository) GetEntry(ctx context.Context, id core.ID) (*core.IndexEntry, error) {
	var entry *core.IndexEntry
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		entry, err = getEntry(tx, id)
		return err
	})
	return entry, err
}

// GetBySource retrieves the entry for a source entity.
func (r *IndexRepository) GetBySource(ctx context.Context, kind, sourceID string) (*core.IndexEntry, error) {
	var entry *core.IndexEntry
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		entry, err = getBySource(tx, core.NormalizeKind(kind), sourceID)
		return err
	})
	return entry, err
}

// DeleteBySource removes the entry for a source entity.
func (r *IndexRepository) DeleteBySource(ctx context.Context, kind, sourceID string) (bool, error) {
	deleted := false
	err := r.backend.Update(func(tx *badger.Txn) error {
		deleted = false
		entry, err := getBySource(tx, core.NormalizeKind(kind), sourceID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		deleted = true
		return deleteEntry(tx, entry)
	})
	return deleted, err
}

// DeleteEntry removes an entry by ID.
func (r *IndexRepository) DeleteEntry(ctx context.Context, id core.ID) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		entry, err := getEntry(tx, id)
		if err != nil {
			return err
		}
		return deleteEntry(tx, entry)
	})
}

// DeleteKind removes every entry of a kind.
func (r *IndexRepository) DeleteKind(ctx context.Context, kind string) (int, error) {
	return r.deleteKindWhere(ctx, core.NormalizeKind(kind), func(*core.IndexEntry) bool { return true })
}

// DeleteKindBefore removes entries of a kind last updated before cutoff.
func (r *IndexRepository) DeleteKindBefore(ctx context.Context, kind string, cutoff time.Time) (int, error) {
	return r.deleteKindWhere(ctx, core.NormalizeKind(kind), func(e *core.IndexEntry) bool {
		return e.UpdatedAt.Before(cutoff)
	})
}

// deleteKindWhere deletes matching entries in batches so a large kind never
// exceeds the transaction size limit. Each entry is re-checked inside the
// deleting transaction so concurrent upserts are never lost.
func (r *IndexRepository) deleteKindWhere(ctx context.Context, kind string, match func(*core.IndexEntry) bool) (int, error) {
	var ids []core.ID
	err := r.backend.View(func(tx *badger.Txn) error {
		return forEachKey(tx, makePartialKindKey(kind), false, func(key []byte) (bool, error) {
			ids = append(ids, idFromKindKey(key))
			return true, nil
		})
	})
	if err != nil {
		return 0, err
	}

	total := 0
	for start := 0; start < len(ids); start += deleteBatchSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch := ids[start:min(start+deleteBatchSize, len(ids))]
		removed := 0
		err := r.backend.Update(func(tx *badger.Txn) error {
			removed = 0
			for _, id := range batch {
				entry, err := getEntry(tx, id)
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				if entry.SourceKind != kind || !match(entry) {
					continue
				}
				if err := deleteEntry(tx, entry); err != nil {
					return err
				}
				removed++
			}
			return nil
		})
		if err != nil {
			return total, err
		}
		total += removed
	}
	return total, nil
}

// Scan returns entries matching the query, newest first.
func (r *IndexRepository) Scan(ctx context.Context, query storage.ScanQuery) ([]*core.IndexEntry, error) {
	var results []*core.IndexEntry
	err := r.forEachEntry(ctx, query.Kind, func(entry *core.IndexEntry) {
		if storage.MatchesScan(entry, query) {
			results = append(results, entry)
		}
	})
	if err != nil {
		return nil, err
	}
	storage.SortNewestFirst(results)
	return storage.LimitEntries(results, query.Limit), nil
}

// Nearest ranks embedded entries by cosine distance to the query vector.
func (r *IndexRepository) Nearest(ctx context.Context, query storage.VectorQuery) ([]*core.Hit, error) {
	if len(query.Vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}

	var hits []*core.Hit
	err := r.forEachEntry(ctx, query.Kind, func(entry *core.IndexEntry) {
		if len(entry.Embedding) != len(query.Vector) {
			return
		}
		if !storage.MatchAll(query.Filters, entry.Metadata) {
			return
		}
		distance := core.CosineDistance(query.Vector, entry.Embedding)
		if query.MaxDistance > 0 && distance > query.MaxDistance {
			return
		}
		hits = append(hits, &core.Hit{Entry: entry, Distance: &distance})
	})
	if err != nil {
		return nil, err
	}
	storage.SortByDistance(hits)
	return storage.LimitHits(hits, query.Limit), nil
}

// Sample returns up to n entries chosen at random.
func (r *IndexRepository) Sample(ctx context.Context, kind string, n int) ([]*core.IndexEntry, error) {
	if n <= 0 {
		return []*core.IndexEntry{}, nil
	}

	var results []*core.IndexEntry
	err := r.backend.View(func(tx *badger.Txn) error {
		ids, err := entryIDs(tx, core.NormalizeKind(kind))
		if err != nil {
			return err
		}
		rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		if len(ids) > n {
			ids = ids[:n]
		}
		for _, id := range ids {
			entry, err := getEntry(tx, id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			results = append(results, entry)
		}
		return nil
	})
	if results == nil {
		results = []*core.IndexEntry{}
	}
	return results, err
}

// Count returns the number of entries of a kind, or all entries when kind is empty.
func (r *IndexRepository) Count(ctx context.Context, kind string) (int, error) {
	count := 0
	err := r.backend.View(func(tx *badger.Txn) error {
		ids, err := entryIDs(tx, core.NormalizeKind(kind))
		count = len(ids)
		return err
	})
	return count, err
}

// forEachEntry visits every entry of kind (or all entries), checking ctx
// between entries.
func (r *IndexRepository) forEachEntry(ctx context.Context, kind string, fn func(*core.IndexEntry)) error {
	kind = core.NormalizeKind(kind)
	return r.backend.View(func(tx *badger.Txn) error {
		if kind == "" {
			return forEachValue(tx, []byte(entryPrefix), false, func(val []byte) (bool, error) {
				if err := ctx.Err(); err != nil {
					return false, err
				}
				entry, err := storage.UnmarshalEntry(val)
				if err != nil {
					return false, err
				}
				fn(entry)
				return true, nil
			})
		}

		ids, err := entryIDs(tx, kind)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			entry, err := getEntry(tx, id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if entry.SourceKind == kind {
				fn(entry)
			}
		}
		return nil
	})
}

func entryIDs(tx *badger.Txn, kind string) ([]core.ID, error) {
	var ids []core.ID
	if kind == "" {
		err := forEachKey(tx, []byte(entryPrefix), false, func(key []byte) (bool, error) {
			ids = append(ids, idFromEntryKey(key))
			return true, nil
		})
		return ids, err
	}
	err := forEachKey(tx, makePartialKindKey(kind), false, func(key []byte) (bool, error) {
		ids = append(ids, idFromKindKey(key))
		return true, nil
	})
	return ids, err
}

func getEntry(tx *badger.Txn, id core.ID) (*core.IndexEntry, error) {
	item, err := tx.Get(makeEntryKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	var entry *core.IndexEntry
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		entry, unmarshalErr = storage.UnmarshalEntry(val)
		return unmarshalErr
	})
	return entry, err
}

func getBySource(tx *badger.Txn, kind, sourceID string) (*core.IndexEntry, error) {
	item, err := tx.Get(makeSourceKey(kind, sourceID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	var id core.ID
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		id, unmarshalErr = storage.UnmarshalID(val)
		return unmarshalErr
	})
	if err != nil {
		return nil, err
	}
	return getEntry(tx, id)
}

func deleteEntry(tx *badger.Txn, entry *core.IndexEntry) error {
	if err := tx.Delete(makeEntryKey(entry.Id)); err != nil {
		return err
	}
	if err := tx.Delete(makeSourceKey(entry.SourceKind, entry.SourceID)); err != nil {
		return err
	}
	return tx.Delete(makeKindKey(entry.SourceKind, entry.Id))
}
