package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/storage"
)

// OutboxRepository implements storage.OutboxRepository for BadgerDB.
type OutboxRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.OutboxRepository = (*OutboxRepository)(nil)

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(backend *Backend) (*OutboxRepository, error) {
	idSeq, err := backend.GetSequence(outboxIDSeq)
	if err != nil {
		return nil, err
	}
	return &OutboxRepository{backend: backend, idSeq: idSeq}, nil
}

// Close releases the ID sequence.
func (r *OutboxRepository) Close() error {
	return r.idSeq.Release()
}

// Enqueue persists an event.
func (r *OutboxRepository) Enqueue(ctx context.Context, event *core.Event) (*core.Event, error) {
	id, err := nextID(r.idSeq)
	if err != nil {
		return nil, err
	}
	stored := *event
	stored.Id = core.ID(id)
	stored.SourceKind = core.NormalizeKind(stored.SourceKind)
	stored.CreatedAt = time.Now().UTC()

	value := storage.MarshalEvent(&stored)
	err = r.backend.Update(func(tx *badger.Txn) error {
		return tx.Set(makeOutboxKey(stored.Id), value)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// Pending returns up to limit events, oldest first.
func (r *OutboxRepository) Pending(ctx context.Context, limit int) ([]*core.Event, error) {
	var events []*core.Event
	err := r.backend.View(func(tx *badger.Txn) error {
		return forEachValue(tx, []byte(outboxPrefix), false, func(val []byte) (bool, error) {
			event, err := storage.UnmarshalEvent(val)
			if err != nil {
				return false, err
			}
			events = append(events, event)
			return limit <= 0 || len(events) < limit, nil
		})
	})
	return events, err
}

// Ack removes a processed event.
func (r *OutboxRepository) Ack(ctx context.Context, id core.ID) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		return tx.Delete(makeOutboxKey(id))
	})
}

// Retry records a failed attempt for an event.
func (r *OutboxRepository) Retry(ctx context.Context, id core.ID, lastErr string) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		key := makeOutboxKey(id)
		item, err := tx.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		var event *core.Event
		err = item.Value(func(val []byte) error {
			var unmarshalErr error
			event, unmarshalErr = storage.UnmarshalEvent(val)
			return unmarshalErr
		})
		if err != nil {
			return err
		}
		event.Attempts++
		event.LastError = lastErr
		return tx.Set(key, storage.MarshalEvent(event))
	})
}
