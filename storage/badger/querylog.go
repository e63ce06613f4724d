package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/storage"
)

// QueryLogRepository implements storage.QueryLogRepository for BadgerDB.
type QueryLogRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.QueryLogRepository = (*QueryLogRepository)(nil)

// NewQueryLogRepository creates a new QueryLogRepository.
func NewQueryLogRepository(backend *Backend) (*QueryLogRepository, error) {
	idSeq, err := backend.GetSequence(queryLogIDSeq)
	if err != nil {
		return nil, err
	}
	return &QueryLogRepository{backend: backend, idSeq: idSeq}, nil
}

// Close releases the ID sequence.
func (r *QueryLogRepository) Close() error {
	return r.idSeq.Release()
}

// AddQueryLog persists a query log.
func (r *QueryLogRepository) AddQueryLog(ctx context.Context, log *core.QueryLog) error {
	id, err := nextID(r.idSeq)
	if err != nil {
		return err
	}
	log.Id = core.ID(id)
	log.QueryText = core.Truncate(log.QueryText, core.MaxQueryTextLength)
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}

	value := storage.MarshalQueryLog(log)
	return r.backend.Update(func(tx *badger.Txn) error {
		return tx.Set(makeQueryLogKey(log.Timestamp, log.Id), value)
	})
}

// RecentQueryLogs returns up to limit query logs, most recent first.
func (r *QueryLogRepository) RecentQueryLogs(ctx context.Context, limit int) ([]*core.QueryLog, error) {
	var logs []*core.QueryLog
	err := r.backend.View(func(tx *badger.Txn) error {
		return forEachValue(tx, []byte(queryLogPrefix), true, func(val []byte) (bool, error) {
			log, err := storage.UnmarshalQueryLog(val)
			if err != nil {
				return false, err
			}
			logs = append(logs, log)
			return limit <= 0 || len(logs) < limit, nil
		})
	})
	return logs, err
}
