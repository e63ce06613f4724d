package sqlstore

import (
	"context"
	"time"

	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryLogRepository implements storage.QueryLogRepository on gorm.
type QueryLogRepository struct {
	db *gorm.DB
}

var _ storage.QueryLogRepository = (*QueryLogRepository)(nil)

// AddQueryLog persists a query log.
func (r *QueryLogRepository) AddQueryLog(ctx context.Context, log *core.QueryLog) error {
	log.QueryText = core.Truncate(log.QueryText, core.MaxQueryTextLength)
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}
	row := &queryLogModel{
		QueryText:    log.QueryText,
		UserID:       log.UserID,
		SessionKey:   log.SessionKey,
		ResultsFound: log.ResultsFound,
		Strategy:     string(log.Strategy),
		LatencyMs:    log.LatencyMs,
		Timestamp:    log.Timestamp.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	log.Id = core.ID(row.ID)
	return nil
}

// RecentQueryLogs returns up to limit query logs, most recent first.
func (r *QueryLogRepository) RecentQueryLogs(ctx context.Context, limit int) ([]*core.QueryLog, error) {
	q := r.db.WithContext(ctx).Order("logged_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []queryLogModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	logs := make([]*core.QueryLog, len(rows))
	for i := range rows {
		logs[i] = rows[i].toQueryLog()
	}
	return logs, nil
}

// CheckpointRepository implements storage.CheckpointRepository on gorm.
type CheckpointRepository struct {
	db *gorm.DB
}

var _ storage.CheckpointRepository = (*CheckpointRepository)(nil)

// SaveCheckpoint inserts or replaces the checkpoint for a rebuild job.
func (r *CheckpointRepository) SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error {
	checkpoint.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "job_id"}}, UpdateAll: true}).
		Create(toCheckpointModel(checkpoint)).Error
}

// LoadCheckpoint retrieves the checkpoint for a rebuild job.
// Returns nil, nil if no checkpoint exists.
func (r *CheckpointRepository) LoadCheckpoint(ctx context.Context, jobID string) (*core.Checkpoint, error) {
	var rows []checkpointModel
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toCheckpoint(), nil
}

// ListCheckpoints returns every stored checkpoint, oldest job first.
func (r *CheckpointRepository) ListCheckpoints(ctx context.Context) ([]*core.Checkpoint, error) {
	var rows []checkpointModel
	if err := r.db.WithContext(ctx).Order("started_at ASC").Order("job_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	checkpoints := make([]*core.Checkpoint, len(rows))
	for i := range rows {
		checkpoints[i] = rows[i].toCheckpoint()
	}
	return checkpoints, nil
}

// DeleteCheckpoint removes the checkpoint for a rebuild job.
func (r *CheckpointRepository) DeleteCheckpoint(ctx context.Context, jobID string) error {
	return r.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&checkpointModel{}).Error
}

// OutboxRepository implements storage.OutboxRepository on gorm.
type OutboxRepository struct {
	db *gorm.DB
}

var _ storage.OutboxRepository = (*OutboxRepository)(nil)

// Enqueue persists an event.
func (r *OutboxRepository) Enqueue(ctx context.Context, event *core.Event) (*core.Event, error) {
	row := &eventModel{
		Op:         string(event.Op),
		SourceKind: core.NormalizeKind(event.SourceKind),
		SourceID:   event.SourceID,
		Attempts:   event.Attempts,
		LastError:  event.LastError,
		CreatedAt:  time.Now().UTC(),
		Payload:    event.Payload,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row.toEvent(), nil
}

// Pending returns up to limit events, oldest first.
func (r *OutboxRepository) Pending(ctx context.Context, limit int) ([]*core.Event, error) {
	q := r.db.WithContext(ctx).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []eventModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	events := make([]*core.Event, len(rows))
	for i := range rows {
		events[i] = rows[i].toEvent()
	}
	return events, nil
}

// Ack removes a processed event.
func (r *OutboxRepository) Ack(ctx context.Context, id core.ID) error {
	return r.db.WithContext(ctx).Where("id = ?", uint64(id)).Delete(&eventModel{}).Error
}

// Retry records a failed attempt for an event.
func (r *OutboxRepository) Retry(ctx context.Context, id core.ID, lastErr string) error {
	res := r.db.WithContext(ctx).Model(&eventModel{}).Where("id = ?", uint64(id)).Updates(map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": lastErr,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
