// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package rebuild

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/index"
	"github.com/poiesic/marketsearch/storage"
)

// Counter is implemented by sources that can report how many entities they
// hold. It only feeds progress reporting.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Manager starts, tracks, cancels and resumes rebuild jobs.
// At most one job per kind runs at a time; the per-kind lock is shared with
// index.Indexer.Rebuild.
type Manager struct {
	indexer     *index.Indexer
	checkpoints storage.CheckpointRepository
	config      *Config
	pool        *ants.Pool
	progress    io.Writer
	now         func() time.Time
	logger      *slog.Logger

	mu     sync.Mutex
	jobs   map[string]*job
	closed bool
	wg     sync.WaitGroup
}

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Manager.
type Option func(*Manager) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// WithConfig sets batch size, retry policy and pool size.
func WithConfig(config *Config) Option {
	return func(m *Manager) error {
		if config == nil {
			config = DefaultConfig()
		}
		if err := config.Validate(); err != nil {
			return err
		}
		m.config = config
		return nil
	}
}

// WithProgress reports progress of every job to w.
func WithProgress(w io.Writer) Option {
	return func(m *Manager) error {
		m.progress = w
		return nil
	}
}

// WithClock overrides the time source used for checkpoint timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) error {
		if now != nil {
			m.now = now
		}
		return nil
	}
}

// StartOption configures a single job.
type StartOption func(*startOptions)

type startOptions struct {
	purgeFirst bool
}

// PurgeFirst deletes every entry of the kind before re-indexing.
// Searches see the kind empty until the job has visited its entities.
func PurgeFirst() StartOption {
	return func(o *startOptions) {
		o.purgeFirst = true
	}
}

// NewManager creates a rebuild manager.
func NewManager(indexer *index.Indexer, checkpoints storage.CheckpointRepository, opts ...Option) (*Manager, error) {
	if indexer == nil {
		return nil, ErrIndexerRequired
	}
	if checkpoints == nil {
		return nil, ErrCheckpointsRequired
	}

	m := &Manager{
		indexer:     indexer,
		checkpoints: checkpoints,
		config:      DefaultConfig(),
		now:         time.Now,
		logger:      slog.Default(),
		jobs:        make(map[string]*job),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(m.config.PoolSize)
	if err != nil {
		return nil, err
	}
	m.pool = pool
	m.logger = m.logger.With("component", "rebuild")
	return m, nil
}

// Start begins a background rebuild of kind and returns its initial checkpoint.
// Returns index.ErrUnknownKind for an unregistered kind and ErrRebuildInProgress
// when a rebuild of the kind is already running.
func (m *Manager) Start(ctx context.Context, kind string, opts ...StartOption) (*core.Checkpoint, error) {
	if m.isClosed() {
		return nil, ErrManagerClosed
	}
	cp, unlock, err := m.prepare(ctx, kind)
	if err != nil {
		return nil, err
	}
	if err := m.submit(cp, unlock, newStartOptions(opts)); err != nil {
		return nil, err
	}
	return cp, nil
}

// Run rebuilds kind in the calling goroutine and returns the final checkpoint.
// Cancelling ctx stops the job, which can later be resumed.
func (m *Manager) Run(ctx context.Context, kind string, opts ...StartOption) (*core.Checkpoint, error) {
	cp, unlock, err := m.prepare(ctx, kind)
	if err != nil {
		return nil, err
	}
	defer unlock()
	err = m.run(ctx, cp, newStartOptions(opts))
	return cp, err
}

// Resume continues an unfinished job from its checkpoint.
func (m *Manager) Resume(ctx context.Context, jobID string) (*core.Checkpoint, error) {
	if m.isRunning(jobID) {
		return nil, ErrRebuildInProgress
	}
	cp, err := m.Status(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if cp.State == core.JobCompleted {
		return nil, ErrJobFinished
	}
	if _, err := m.indexer.Registry().Lookup(cp.SourceKind); err != nil {
		return nil, err
	}
	unlock, ok := m.indexer.Locks().TryLock(cp.SourceKind)
	if !ok {
		return nil, ErrRebuildInProgress
	}

	cp.State = core.JobPending
	cp.Error = ""
	if err := m.save(ctx, cp); err != nil {
		unlock()
		return nil, err
	}
	m.logger.Info("resuming rebuild", "job", cp.JobID, "kind", cp.SourceKind, "cursor", cp.Cursor)
	if err := m.submit(cp, unlock, &startOptions{}); err != nil {
		return nil, err
	}
	return cp, nil
}

// Cancel stops a job between entities. The job's checkpoint is kept so it can
// be resumed. Cancelling a job that is not running marks a stale checkpoint
// cancelled; a completed job returns ErrJobFinished.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	m.mu.Lock()
	j, ok := m.jobs[jobID]
	m.mu.Unlock()
	if ok {
		j.cancel()
		<-j.done
		return nil
	}

	cp, err := m.Status(ctx, jobID)
	if err != nil {
		return err
	}
	switch cp.State {
	case core.JobCompleted:
		return ErrJobFinished
	case core.JobCancelled, core.JobFailed:
		return nil
	}
	cp.State = core.JobCancelled
	return m.save(ctx, cp)
}

// Status returns the latest checkpoint of a job.
func (m *Manager) Status(ctx context.Context, jobID string) (*core.Checkpoint, error) {
	cp, err := m.checkpoints.LoadCheckpoint(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return cp, nil
}

// Jobs returns the checkpoints of every known job.
func (m *Manager) Jobs(ctx context.Context) ([]*core.Checkpoint, error) {
	return m.checkpoints.ListCheckpoints(ctx)
}

// Wait blocks until every background job has stopped.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Release cancels running jobs, waits for them and releases the pool.
func (m *Manager) Release() {
	m.mu.Lock()
	m.closed = true
	for _, j := range m.jobs {
		j.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.pool.Release()
}

func newStartOptions(opts []StartOption) *startOptions {
	o := &startOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// prepare validates kind, takes its lock and persists a pending checkpoint.
func (m *Manager) prepare(ctx context.Context, kind string) (*core.Checkpoint, func(), error) {
	kind = core.NormalizeKind(kind)
	if _, err := m.indexer.Registry().Lookup(kind); err != nil {
		return nil, nil, err
	}
	unlock, ok := m.indexer.Locks().TryLock(kind)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrRebuildInProgress, kind)
	}

	now := m.now().UTC()
	cp := &core.Checkpoint{
		JobID:      uuid.NewString(),
		SourceKind: kind,
		State:      core.JobPending,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.save(ctx, cp); err != nil {
		unlock()
		return nil, nil, err
	}
	return cp, unlock, nil
}

func (m *Manager) submit(cp *core.Checkpoint, unlock func(), opts *startOptions) error {
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		unlock()
		return ErrManagerClosed
	}
	m.jobs[cp.JobID] = j
	m.wg.Add(1)
	m.mu.Unlock()

	// The job works on its own copy; callers keep the checkpoint we return.
	jobCP := *cp
	finish := func() {
		unlock()
		cancel()
		m.mu.Lock()
		delete(m.jobs, cp.JobID)
		m.mu.Unlock()
		close(j.done)
		m.wg.Done()
	}
	err := m.pool.Submit(func() {
		defer finish()
		if err := m.run(ctx, &jobCP, opts); err != nil {
			m.logger.Warn("rebuild stopped", "job", jobCP.JobID, "kind", jobCP.SourceKind, "state", jobCP.State, "err", err)
		}
	})
	if err != nil {
		finish()
		return fmt.Errorf("submit rebuild job: %w", err)
	}
	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) isRunning(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[jobID]
	return ok
}

// run drives a job to a terminal state, checkpointing after every page.
// The returned error is also recorded in the checkpoint.
func (m *Manager) run(ctx context.Context, cp *core.Checkpoint, opts *startOptions) error {
	logger := m.logger.With("job", cp.JobID, "kind", cp.SourceKind)
	// Checkpoint writes must land even after ctx is cancelled.
	saveCtx := context.WithoutCancel(ctx)

	source, err := m.indexer.Registry().Lookup(cp.SourceKind)
	if err != nil {
		return m.fail(saveCtx, cp, err)
	}

	cp.State = core.JobRunning
	if err := m.save(saveCtx, cp); err != nil {
		return err
	}
	logger.Info("rebuild started", "cursor", cp.Cursor, "purgeFirst", opts.purgeFirst)

	if opts.purgeFirst && cp.Cursor == "" {
		removed, err := m.indexer.Entries().DeleteKind(ctx, cp.SourceKind)
		if err != nil {
			return m.fail(saveCtx, cp, fmt.Errorf("purge: %w", err))
		}
		logger.Debug("purged entries", "removed", removed)
	}

	tracker := m.tracker(ctx, source)
	if tracker != nil {
		tracker.Start(cp.Indexed, cp.Skipped)
	}

	for {
		var page []index.Searchable
		err := index.RetryWithBackoff(ctx, func() error {
			var err error
			page, err = source.List(ctx, cp.Cursor, m.config.BatchSize)
			return err
		}, m.config.MaxRetries, m.config.RetryDelay)
		if err != nil {
			return m.stop(saveCtx, ctx, cp, fmt.Errorf("list %s after %q: %w", cp.SourceKind, cp.Cursor, err))
		}

		for _, entity := range page {
			if ctx.Err() != nil {
				return m.stop(saveCtx, ctx, cp, ctx.Err())
			}
			indexed, err := m.indexOne(ctx, entity)
			if err != nil {
				return m.stop(saveCtx, ctx, cp, err)
			}
			if indexed {
				cp.Indexed++
			} else {
				cp.Skipped++
				logger.Warn("skipping entity", "id", entity.SourceID())
			}
			cp.Cursor = entity.SourceID()
			if tracker != nil {
				tracker.Increment(btoi(indexed), btoi(!indexed))
			}
		}

		if err := m.save(saveCtx, cp); err != nil {
			return err
		}
		if len(page) < m.config.BatchSize {
			break
		}
	}

	removed, err := m.indexer.Entries().DeleteKindBefore(ctx, cp.SourceKind, cp.StartedAt)
	if err != nil {
		return m.stop(saveCtx, ctx, cp, fmt.Errorf("sweep stale entries: %w", err))
	}

	cp.State = core.JobCompleted
	if err := m.save(saveCtx, cp); err != nil {
		return err
	}
	if tracker != nil {
		tracker.Finish()
	}
	logger.Info("rebuild complete", "indexed", cp.Indexed, "skipped", cp.Skipped, "removed", removed)
	return nil
}

// indexOne upserts one entity with retries. It reports false for entities
// that cannot be projected.
func (m *Manager) indexOne(ctx context.Context, entity index.Searchable) (bool, error) {
	err := index.RetryWithBackoff(ctx, func() error {
		_, err := m.indexer.Index(ctx, entity)
		if errors.Is(err, core.ErrInvalidEntity) {
			return index.Permanent(err)
		}
		return err
	}, m.config.MaxRetries, m.config.RetryDelay)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, core.ErrInvalidEntity):
		return false, nil
	default:
		return false, fmt.Errorf("index %s:%s: %w", entity.SourceKind(), entity.SourceID(), err)
	}
}

// stop records a cancelled or failed job.
func (m *Manager) stop(saveCtx, ctx context.Context, cp *core.Checkpoint, err error) error {
	if ctx.Err() != nil {
		cp.State = core.JobCancelled
		cp.Error = ""
		if saveErr := m.save(saveCtx, cp); saveErr != nil {
			return saveErr
		}
		m.logger.Info("rebuild cancelled", "job", cp.JobID, "kind", cp.SourceKind, "cursor", cp.Cursor)
		return ctx.Err()
	}
	return m.fail(saveCtx, cp, err)
}

func (m *Manager) fail(ctx context.Context, cp *core.Checkpoint, err error) error {
	cp.State = core.JobFailed
	cp.Error = err.Error()
	if saveErr := m.save(ctx, cp); saveErr != nil {
		return errors.Join(err, saveErr)
	}
	return err
}

func (m *Manager) save(ctx context.Context, cp *core.Checkpoint) error {
	cp.UpdatedAt = m.now().UTC()
	if err := m.checkpoints.SaveCheckpoint(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.JobID, err)
	}
	return nil
}

func (m *Manager) tracker(ctx context.Context, source index.Source) *ProgressTracker {
	if m.progress == nil {
		return nil
	}
	total := 0
	if counter, ok := source.(Counter); ok {
		if n, err := counter.Count(ctx); err == nil {
			total = n
		}
	}
	return NewProgressTracker(m.progress, total, m.config.ReportInterval)
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
