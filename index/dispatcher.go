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


package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/storage"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	replayBatchSize    = 100
)

// Dispatcher applies change notifications asynchronously.
// Every change is persisted to the outbox before it is acknowledged to the
// caller and then applied by a worker pool with retries. Events that still
// fail stay in the outbox and are picked up again by Replay. Upserts are
// idempotent, so delivering an event more than once is harmless.
type Dispatcher struct {
	indexer     *Indexer
	outbox      storage.OutboxRepository
	pool        *ants.Pool
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[core.ID]struct{}
	closed   bool
}

var _ Hooks = (*Dispatcher)(nil)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) DispatcherOption {
	return func(d *Dispatcher) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if d.pool != nil {
			d.pool.Release()
		}
		d.pool = pool
		return nil
	}
}

// WithRetryPolicy sets how often and how patiently an event is retried
// before it is left in the outbox.
func WithRetryPolicy(maxAttempts int, baseDelay time.Duration) DispatcherOption {
	return func(d *Dispatcher) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		d.maxAttempts = maxAttempts
		d.baseDelay = baseDelay
		return nil
	}
}

// WithDispatcherLogger sets a custom logger.
// Default is slog.Default().
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		d.logger = logger
		return nil
	}
}

// NewDispatcher creates a dispatcher that applies events through indexer.
func NewDispatcher(indexer *Indexer, outbox storage.OutboxRepository, opts ...DispatcherOption) (*Dispatcher, error) {
	if indexer == nil {
		return nil, ErrRepositoryRequired
	}
	if outbox == nil {
		return nil, ErrOutboxRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		indexer:     indexer,
		outbox:      outbox,
		pool:        pool,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		logger:      slog.Default(),
		ctx:         ctx,
		cancel:      cancel,
		inflight:    make(map[core.ID]struct{}),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			d.Release()
			return nil, err
		}
	}
	d.logger = d.logger.With("component", "dispatcher")
	return d, nil
}

// OnCreate queues entity for indexing.
func (d *Dispatcher) OnCreate(ctx context.Context, entity Searchable) error {
	return d.enqueue(ctx, core.EventIndex, entity)
}

// OnUpdate queues entity for re-indexing.
func (d *Dispatcher) OnUpdate(ctx context.Context, entity Searchable) error {
	return d.enqueue(ctx, core.EventIndex, entity)
}

// OnDelete queues removal of entity's entry.
func (d *Dispatcher) OnDelete(ctx context.Context, entity Searchable) error {
	return d.enqueue(ctx, core.EventDeindex, entity)
}

// Replay submits every event left in the outbox, typically after a restart.
// Returns the number of events submitted.
func (d *Dispatcher) Replay(ctx context.Context) (int, error) {
	submitted := 0
	var lastID core.ID
	for {
		events, err := d.outbox.Pending(ctx, replayBatchSize)
		if err != nil {
			return submitted, err
		}
		progressed := false
		for _, event := range events {
			if event.Id <= lastID {
				continue
			}
			lastID = event.Id
			progressed = true
			if err := d.submit(event, nil); err != nil {
				if errors.Is(err, errAlreadyInflight) {
					continue
				}
				return submitted, err
			}
			submitted++
		}
		if len(events) < replayBatchSize || !progressed {
			break
		}
		// Pending always starts from the oldest event, so later pages only
		// appear once earlier events are acknowledged.
		d.Wait()
	}
	if submitted > 0 {
		d.logger.Info("replayed outbox events", "events", submitted)
	}
	return submitted, nil
}

// Wait blocks until every submitted event has been processed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Release stops retries, waits for running workers and releases the pool.
// Events that were not applied remain in the outbox.
func (d *Dispatcher) Release() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	if d.pool != nil {
		d.pool.Release()
	}
}

var errAlreadyInflight = errors.New("event already in flight")

func (d *Dispatcher) enqueue(ctx context.Context, op core.EventOp, entity Searchable) error {
	if entity == nil {
		return fmt.Errorf("%w: entity is nil", core.ErrInvalidEntity)
	}
	if err := core.ValidateSourceKey(entity.SourceKind(), entity.SourceID()); err != nil {
		return err
	}
	if d.isClosed() {
		return ErrDispatcherClosed
	}

	event := &core.Event{
		Op:         op,
		SourceKind: entity.SourceKind(),
		SourceID:   entity.SourceID(),
	}
	if op == core.EventIndex {
		event.Payload = d.snapshotPayload(entity)
	}

	event, err := d.outbox.Enqueue(ctx, event)
	if err != nil {
		return fmt.Errorf("enqueue %s event: %w", op, err)
	}
	return d.submit(event, entity)
}

// snapshotPayload captures the entity's document for replay of kinds with
// no registered Source. An entity that cannot be projected gets no payload;
// applying the event reports the projection error.
func (d *Dispatcher) snapshotPayload(entity Searchable) []byte {
	doc, err := entity.ToSearchDocument()
	if err != nil || doc == nil {
		return nil
	}
	payload, err := core.EncodeDocument(doc)
	if err != nil {
		d.logger.Warn("error encoding event payload", "kind", entity.SourceKind(), "id", entity.SourceID(), "err", err)
		return nil
	}
	return payload
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// submit hands event to the pool. entity is the caller's copy, used only when
// the kind has no registered Source. Replayed events pass nil and fall back to
// the event payload.
func (d *Dispatcher) submit(event *core.Event, entity Searchable) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	if _, ok := d.inflight[event.Id]; ok {
		d.mu.Unlock()
		return errAlreadyInflight
	}
	d.inflight[event.Id] = struct{}{}
	d.wg.Add(1)
	d.mu.Unlock()

	err := d.pool.Submit(func() {
		defer d.done(event.Id)
		d.process(event, entity)
	})
	if err != nil {
		d.done(event.Id)
		return fmt.Errorf("submit event %d: %w", event.Id, err)
	}
	return nil
}

func (d *Dispatcher) done(id core.ID) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
	d.wg.Done()
}

func (d *Dispatcher) process(event *core.Event, entity Searchable) {
	logger := d.logger.With("event", event.Id, "op", event.Op, "kind", event.SourceKind, "id", event.SourceID)
	err := RetryWithBackoff(d.ctx, func() error {
		return d.apply(d.ctx, event, entity)
	}, d.maxAttempts, d.baseDelay)

	// Outbox bookkeeping must survive Release cancelling d.ctx.
	ctx := context.WithoutCancel(d.ctx)
	switch {
	case err == nil:
		if ackErr := d.outbox.Ack(ctx, event.Id); ackErr != nil {
			logger.Error("error acknowledging event", "err", ackErr)
		}
	case errors.Is(err, core.ErrInvalidEntity), errors.Is(err, ErrUnknownKind):
		logger.Error("dropping event that can never be applied", "err", err)
		if ackErr := d.outbox.Ack(ctx, event.Id); ackErr != nil {
			logger.Error("error acknowledging event", "err", ackErr)
		}
	case d.ctx.Err() != nil:
		logger.Debug("dispatcher released, event left in outbox")
	default:
		logger.Warn("event failed, left in outbox", "err", err)
		if retryErr := d.outbox.Retry(ctx, event.Id, err.Error()); retryErr != nil {
			logger.Error("error recording event failure", "err", retryErr)
		}
	}
}

// apply performs one event. Index events reload the entity from its Source
// so the latest state is indexed; an entity deleted in the meantime is
// deindexed instead.
func (d *Dispatcher) apply(ctx context.Context, event *core.Event, entity Searchable) error {
	if event.Op == core.EventDeindex {
		return d.indexer.DeindexKey(ctx, event.SourceKind, event.SourceID)
	}
	if event.Op != core.EventIndex {
		return Permanent(fmt.Errorf("%w: unknown event op %q", core.ErrInvalidEntity, event.Op))
	}

	current, err := d.indexer.Registry().Resolve(ctx, event.SourceKind, event.SourceID)
	switch {
	case err == nil:
		entity = current
	case errors.Is(err, ErrEntityNotFound):
		return d.indexer.DeindexKey(ctx, event.SourceKind, event.SourceID)
	case errors.Is(err, ErrUnknownKind):
		if entity == nil {
			if entity, err = fromPayload(event); err != nil {
				return Permanent(err)
			}
		}
	default:
		return err
	}

	if _, err := d.indexer.Index(ctx, entity); err != nil {
		if errors.Is(err, core.ErrInvalidEntity) {
			return Permanent(err)
		}
		return err
	}
	return nil
}

// snapshot is an entity rebuilt from an event payload.
type snapshot struct {
	kind string
	id   string
	doc  *core.Document
}

func (s *snapshot) SourceKind() string { return s.kind }
func (s *snapshot) SourceID() string   { return s.id }

func (s *snapshot) ToSearchDocument() (*core.Document, error) {
	return s.doc, nil
}

func fromPayload(event *core.Event) (Searchable, error) {
	if len(event.Payload) == 0 {
		return nil, fmt.Errorf("%w: no source registered and event %d has no payload", ErrUnknownKind, event.Id)
	}
	doc, err := core.DecodeDocument(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidEntity, err)
	}
	return &snapshot{kind: event.SourceKind, id: event.SourceID, doc: doc}, nil
}
